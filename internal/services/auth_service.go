// Package services – AuthService
//
// This file implements credential verification. A presented secret is hashed
// with SHA-256 exactly as received (no trimming, no case folding) and looked
// up through the unique hash index; plaintext secrets are never stored or
// compared.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/repo"
)

// AuthService resolves API key secrets to tenants.
type AuthService struct {
	// DB is the database handle holding the api_keys table.
	DB *gorm.DB
	// Background, when set, records last_used_at after a successful
	// verification. Without it the timestamp is left alone.
	Background *background.Runner
	// Now overrides the clock in tests.
	Now func() time.Time
}

// HashAPIKey returns the hex SHA-256 of raw. It is the only form in which a
// secret is persisted.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify authenticates raw and returns the calling tenant.
//
// Errors:
//   - ErrMissingAPIKey when raw is empty (no lookup is performed).
//   - ErrInvalidAPIKey when no credential has the hash.
//   - ErrAPIKeyInactive when the credential exists but is revoked.
//   - A wrapped store error for anything else.
//
// Verify itself never writes; the last_used_at update is scheduled on
// Background and its failure is only logged.
func (s *AuthService) Verify(ctx context.Context, raw string) (domain.Tenant, error) {
	if raw == "" {
		return domain.Tenant{}, ErrMissingAPIKey
	}
	key, err := repo.GetAPIKeyByHash(ctx, s.DB, HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Tenant{}, ErrInvalidAPIKey
		}
		return domain.Tenant{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !key.IsActive {
		return domain.Tenant{}, ErrAPIKeyInactive
	}
	if s.Background != nil {
		id, at := key.ID, s.now()
		s.Background.Go(ctx, "api_key_touch", func(ctx context.Context) error {
			return repo.TouchAPIKey(ctx, s.DB, id, at)
		})
	}
	return domain.TenantFromKey(key), nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
