// Package services – KeyService
//
// This file implements credential administration used by the operator CLI:
// issuing, rotating, revoking and listing API keys. Raw secrets are returned
// exactly once, at issue or rotation time.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/repo"
)

const (
	// keyPrefix marks gateway secrets so they are recognizable in logs and
	// secret scanners.
	keyPrefix = "dt_"
	// keyRandomBytes is the entropy of a secret; hex encoded it is 64 chars.
	keyRandomBytes = 32
	// displayPrefixLen is how much of the secret is kept for display.
	displayPrefixLen = 10
)

// randRead is swapped in tests.
var randRead = rand.Read

// GeneratedKey is a freshly minted secret with its stored forms.
type GeneratedKey struct {
	Secret string
	Prefix string
	Hash   string
}

// GenerateAPIKey mints a random secret "dt_<64 hex>".
func GenerateAPIKey() (GeneratedKey, error) {
	b := make([]byte, keyRandomBytes)
	if _, err := randRead(b); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	secret := keyPrefix + hex.EncodeToString(b)
	return GeneratedKey{
		Secret: secret,
		Prefix: secret[:displayPrefixLen],
		Hash:   HashAPIKey(secret),
	}, nil
}

// IssuedKey is a stored credential together with its one-time secret.
type IssuedKey struct {
	Key    domain.APIKey
	Secret string
}

// KeyService manages tenant credentials.
type KeyService struct {
	DB *gorm.DB
}

// Create issues a new active key for companyID. rateLimit, when non-nil, is
// the key's requests-per-minute budget. Tenants may hold several keys.
func (s *KeyService) Create(ctx context.Context, companyID, name string, rateLimit *int) (*IssuedKey, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, ErrInvalidCompany
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default API Key"
	}
	gen, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	k := domain.APIKey{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Name:      name,
		KeyHash:   gen.Hash,
		KeyPrefix: gen.Prefix,
		IsActive:  true,
		RateLimit: rateLimit,
	}
	if err := repo.CreateAPIKey(ctx, s.DB, &k); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &IssuedKey{Key: k, Secret: gen.Secret}, nil
}

// Rotate replaces the secret of key id in place. The previous secret stops
// authenticating immediately; the key id, owner and settings are kept.
func (s *KeyService) Rotate(ctx context.Context, id string) (*IssuedKey, error) {
	gen, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	if err := repo.RotateAPIKey(ctx, s.DB, id, gen.Hash, gen.Prefix); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("rotate api key: %w", err)
	}
	k, err := repo.GetAPIKey(ctx, s.DB, id)
	if err != nil {
		return nil, fmt.Errorf("reload api key: %w", err)
	}
	return &IssuedKey{Key: *k, Secret: gen.Secret}, nil
}

// Revoke deactivates key id. Revoked keys authenticate as inactive.
func (s *KeyService) Revoke(ctx context.Context, id string) error {
	if err := repo.SetAPIKeyActive(ctx, s.DB, id, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

// List returns the keys of companyID, oldest first. Hashes are never
// serialized.
func (s *KeyService) List(ctx context.Context, companyID string) ([]domain.APIKey, error) {
	return repo.ListAPIKeys(ctx, s.DB, companyID)
}
