// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the APIKey
// model.
//
// Keys are looked up by the hex SHA-256 hash of the raw secret only; the
// secret itself is never stored. Rotation replaces hash and prefix in place
// so the key id, tenant, and rate limit survive.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
)

// CreateAPIKey inserts k, assigning an id and creation time when unset.
// A hash collision returns ErrDuplicate.
func CreateAPIKey(ctx context.Context, db *gorm.DB, k *domain.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(k).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetAPIKeyByHash resolves a key by the hash index, or ErrNotFound.
func GetAPIKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := db.WithContext(ctx).Where("key_hash = ?", hash).Take(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetAPIKey fetches a key by id, or ErrNotFound.
func GetAPIKey(ctx context.Context, db *gorm.DB, id string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := db.WithContext(ctx).Where("id = ?", id).Take(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListAPIKeys returns every key of a tenant, oldest first.
func ListAPIKeys(ctx context.Context, db *gorm.DB, companyID string) ([]domain.APIKey, error) {
	var out []domain.APIKey
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// RotateAPIKey replaces hash and prefix of key id in place.
// Returns ErrNotFound if the key does not exist.
func RotateAPIKey(ctx context.Context, db *gorm.DB, id, hash, prefix string) error {
	res := db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]any{"key_hash": hash, "key_prefix": prefix})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAPIKeyActive flips the active flag of key id.
// Returns ErrNotFound if the key does not exist.
func SetAPIKeyActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAPIKey sets last_used_at of key id to at. A missing key is not an
// error; the caller is a best-effort side effect.
func TouchAPIKey(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at.UTC()).Error
}
