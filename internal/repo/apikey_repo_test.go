package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/dental-gateway/internal/domain"
)

func TestCreateAPIKey_AssignsIDAndDetectsDuplicateHash(t *testing.T) {
	db := newRepoDB(t, &domain.APIKey{})
	ctx := context.Background()

	k := &domain.APIKey{CompanyID: "c1", Name: "default", KeyHash: "h1", KeyPrefix: "dt_aaaaaaa", IsActive: true}
	if err := CreateAPIKey(ctx, db, k); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if k.ID == "" || k.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set: %+v", k)
	}

	dup := &domain.APIKey{CompanyID: "c2", Name: "other", KeyHash: "h1", KeyPrefix: "dt_bbbbbbb", IsActive: true}
	if err := CreateAPIKey(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetAPIKeyByHash(t *testing.T) {
	db := newRepoDB(t, &domain.APIKey{})
	ctx := context.Background()

	rl := 60
	k := &domain.APIKey{CompanyID: "c1", Name: "default", KeyHash: "h1", KeyPrefix: "dt_aaaaaaa", IsActive: true, RateLimit: &rl}
	if err := CreateAPIKey(ctx, db, k); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	got, err := GetAPIKeyByHash(ctx, db, "h1")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ID != k.ID || got.CompanyID != "c1" || got.RateLimit == nil || *got.RateLimit != 60 {
		t.Fatalf("unexpected key: %+v", got)
	}

	if _, err := GetAPIKeyByHash(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAPIKeyByHash_NoTable_ReturnsRawError(t *testing.T) {
	db := newRepoDB(t)
	_, err := GetAPIKeyByHash(context.Background(), db, "h1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected raw db error, got %v", err)
	}
}

func TestRotateAPIKey_ReplacesHashInPlace(t *testing.T) {
	db := newRepoDB(t, &domain.APIKey{})
	ctx := context.Background()

	k := &domain.APIKey{CompanyID: "c1", Name: "default", KeyHash: "old", KeyPrefix: "dt_old0000", IsActive: true}
	if err := CreateAPIKey(ctx, db, k); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := RotateAPIKey(ctx, db, k.ID, "new", "dt_new0000"); err != nil {
		t.Fatalf("RotateAPIKey: %v", err)
	}
	if _, err := GetAPIKeyByHash(ctx, db, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old hash must no longer resolve, got %v", err)
	}
	got, err := GetAPIKeyByHash(ctx, db, "new")
	if err != nil || got.ID != k.ID || got.KeyPrefix != "dt_new0000" {
		t.Fatalf("rotated key readback: %+v err=%v", got, err)
	}

	if err := RotateAPIKey(ctx, db, "missing", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}

func TestSetAPIKeyActive_AndList(t *testing.T) {
	db := newRepoDB(t, &domain.APIKey{})
	ctx := context.Background()

	a := &domain.APIKey{CompanyID: "c1", Name: "a", KeyHash: "ha", KeyPrefix: "dt_a", IsActive: true}
	b := &domain.APIKey{CompanyID: "c1", Name: "b", KeyHash: "hb", KeyPrefix: "dt_b", IsActive: true}
	o := &domain.APIKey{CompanyID: "c2", Name: "o", KeyHash: "ho", KeyPrefix: "dt_o", IsActive: true}
	for _, k := range []*domain.APIKey{a, b, o} {
		if err := CreateAPIKey(ctx, db, k); err != nil {
			t.Fatalf("CreateAPIKey: %v", err)
		}
	}

	if err := SetAPIKeyActive(ctx, db, a.ID, false); err != nil {
		t.Fatalf("SetAPIKeyActive: %v", err)
	}
	got, err := GetAPIKey(ctx, db, a.ID)
	if err != nil || got.IsActive {
		t.Fatalf("expected inactive key, got %+v err=%v", got, err)
	}
	if err := SetAPIKeyActive(ctx, db, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := ListAPIKeys(ctx, db, "c1")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 keys for c1, got %d", len(list))
	}
	for _, k := range list {
		if k.CompanyID != "c1" {
			t.Fatalf("tenant leak in list: %+v", k)
		}
	}
}

func TestTouchAPIKey(t *testing.T) {
	db := newRepoDB(t, &domain.APIKey{})
	ctx := context.Background()

	k := &domain.APIKey{CompanyID: "c1", Name: "default", KeyHash: "h1", KeyPrefix: "dt_aaaaaaa", IsActive: true}
	if err := CreateAPIKey(ctx, db, k); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := TouchAPIKey(ctx, db, k.ID, at); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}
	got, err := GetAPIKey(ctx, db, k.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(at) {
		t.Fatalf("last_used_at = %v; want %v", got.LastUsedAt, at)
	}

	if err := TouchAPIKey(ctx, db, "missing", at); err != nil {
		t.Fatalf("missing key should be a no-op, got %v", err)
	}
}
