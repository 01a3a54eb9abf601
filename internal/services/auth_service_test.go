package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/dental-gateway/internal/background"
)

func TestHashAPIKey_KnownVector(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashAPIKey("abc"); got != want {
		t.Fatalf("HashAPIKey = %s; want %s", got, want)
	}
}

func TestAuth_Verify(t *testing.T) {
	db := newTestDB(t)
	ks := &KeyService{DB: db}
	ctx := context.Background()

	rl := 30
	active, err := ks.Create(ctx, "company-a", "primary", &rl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	revoked, err := ks.Create(ctx, "company-a", "old", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ks.Revoke(ctx, revoked.Key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	auth := &AuthService{DB: db}

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"missing", "", ErrMissingAPIKey},
		{"unknown", "dt_" + strings.Repeat("0", 64), ErrInvalidAPIKey},
		{"surrounding whitespace is not trimmed", " " + active.Secret, ErrInvalidAPIKey},
		{"case is significant", strings.ToUpper(active.Secret), ErrInvalidAPIKey},
		{"inactive", revoked.Secret, ErrAPIKeyInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.Verify(ctx, tc.raw); !errors.Is(err, tc.want) {
				t.Fatalf("Verify err = %v; want %v", err, tc.want)
			}
		})
	}

	tn, err := auth.Verify(ctx, active.Secret)
	if err != nil {
		t.Fatalf("Verify active: %v", err)
	}
	if tn.KeyID != active.Key.ID || tn.CompanyID != "company-a" || !tn.Active {
		t.Fatalf("unexpected tenant: %+v", tn)
	}
	if tn.RateLimit == nil || *tn.RateLimit != 30 {
		t.Fatalf("rate limit not carried: %v", tn.RateLimit)
	}
}

func TestAuth_Verify_WithoutRunnerLeavesLastUsed(t *testing.T) {
	db := newTestDB(t)
	ks := &KeyService{DB: db}
	ctx := context.Background()

	k, err := ks.Create(ctx, "company-a", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := (&AuthService{DB: db}).Verify(ctx, k.Secret); err != nil {
		t.Fatalf("verify: %v", err)
	}
	keys, err := ks.List(ctx, "company-a")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %d", err, len(keys))
	}
	if keys[0].LastUsedAt != nil {
		t.Fatalf("last_used_at must not be written on verify")
	}
}

func TestAuth_Verify_TouchesLastUsedInBackground(t *testing.T) {
	db := newTestDB(t)
	ks := &KeyService{DB: db}
	ctx := context.Background()

	k, err := ks.Create(ctx, "company-a", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	runner := background.New(2, time.Second)
	auth := &AuthService{DB: db, Background: runner, Now: clock}
	if _, err := auth.Verify(ctx, k.Secret); err != nil {
		t.Fatalf("verify: %v", err)
	}
	runner.Wait()

	keys, err := ks.List(ctx, "company-a")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %d", err, len(keys))
	}
	if keys[0].LastUsedAt == nil || !keys[0].LastUsedAt.Equal(fixedNow) {
		t.Fatalf("last_used_at = %v; want %v", keys[0].LastUsedAt, fixedNow)
	}

	// A rejected secret schedules nothing.
	if _, err := auth.Verify(ctx, "dt_nope"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("want ErrInvalidAPIKey, got %v", err)
	}
	runner.Wait()
	if overflow, failed := runner.Stats(); overflow != 0 || failed != 0 {
		t.Fatalf("stats overflow=%d failed=%d", overflow, failed)
	}
}
