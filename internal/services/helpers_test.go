package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/queue"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps background writes from tripping shared-cache locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&domain.APIKey{}, &domain.Job{}, &domain.APILog{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func clock() time.Time { return fixedNow }

var tenantA = domain.Tenant{KeyID: "11111111-1111-1111-1111-111111111111", CompanyID: "company-a", Active: true}
var tenantB = domain.Tenant{KeyID: "22222222-2222-2222-2222-222222222222", CompanyID: "company-b", Active: true}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *fakeQueue) Publish(_ context.Context, m queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, m)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) published() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.msgs...)
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Put(context.Context, string, []byte, string, bool) error { return f.err }
func (f failingStore) Get(context.Context, string) ([]byte, error)            { return nil, f.err }
func (f failingStore) Delete(context.Context, string) error                   { return f.err }
func (f failingStore) Ping(context.Context) error                             { return f.err }

var errBoom = errors.New("boom")

func countLogs(t *testing.T, db *gorm.DB, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.APILog{}).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	return n
}
