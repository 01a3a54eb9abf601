// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the APILog
// usage records.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
)

// CreateAPILog inserts a usage record, assigning an id when unset.
func CreateAPILog(ctx context.Context, db *gorm.DB, l *domain.APILog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.RequestTimestamp.IsZero() {
		l.RequestTimestamp = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(l).Error
}

// UsageSummary aggregates a tenant's calls in a time window.
type UsageSummary struct {
	Total    int64
	Billable int64
}

// SummarizeUsage counts calls and billable calls of companyID with a
// request timestamp in [from, to).
func SummarizeUsage(ctx context.Context, db *gorm.DB, companyID string, from, to time.Time) (UsageSummary, error) {
	var s UsageSummary
	q := db.WithContext(ctx).Model(&domain.APILog{}).
		Where("company_id = ? AND request_timestamp >= ? AND request_timestamp < ?", companyID, from.UTC(), to.UTC()).
		Session(&gorm.Session{})
	if err := q.Count(&s.Total).Error; err != nil {
		return UsageSummary{}, err
	}
	if err := q.Where("is_billable = ?", true).Count(&s.Billable).Error; err != nil {
		return UsageSummary{}, err
	}
	return s, nil
}
