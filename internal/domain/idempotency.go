package domain

import "time"

// Idempotency records the job created for a submission retried with the
// same Idempotency-Key, keyed by (company_id, key). A replay returns the
// original job instead of uploading and enqueuing again.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	CompanyID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_company_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_company_key,priority:2"`
	JobID     string    `gorm:"type:char(36);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
