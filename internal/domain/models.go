// Package domain defines the persistence models for API credentials,
// analysis jobs, and usage logs. These types are mapped with GORM and form
// the core data layer of the gateway.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Radiograph classification labels written by the inference worker.
const (
	RadiographPanoramic   = "panoramic"
	RadiographBitewing    = "bitewing"
	RadiographPeriapical  = "periapical"
	RadiographUnsupported = "unsupported_image_type"
)

// APIKey is a tenant credential. Only the SHA-256 hash of the secret is
// stored; KeyHash is the sole lookup key for authentication.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - CompanyID: owning tenant (indexed).
//   - Name: operator-facing label.
//   - KeyHash: hex SHA-256 of the raw secret (unique).
//   - KeyPrefix: non-secret display prefix of the raw secret.
//   - IsActive: inactive keys authenticate to API_KEY_INACTIVE.
//   - RateLimit: optional requests per minute overriding the default bucket.
//   - LastUsedAt: best-effort, written in the background after a successful
//     verification, never on the request path.
type APIKey struct {
	ID         string     `json:"id"           gorm:"type:char(36);primaryKey"`
	CompanyID  string     `json:"company_id"   gorm:"type:varchar(64);not null;index:idx_api_keys_company"`
	Name       string     `json:"name"         gorm:"type:varchar(255);not null"`
	KeyHash    string     `json:"-"            gorm:"type:char(64);not null;uniqueIndex:ux_api_keys_hash"`
	KeyPrefix  string     `json:"key_prefix"   gorm:"type:varchar(16);not null"`
	IsActive   bool       `json:"is_active"    gorm:"not null"`
	RateLimit  *int       `json:"rate_limit,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TableName returns the database table name for APIKey.
func (APIKey) TableName() string { return "api_keys" }

// Job is one asynchronous radiograph analysis request.
//
// Status moves pending -> processing -> completed|failed and never back.
// Result fields are written once by the inference worker when the job
// reaches a terminal state. ResultPath, when set, takes precedence over the
// legacy inline ResultJSON payload.
type Job struct {
	ID               string         `json:"id"                gorm:"type:char(36);primaryKey"`
	CompanyID        string         `json:"company_id"        gorm:"type:varchar(64);not null;index:idx_jobs_company_id,priority:1"`
	APIKeyID         string         `json:"api_key_id"        gorm:"type:char(36);not null;index"`
	ImagePath        string         `json:"image_path"        gorm:"type:text;not null"`
	Status           JobStatus      `json:"status"            gorm:"type:varchar(16);not null;index;check:status IN ('pending','processing','completed','failed')"`
	RadiographType   *string        `json:"radiograph_type,omitempty" gorm:"type:varchar(32)"`
	ResultJSON       datatypes.JSON `json:"result_json,omitempty"`
	ResultPath       *string        `json:"result_path,omitempty"     gorm:"type:text"`
	InferenceVersion *string        `json:"inference_version,omitempty" gorm:"type:varchar(64)"`
	ErrorMessage     *string        `json:"error_message,omitempty"   gorm:"type:text"`
	RequestID        *string        `json:"request_id,omitempty"      gorm:"type:varchar(64)"`
	WorkerID         *string        `json:"worker_id,omitempty"       gorm:"type:varchar(128)"`
	CreatedAt        time.Time      `json:"created_at"        gorm:"index:idx_jobs_company_id,priority:2"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt        time.Time      `json:"expires_at"        gorm:"not null;index"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string { return "jobs" }

// APILog is a usage record for one gateway call. Submissions that create a
// job are billable; result polls are not.
type APILog struct {
	ID                string     `json:"id"          gorm:"type:char(36);primaryKey"`
	CompanyID         string     `json:"company_id"  gorm:"type:varchar(64);not null;index:idx_api_logs_company_ts,priority:1"`
	APIKeyID          string     `json:"api_key_id"  gorm:"type:char(36);not null;index"`
	JobID             *string    `json:"job_id,omitempty" gorm:"type:char(36);index"`
	Endpoint          string     `json:"endpoint"    gorm:"type:varchar(64);not null"`
	PatientRef        *string    `json:"patient_ref,omitempty" gorm:"type:text"`
	DoctorRef         *string    `json:"doctor_ref,omitempty"  gorm:"type:text"`
	ClinicRef         *string    `json:"clinic_ref,omitempty"  gorm:"type:text"`
	StatusCode        int        `json:"status_code" gorm:"not null"`
	IsBillable        bool       `json:"is_billable" gorm:"not null"`
	ErrorMessage      *string    `json:"error_message,omitempty" gorm:"type:text"`
	RequestTimestamp  time.Time  `json:"request_timestamp"  gorm:"not null;index:idx_api_logs_company_ts,priority:2"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
}

// TableName returns the database table name for APILog.
func (APILog) TableName() string { return "api_logs" }
