// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Job model.
//
// The gateway only creates jobs and reads them back scoped to a tenant.
// ClaimJob, CompleteJob and FailJob form the inference worker's contract:
// each is a conditional update so status only moves forward
// (pending -> processing -> completed|failed) and only the claiming worker
// may finish a job. Terminal rows are never touched again.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
)

// ErrInvalidOutcome is returned when a completion carries no usable result.
var ErrInvalidOutcome = errors.New("invalid job outcome")

// CreateJob inserts j in pending status, assigning an id and creation time
// when unset.
func CreateJob(ctx context.Context, db *gorm.DB, j *domain.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.Status = domain.JobPending
	return db.WithContext(ctx).Create(j).Error
}

// GetJobForCompany fetches job id only if it belongs to companyID.
// A job of another tenant is reported exactly like a missing one: ErrNotFound.
func GetJobForCompany(ctx context.Context, db *gorm.DB, id, companyID string) (*domain.Job, error) {
	var j domain.Job
	err := db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Take(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimJob moves a pending job to processing for workerID. It reports
// whether this call won the claim; a job already claimed, finished, or
// missing yields false.
func ClaimJob(ctx context.Context, db *gorm.DB, id, workerID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobPending).
		Updates(map[string]any{
			"status":     domain.JobProcessing,
			"worker_id":  workerID,
			"started_at": now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// JobOutcome is what a worker reports for a successfully analyzed image.
type JobOutcome struct {
	RadiographType   string
	InferenceVersion string
	Result           domain.ResultLocation
}

// CompleteJob finishes a processing job claimed by workerID. It reports
// false when the job is not in processing or belongs to another worker.
func CompleteJob(ctx context.Context, db *gorm.DB, id, workerID string, out JobOutcome, now time.Time) (bool, error) {
	fields := map[string]any{
		"status":       domain.JobCompleted,
		"completed_at": now.UTC(),
	}
	if out.RadiographType != "" {
		fields["radiograph_type"] = out.RadiographType
	}
	if out.InferenceVersion != "" {
		fields["inference_version"] = out.InferenceVersion
	}
	switch r := out.Result.(type) {
	case domain.BlobResult:
		if r.Path == "" {
			return false, ErrInvalidOutcome
		}
		fields["result_path"] = r.Path
	case domain.InlineResult:
		fields["result_json"] = datatypes.JSON(r.JSON)
	case nil:
	default:
		return false, ErrInvalidOutcome
	}
	return finishJob(ctx, db, id, workerID, fields)
}

// FailJob marks a processing job claimed by workerID as failed with msg.
func FailJob(ctx context.Context, db *gorm.DB, id, workerID, msg string, now time.Time) (bool, error) {
	return finishJob(ctx, db, id, workerID, map[string]any{
		"status":        domain.JobFailed,
		"error_message": msg,
		"completed_at":  now.UTC(),
	})
}

func finishJob(ctx context.Context, db *gorm.DB, id, workerID string, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, domain.JobProcessing, workerID).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}
