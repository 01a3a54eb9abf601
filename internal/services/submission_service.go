// Package services – SubmissionService
//
// This file implements POST /v1/submit-analysis. The order of effects is
// fixed:
//
//  1. upload the image with no-overwrite semantics (failure: ErrUploadFailed)
//  2. insert the pending job row (failure: delete the image, ErrJobCreationFailed)
//  3. hand the job to the queue in the background
//  4. record a billable usage row in the background
//
// Steps 3 and 4 never affect the response. A job that never reached the
// queue stays pending for an external reconciler. The compensating delete in
// step 2 is attempted once; a crash between upload and delete can leak an
// image, which bucket lifecycle rules eventually collect.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/ingest"
	"github.com/tbourn/dental-gateway/internal/observability"
	"github.com/tbourn/dental-gateway/internal/queue"
	"github.com/tbourn/dental-gateway/internal/repo"
	"github.com/tbourn/dental-gateway/internal/storage"
)

const (
	defaultJobTTL         = time.Hour
	defaultIdempotencyTTL = 24 * time.Hour
	defaultExtension      = "jpg"
	maxExtensionLen       = 5
)

// Submission is the accepted job as reported to the caller.
type Submission struct {
	JobID     string
	Status    domain.JobStatus
	CreatedAt time.Time
	// Replayed is true when the job was created by an earlier call with the
	// same Idempotency-Key.
	Replayed bool
}

// SubmissionService accepts radiographs and creates analysis jobs.
type SubmissionService struct {
	DB         *gorm.DB
	Images     storage.Store
	Queue      queue.Publisher
	Background *background.Runner
	Usage      *UsageRecorder

	// JobTTL is added to the submission time to get expires_at. It is fixed
	// at creation and never renewed.
	JobTTL time.Duration
	// IdempotencyTTL bounds how long an Idempotency-Key replays its job.
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// Submit stores up for tenant t and creates a pending job. idemKey may be
// empty; when set, the mapping key -> job is remembered best-effort so a
// retry can be answered by Replay. requestID is kept on the job row for
// log correlation.
func (s *SubmissionService) Submit(ctx context.Context, t domain.Tenant, up *ingest.Upload, idemKey, requestID string) (*Submission, error) {
	ctx, span := observability.StartSpan(ctx, "SubmissionService.Submit", t.CompanyID)
	defer span.End()

	now := s.now()
	objectPath := ObjectPath(t.CompanyID, up.Filename, now)

	if err := s.Images.Put(ctx, objectPath, up.Data, up.ContentType, true); err != nil {
		observability.Submissions.WithLabelValues("UPLOAD_FAILED").Inc()
		observability.FailSpan(span, err, "upload failed")
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	job := &domain.Job{
		CompanyID: t.CompanyID,
		APIKeyID:  t.KeyID,
		ImagePath: objectPath,
		RequestID: nullable(requestID),
		CreatedAt: now,
		ExpiresAt: now.Add(s.jobTTL()),
	}
	if err := repo.CreateJob(ctx, s.DB, job); err != nil {
		s.discardImage(ctx, t, objectPath)
		observability.Submissions.WithLabelValues("JOB_CREATION_FAILED").Inc()
		observability.FailSpan(span, err, "job insert failed")
		return nil, fmt.Errorf("%w: %w", ErrJobCreationFailed, err)
	}
	span.SetAttributes(observability.AttrJobID.String(job.ID))

	s.enqueue(ctx, queue.Message{JobID: job.ID, CompanyID: t.CompanyID, ImagePath: objectPath})
	s.recordUsage(ctx, UsageEntry{
		Tenant:   t,
		Endpoint: EndpointSubmitAnalysis,
		JobID:    job.ID,
		Refs: CaseRefs{
			PatientRef: up.PatientRef,
			DoctorRef:  up.DoctorRef,
			ClinicRef:  up.ClinicRef,
		},
		StatusCode:  200,
		Billable:    true,
		RequestedAt: now,
	})
	if idemKey != "" {
		s.remember(ctx, t, idemKey, job.ID)
	}

	observability.Submissions.WithLabelValues(observability.OutcomeOK).Inc()
	return &Submission{JobID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt}, nil
}

// Replay returns the job recorded for (tenant, idemKey), if the record is
// still live and the job still exists. found is false otherwise.
func (s *SubmissionService) Replay(ctx context.Context, t domain.Tenant, idemKey string) (sub *Submission, found bool, err error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, t.CompanyID, idemKey, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency: %w", err)
	}
	job, err := repo.GetJobForCompany(ctx, s.DB, rec.JobID, t.CompanyID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load replayed job: %w", err)
	}
	observability.Submissions.WithLabelValues(observability.OutcomeReplay).Inc()
	return &Submission{JobID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt, Replayed: true}, true, nil
}

// HasReplay reports whether a live idempotency record exists for
// (tenant, key). It backs the idempotency middleware.
func (s *SubmissionService) HasReplay(ctx context.Context, t domain.Tenant, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, t.CompanyID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *SubmissionService) enqueue(ctx context.Context, msg queue.Message) {
	if s.Queue == nil {
		log.Warn().Str("job_id", msg.JobID).Msg("no queue configured; job left pending")
		return
	}
	spawn(ctx, s.Background, "queue_publish", func(ctx context.Context) error {
		if err := s.Queue.Publish(ctx, msg); err != nil {
			observability.QueuePublishes.WithLabelValues(observability.OutcomeError).Inc()
			return fmt.Errorf("publish job %s company=%s: %w", msg.JobID, msg.CompanyID, err)
		}
		observability.QueuePublishes.WithLabelValues(observability.OutcomeOK).Inc()
		return nil
	})
}

func (s *SubmissionService) recordUsage(ctx context.Context, e UsageEntry) {
	if s.Usage != nil {
		s.Usage.Record(ctx, e)
	}
}

// discardImage is the compensating delete for a failed job insert.
func (s *SubmissionService) discardImage(ctx context.Context, t domain.Tenant, objectPath string) {
	if err := s.Images.Delete(context.WithoutCancel(ctx), objectPath); err != nil {
		observability.BlobCleanups.WithLabelValues(observability.OutcomeError).Inc()
		log.Error().Err(err).
			Str("company_id", t.CompanyID).
			Str("image_path", objectPath).
			Msg("orphaned image after failed job insert")
		return
	}
	observability.BlobCleanups.WithLabelValues(observability.OutcomeOK).Inc()
}

func (s *SubmissionService) remember(ctx context.Context, t domain.Tenant, key, jobID string) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if _, err := repo.CreateIdempotency(ctx, s.DB, t.CompanyID, key, jobID, ttl); err != nil {
		log.Warn().Err(err).
			Str("company_id", t.CompanyID).
			Str("job_id", jobID).
			Msg("idempotency record not stored")
	}
}

func (s *SubmissionService) jobTTL() time.Duration {
	if s.JobTTL <= 0 {
		return defaultJobTTL
	}
	return s.JobTTL
}

func (s *SubmissionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ObjectPath builds "<company>/<unix millis>-<8 random hex>.<ext>". The
// tenant directory scopes listing and lifecycle rules; the random part keeps
// paths from being guessed or colliding. ext comes from filename, lowercased
// and restricted to [a-z0-9], falling back to "jpg".
func ObjectPath(companyID, filename string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%d-%s.%s", companyID, now.UnixMilli(), suffix, extension(filename))
}

func extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" || len(ext) > maxExtensionLen {
		return defaultExtension
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}
	return ext
}
