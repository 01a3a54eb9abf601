// Package services – ResultService
//
// This file implements GET /v1/get-result. A job is only visible to the
// tenant that created it; any other tenant sees exactly what it would see for
// an id that never existed. The service only reads jobs.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/observability"
	"github.com/tbourn/dental-gateway/internal/repo"
	"github.com/tbourn/dental-gateway/internal/storage"
)

// JobResult is the caller's view of a job. Fields beyond JobID and Status
// are set only for the matching terminal status.
type JobResult struct {
	JobID            string
	Status           domain.JobStatus
	RadiographType   *string
	InferenceVersion *string
	Result           json.RawMessage
	ErrorMessage     *string
}

// ResultService answers result polls.
type ResultService struct {
	DB *gorm.DB
	// Results is the bucket holding blob results written by the worker.
	Results storage.Store
	Usage   *UsageRecorder
}

// Get returns job jobID of tenant t.
//
// Errors:
//   - ErrMissingJobID for an empty id.
//   - ErrJobNotFound when the id is malformed, unknown, or owned by another
//     tenant.
//   - A wrapped store error otherwise.
//
// A result blob that cannot be read or parsed is left out of the response;
// the job metadata is still returned.
func (s *ResultService) Get(ctx context.Context, t domain.Tenant, jobID string) (*JobResult, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrJobNotFound
	}

	ctx, span := observability.StartSpan(ctx, "ResultService.Get", t.CompanyID, observability.AttrJobID.String(jobID))
	defer span.End()

	job, err := repo.GetJobForCompany(ctx, s.DB, jobID, t.CompanyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		observability.FailSpan(span, err, "job lookup failed")
		return nil, fmt.Errorf("load job: %w", err)
	}

	if s.Usage != nil {
		s.Usage.Record(ctx, UsageEntry{
			Tenant:     t,
			Endpoint:   EndpointGetResult,
			JobID:      job.ID,
			StatusCode: 200,
			Billable:   false,
		})
	}

	out := &JobResult{JobID: job.ID, Status: job.Status}
	switch job.Status {
	case domain.JobCompleted:
		out.RadiographType = job.RadiographType
		out.InferenceVersion = job.InferenceVersion
		out.Result = s.resolve(ctx, job)
	case domain.JobFailed:
		out.ErrorMessage = job.ErrorMessage
	}
	span.SetAttributes(observability.AttrJobStatus.String(string(job.Status)))
	observability.ResultPolls.WithLabelValues(string(job.Status)).Inc()
	return out, nil
}

// resolve reads the result body. A blob path is authoritative; the inline
// column is only consulted for jobs that have no path.
func (s *ResultService) resolve(ctx context.Context, job *domain.Job) json.RawMessage {
	switch loc := job.ResultLocation().(type) {
	case domain.BlobResult:
		if s.Results == nil {
			return nil
		}
		data, err := s.Results.Get(ctx, loc.Path)
		if err != nil {
			log.Warn().Err(err).
				Str("job_id", job.ID).
				Str("company_id", job.CompanyID).
				Str("result_path", loc.Path).
				Msg("result blob unavailable; omitting result")
			return nil
		}
		if !json.Valid(data) {
			log.Warn().
				Str("job_id", job.ID).
				Str("company_id", job.CompanyID).
				Str("result_path", loc.Path).
				Msg("result blob is not valid json; omitting result")
			return nil
		}
		return json.RawMessage(data)
	case domain.InlineResult:
		return loc.JSON
	default:
		return nil
	}
}
