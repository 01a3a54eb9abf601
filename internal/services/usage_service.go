// Package services – UsageRecorder
//
// This file implements usage accounting. Every relevant gateway call leaves
// one api_logs row; submissions that create a job are billable, result polls
// are not. Recording is fire-and-forget: Record returns nothing, runs on the
// background runner, and a failed write is logged and counted, never
// propagated to the request that caused it.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/observability"
	"github.com/tbourn/dental-gateway/internal/repo"
)

// Endpoint names stored in api_logs.endpoint.
const (
	EndpointSubmitAnalysis = "submit-analysis"
	EndpointGetResult      = "get-result"
)

// CaseRefs are the caller's optional bookkeeping references. They are
// opaque to the gateway.
type CaseRefs struct {
	PatientRef string
	DoctorRef  string
	ClinicRef  string
}

// UsageEntry describes one call to be recorded.
type UsageEntry struct {
	Tenant      domain.Tenant
	Endpoint    string
	JobID       string
	Refs        CaseRefs
	StatusCode  int
	Billable    bool
	Error       string
	RequestedAt time.Time
}

// UsageRecorder writes usage rows off the request path.
type UsageRecorder struct {
	DB *gorm.DB
	// Background runs the writes. When nil, writes happen inline and are
	// still never reported to the caller.
	Background *background.Runner
	Now        func() time.Time
}

// Record schedules e to be written. It cannot fail from the caller's point
// of view.
func (u *UsageRecorder) Record(ctx context.Context, e UsageEntry) {
	if e.RequestedAt.IsZero() {
		e.RequestedAt = u.now()
	}
	spawn(ctx, u.Background, "usage_log", func(ctx context.Context) error {
		return u.write(ctx, e)
	})
}

func (u *UsageRecorder) write(ctx context.Context, e UsageEntry) error {
	responded := u.now()
	row := &domain.APILog{
		CompanyID:         e.Tenant.CompanyID,
		APIKeyID:          e.Tenant.KeyID,
		JobID:             nullable(e.JobID),
		Endpoint:          e.Endpoint,
		PatientRef:        nullable(e.Refs.PatientRef),
		DoctorRef:         nullable(e.Refs.DoctorRef),
		ClinicRef:         nullable(e.Refs.ClinicRef),
		StatusCode:        e.StatusCode,
		IsBillable:        e.Billable,
		ErrorMessage:      nullable(e.Error),
		RequestTimestamp:  e.RequestedAt.UTC(),
		ResponseTimestamp: &responded,
	}
	if err := repo.CreateAPILog(ctx, u.DB, row); err != nil {
		observability.UsageLogFailures.Inc()
		return fmt.Errorf("usage log company=%s job=%s endpoint=%s: %w",
			e.Tenant.CompanyID, e.JobID, e.Endpoint, err)
	}
	return nil
}

// Summary counts a tenant's calls in [from, to).
func (u *UsageRecorder) Summary(ctx context.Context, companyID string, from, to time.Time) (repo.UsageSummary, error) {
	return repo.SummarizeUsage(ctx, u.DB, companyID, from, to)
}

func (u *UsageRecorder) now() time.Time {
	if u.Now != nil {
		return u.Now().UTC()
	}
	return time.Now().UTC()
}

// spawn runs fn on r, or inline when r is nil. Either way the error stays
// here: it is logged and dropped.
func spawn(ctx context.Context, r *background.Runner, name string, fn background.Task) {
	if r != nil {
		r.Go(ctx, name, fn)
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Str("task", name).Msg("side effect failed")
	}
}

// nullable maps an empty string to NULL.
func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
