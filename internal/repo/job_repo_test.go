package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
)

func newPendingJob(t *testing.T, db *gorm.DB, companyID string) *domain.Job {
	t.Helper()
	now := time.Now().UTC()
	j := &domain.Job{
		CompanyID: companyID,
		APIKeyID:  "k1",
		ImagePath: companyID + "/1-abcdef12.jpg",
		ExpiresAt: now.Add(time.Hour),
	}
	if err := CreateJob(context.Background(), db, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestCreateJob_ForcesPending(t *testing.T) {
	db := newRepoDB(t, &domain.Job{})
	j := &domain.Job{
		Status: domain.JobCompleted, CompanyID: "c1", APIKeyID: "k1",
		ImagePath: "c1/x.png", ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := CreateJob(context.Background(), db, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	got, err := GetJobForCompany(context.Background(), db, j.ID, "c1")
	if err != nil {
		t.Fatalf("GetJobForCompany: %v", err)
	}
	if got.Status != domain.JobPending || got.ImagePath != "c1/x.png" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestCreateJob_NoTable_Errors(t *testing.T) {
	db := newRepoDB(t)
	j := &domain.Job{CompanyID: "c1", APIKeyID: "k1", ImagePath: "p", ExpiresAt: time.Now()}
	if err := CreateJob(context.Background(), db, j); err == nil {
		t.Fatalf("expected error when jobs table is missing")
	}
}

func TestGetJobForCompany_TenantIsolation(t *testing.T) {
	db := newRepoDB(t, &domain.Job{})
	j := newPendingJob(t, db, "c1")

	if _, err := GetJobForCompany(context.Background(), db, j.ID, "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant must see ErrNotFound, got %v", err)
	}
	if _, err := GetJobForCompany(context.Background(), db, "00000000-0000-0000-0000-000000000000", "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job must be ErrNotFound, got %v", err)
	}
}

func TestWorkerLifecycle_ClaimCompleteIsMonotonic(t *testing.T) {
	db := newRepoDB(t, &domain.Job{})
	ctx := context.Background()
	j := newPendingJob(t, db, "c1")
	now := time.Now()

	won, err := ClaimJob(ctx, db, j.ID, "w1", now)
	if err != nil || !won {
		t.Fatalf("first claim should win: won=%v err=%v", won, err)
	}
	won, err = ClaimJob(ctx, db, j.ID, "w2", now)
	if err != nil || won {
		t.Fatalf("second claim must lose: won=%v err=%v", won, err)
	}

	// only the claiming worker may finish
	ok, err := CompleteJob(ctx, db, j.ID, "w2", JobOutcome{RadiographType: domain.RadiographBitewing}, now)
	if err != nil || ok {
		t.Fatalf("foreign worker completion must be rejected: ok=%v err=%v", ok, err)
	}

	ok, err = CompleteJob(ctx, db, j.ID, "w1", JobOutcome{
		RadiographType:   domain.RadiographPanoramic,
		InferenceVersion: "v2.1",
		Result:           domain.BlobResult{Path: "jobs/" + j.ID + "/result.json"},
	}, now)
	if err != nil || !ok {
		t.Fatalf("claiming worker completion: ok=%v err=%v", ok, err)
	}

	// terminal rows are immutable
	ok, err = FailJob(ctx, db, j.ID, "w1", "late failure", now)
	if err != nil || ok {
		t.Fatalf("terminal job must not transition: ok=%v err=%v", ok, err)
	}
	won, err = ClaimJob(ctx, db, j.ID, "w3", now)
	if err != nil || won {
		t.Fatalf("terminal job must not be reclaimed: won=%v err=%v", won, err)
	}

	got, err := GetJobForCompany(ctx, db, j.ID, "c1")
	if err != nil {
		t.Fatalf("GetJobForCompany: %v", err)
	}
	if got.Status != domain.JobCompleted || got.WorkerID == nil || *got.WorkerID != "w1" ||
		got.RadiographType == nil || *got.RadiographType != domain.RadiographPanoramic ||
		got.StartedAt == nil || got.CompletedAt == nil || got.ErrorMessage != nil {
		t.Fatalf("unexpected completed job: %+v", got)
	}
	if loc, ok := got.ResultLocation().(domain.BlobResult); !ok || loc.Path != "jobs/"+j.ID+"/result.json" {
		t.Fatalf("unexpected result location: %#v", got.ResultLocation())
	}
}

func TestWorkerLifecycle_InlineResultAndFailure(t *testing.T) {
	db := newRepoDB(t, &domain.Job{})
	ctx := context.Background()
	now := time.Now()

	inline := newPendingJob(t, db, "c1")
	if won, _ := ClaimJob(ctx, db, inline.ID, "w1", now); !won {
		t.Fatalf("claim failed")
	}
	ok, err := CompleteJob(ctx, db, inline.ID, "w1", JobOutcome{
		RadiographType: domain.RadiographPeriapical,
		Result:         domain.InlineResult{JSON: json.RawMessage(`{"caries":[14]}`)},
	}, now)
	if err != nil || !ok {
		t.Fatalf("inline completion: ok=%v err=%v", ok, err)
	}
	got, _ := GetJobForCompany(ctx, db, inline.ID, "c1")
	in, isInline := got.ResultLocation().(domain.InlineResult)
	if !isInline {
		t.Fatalf("expected inline result, got %#v", got.ResultLocation())
	}
	var body map[string][]int
	if err := json.Unmarshal(in.JSON, &body); err != nil || len(body["caries"]) != 1 {
		t.Fatalf("inline result readback: %s err=%v", in.JSON, err)
	}

	failed := newPendingJob(t, db, "c1")
	if ok, _ := FailJob(ctx, db, failed.ID, "w1", "never claimed", now); ok {
		t.Fatalf("pending job must not fail without claim")
	}
	if won, _ := ClaimJob(ctx, db, failed.ID, "w1", now); !won {
		t.Fatalf("claim failed")
	}
	if ok, err := FailJob(ctx, db, failed.ID, "w1", "corrupt image", now); err != nil || !ok {
		t.Fatalf("FailJob: ok=%v err=%v", ok, err)
	}
	got, _ = GetJobForCompany(ctx, db, failed.ID, "c1")
	if got.Status != domain.JobFailed || got.ErrorMessage == nil || *got.ErrorMessage != "corrupt image" {
		t.Fatalf("unexpected failed job: %+v", got)
	}
}

func TestCompleteJob_RejectsEmptyBlobPath(t *testing.T) {
	db := newRepoDB(t, &domain.Job{})
	j := newPendingJob(t, db, "c1")
	_, err := CompleteJob(context.Background(), db, j.ID, "w1", JobOutcome{Result: domain.BlobResult{}}, time.Now())
	if !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
}
