package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/storage"
)

func strp(s string) *string { return &s }

func seedJob(t *testing.T, db *gorm.DB, j domain.Job) domain.Job {
	t.Helper()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CompanyID == "" {
		j.CompanyID = tenantA.CompanyID
	}
	if j.APIKeyID == "" {
		j.APIKeyID = tenantA.KeyID
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	j.ImagePath = j.CompanyID + "/1-abcdef01.jpg"
	j.CreatedAt = fixedNow
	j.ExpiresAt = fixedNow.Add(time.Hour)
	if err := db.Create(&j).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return j
}

func newResultService(t *testing.T) (*ResultService, *storage.Memory) {
	t.Helper()
	db := newTestDB(t)
	results := storage.NewMemory()
	return &ResultService{DB: db, Results: results, Usage: &UsageRecorder{DB: db, Now: clock}}, results
}

func TestResult_InputErrorsAndIsolation(t *testing.T) {
	svc, _ := newResultService(t)
	ctx := context.Background()
	other := seedJob(t, svc.DB, domain.Job{CompanyID: tenantB.CompanyID, APIKeyID: tenantB.KeyID})

	cases := []struct {
		name  string
		jobID string
		want  error
	}{
		{"missing id", "", ErrMissingJobID},
		{"malformed id", "not-a-uuid", ErrJobNotFound},
		{"unknown id", uuid.NewString(), ErrJobNotFound},
		{"other tenant", other.ID, ErrJobNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Get(ctx, tenantA, tc.jobID); !errors.Is(err, tc.want) {
				t.Fatalf("Get err = %v; want %v", err, tc.want)
			}
		})
	}
	if n := countLogs(t, svc.DB, "1 = 1"); n != 0 {
		t.Fatalf("lookups that find nothing are not logged, got %d rows", n)
	}
}

func TestResult_PendingHasNoExtraFields(t *testing.T) {
	svc, _ := newResultService(t)
	j := seedJob(t, svc.DB, domain.Job{RadiographType: strp("panoramic")})

	got, err := svc.Get(context.Background(), tenantA, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobPending || got.RadiographType != nil || got.Result != nil || got.ErrorMessage != nil {
		t.Fatalf("pending result must be bare: %+v", got)
	}
	if n := countLogs(t, svc.DB, "job_id = ? AND is_billable = ? AND endpoint = ?", j.ID, false, EndpointGetResult); n != 1 {
		t.Fatalf("non-billable poll rows = %d; want 1", n)
	}
}

func TestResult_CompletedResolution(t *testing.T) {
	svc, results := newResultService(t)
	ctx := context.Background()

	blobBody := []byte(`{"findings":[{"tooth":14,"label":"caries"}]}`)
	if err := results.Put(ctx, "company-a/r1.json", blobBody, "application/json", true); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := results.Put(ctx, "company-a/bad.json", []byte("{not json"), "application/json", true); err != nil {
		t.Fatalf("put: %v", err)
	}

	blobWins := seedJob(t, svc.DB, domain.Job{
		Status:           domain.JobCompleted,
		RadiographType:   strp(domain.RadiographBitewing),
		InferenceVersion: strp("v2.3.1"),
		ResultPath:       strp("company-a/r1.json"),
		ResultJSON:       datatypes.JSON(`{"legacy":true}`),
	})
	inline := seedJob(t, svc.DB, domain.Job{
		Status:     domain.JobCompleted,
		ResultJSON: datatypes.JSON(`{"legacy":true}`),
	})
	missingBlob := seedJob(t, svc.DB, domain.Job{
		Status:           domain.JobCompleted,
		InferenceVersion: strp("v2"),
		ResultPath:       strp("company-a/gone.json"),
	})
	invalidBlob := seedJob(t, svc.DB, domain.Job{
		Status:     domain.JobCompleted,
		ResultPath: strp("company-a/bad.json"),
	})

	cases := []struct {
		name string
		id   string
		want string
	}{
		{"blob wins over inline", blobWins.ID, string(blobBody)},
		{"inline fallback", inline.ID, `{"legacy":true}`},
		{"unreadable blob omitted", missingBlob.ID, ""},
		{"invalid blob omitted", invalidBlob.ID, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tenantA, tc.id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != domain.JobCompleted || string(got.Result) != tc.want {
				t.Fatalf("result = %q; want %q", got.Result, tc.want)
			}
		})
	}

	got, _ := svc.Get(ctx, tenantA, blobWins.ID)
	if got.RadiographType == nil || *got.RadiographType != domain.RadiographBitewing ||
		got.InferenceVersion == nil || *got.InferenceVersion != "v2.3.1" {
		t.Fatalf("completed metadata missing: %+v", got)
	}
	again, _ := svc.Get(ctx, tenantA, blobWins.ID)
	if !bytes.Equal(got.Result, again.Result) {
		t.Fatalf("repeated polls must return identical results")
	}
}

func TestResult_FailedCarriesErrorMessage(t *testing.T) {
	svc, _ := newResultService(t)
	j := seedJob(t, svc.DB, domain.Job{
		Status:         domain.JobFailed,
		ErrorMessage:   strp("image unreadable"),
		RadiographType: strp(domain.RadiographUnsupported),
	})

	got, err := svc.Get(context.Background(), tenantA, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "image unreadable" || got.RadiographType != nil || got.Result != nil {
		t.Fatalf("failed result = %+v", got)
	}
}

func TestResult_StoreErrorIsNotNotFound(t *testing.T) {
	svc, _ := newResultService(t)
	if err := svc.DB.Migrator().DropTable(&domain.Job{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := svc.Get(context.Background(), tenantA, uuid.NewString())
	if err == nil || errors.Is(err, ErrJobNotFound) {
		t.Fatalf("store failure must surface as an internal error, got %v", err)
	}
}
