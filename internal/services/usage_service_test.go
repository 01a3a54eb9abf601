package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/observability"
)

func TestUsageRecorder_RecordInline(t *testing.T) {
	db := newTestDB(t)
	u := &UsageRecorder{DB: db, Now: clock}

	u.Record(context.Background(), UsageEntry{
		Tenant:     tenantA,
		Endpoint:   EndpointSubmitAnalysis,
		JobID:      "33333333-3333-3333-3333-333333333333",
		Refs:       CaseRefs{PatientRef: "P-1", ClinicRef: "   "},
		StatusCode: 200,
		Billable:   true,
	})

	var row domain.APILog
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if row.CompanyID != "company-a" || row.APIKeyID != tenantA.KeyID || !row.IsBillable || row.StatusCode != 200 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.PatientRef == nil || *row.PatientRef != "P-1" {
		t.Fatalf("patient ref = %v", row.PatientRef)
	}
	if row.DoctorRef != nil || row.ClinicRef != nil {
		t.Fatalf("empty refs must be stored as NULL: %+v", row)
	}
	if row.RequestTimestamp.Sub(fixedNow).Abs() > time.Second || row.ResponseTimestamp == nil {
		t.Fatalf("timestamps: %v %v", row.RequestTimestamp, row.ResponseTimestamp)
	}
}

func TestUsageRecorder_LongRefsStoredWhole(t *testing.T) {
	db := newTestDB(t)
	u := &UsageRecorder{DB: db, Now: clock}

	doctor := strings.Repeat("ß", 1000)
	u.Record(context.Background(), UsageEntry{
		Tenant:     tenantA,
		Endpoint:   EndpointSubmitAnalysis,
		Refs:       CaseRefs{DoctorRef: "  " + doctor + " "},
		StatusCode: 200,
		Billable:   true,
	})

	var row domain.APILog
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if row.DoctorRef == nil || *row.DoctorRef != doctor {
		t.Fatalf("doctor ref not stored whole")
	}
}

func TestUsageRecorder_FailureIsSwallowedAndCounted(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrator().DropTable(&domain.APILog{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	runner := background.New(2, time.Second)
	u := &UsageRecorder{DB: db, Background: runner}

	before := testutil.ToFloat64(observability.UsageLogFailures)
	u.Record(context.Background(), UsageEntry{Tenant: tenantA, Endpoint: EndpointGetResult, StatusCode: 200})
	runner.Wait()

	if got := testutil.ToFloat64(observability.UsageLogFailures); got != before+1 {
		t.Fatalf("usage failures = %v; want %v", got, before+1)
	}
	if _, failed := runner.Stats(); failed != 1 {
		t.Fatalf("runner failed = %d; want 1", failed)
	}
}

func TestUsageRecorder_Summary(t *testing.T) {
	db := newTestDB(t)
	u := &UsageRecorder{DB: db}
	ctx := context.Background()

	for i, billable := range []bool{true, true, false} {
		u.Record(ctx, UsageEntry{
			Tenant:      tenantA,
			Endpoint:    EndpointSubmitAnalysis,
			StatusCode:  200,
			Billable:    billable,
			RequestedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		})
	}
	u.Record(ctx, UsageEntry{Tenant: tenantB, Endpoint: EndpointSubmitAnalysis, Billable: true, RequestedAt: fixedNow})

	sum, err := u.Summary(ctx, "company-a", fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 3 || sum.Billable != 2 {
		t.Fatalf("summary = %+v; want 3/2", sum)
	}
}
