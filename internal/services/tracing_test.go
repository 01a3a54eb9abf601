package services

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/observability"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	return rec
}

// endedSpan returns the single ended span called name.
func endedSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	var found []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == name {
			found = append(found, s)
		}
	}
	if len(found) != 1 {
		t.Fatalf("spans named %q = %d; want 1", name, len(found))
	}
	return found[0]
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestSubmit_SpanCarriesTenantAndJob(t *testing.T) {
	rec := recordSpans(t)
	f := newSubmitFixture(t)

	sub, err := f.svc.Submit(context.Background(), tenantA, jpegUpload(), "", "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.runner.Wait()

	s := endedSpan(t, rec, "SubmissionService.Submit")
	if got := spanAttr(s, string(observability.AttrCompanyID)); got != tenantA.CompanyID {
		t.Fatalf("company_id = %q; want %q", got, tenantA.CompanyID)
	}
	if got := spanAttr(s, string(observability.AttrJobID)); got != sub.JobID {
		t.Fatalf("job_id = %q; want %q", got, sub.JobID)
	}
	if s.Status().Code == codes.Error {
		t.Fatalf("successful submit marked failed: %+v", s.Status())
	}
}

func TestSubmit_SpanMarksUploadFailure(t *testing.T) {
	rec := recordSpans(t)
	f := newSubmitFixture(t)
	f.svc.Images = failingStore{err: errBoom}

	if _, err := f.svc.Submit(context.Background(), tenantA, jpegUpload(), "", ""); !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	f.runner.Wait()

	s := endedSpan(t, rec, "SubmissionService.Submit")
	if s.Status().Code != codes.Error || s.Status().Description != "upload failed" {
		t.Fatalf("status = %+v", s.Status())
	}
	if got := spanAttr(s, string(observability.AttrJobID)); got != "" {
		t.Fatalf("no job exists, yet job_id = %q", got)
	}
}

func TestResult_SpanCarriesTenantJobAndStatus(t *testing.T) {
	rec := recordSpans(t)
	svc, _ := newResultService(t)
	j := seedJob(t, svc.DB, domain.Job{})

	if _, err := svc.Get(context.Background(), tenantA, j.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	s := endedSpan(t, rec, "ResultService.Get")
	want := map[string]string{
		string(observability.AttrCompanyID): tenantA.CompanyID,
		string(observability.AttrJobID):     j.ID,
		string(observability.AttrJobStatus): string(domain.JobPending),
	}
	for k, v := range want {
		if got := spanAttr(s, k); got != v {
			t.Errorf("%s = %q; want %q", k, got, v)
		}
	}
}

func TestResult_MalformedIDOpensNoSpan(t *testing.T) {
	rec := recordSpans(t)
	svc, _ := newResultService(t)

	if _, err := svc.Get(context.Background(), tenantA, "not-a-uuid"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	for _, s := range rec.Ended() {
		if s.Name() == "ResultService.Get" {
			t.Fatalf("malformed ids are rejected before tracing")
		}
	}
}
