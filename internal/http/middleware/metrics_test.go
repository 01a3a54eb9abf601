package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/services"
)

func TestMetrics_CountsByRouteAndOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
	})
	v1 := r.Group("/v1")
	v1.Use(Auth(func(_ context.Context, raw string) (domain.Tenant, error) {
		if raw != "dt_live" {
			return domain.Tenant{}, services.ErrInvalidAPIKey
		}
		return domain.Tenant{KeyID: "k1", CompanyID: "acme", Active: true}, nil
	}))
	v1.POST("/submit-analysis", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	v1.GET("/get-result", func(c *gin.Context) {
		SetErrorCode(c, "JOB_NOT_FOUND")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false})
	})

	const submit, result = "/v1/submit-analysis", "/v1/get-result"
	type labels struct{ method, route, status, outcome string }
	want := []labels{
		{"POST", submit, "200", outcomeOK},
		{"POST", submit, "401", "INVALID_API_KEY"},
		{"GET", result, "404", "JOB_NOT_FOUND"},
		{"GET", "/health", "503", "HTTP_503"},
		{"GET", unmatchedRoute, "404", "HTTP_404"},
	}
	before := make([]float64, len(want))
	for i, l := range want {
		before[i] = testutil.ToFloat64(httpRequests.WithLabelValues(l.method, l.route, l.status, l.outcome))
	}

	send := func(method, path, key string, body []byte) {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	send(http.MethodPost, submit, "dt_live", make([]byte, 32<<10))
	send(http.MethodPost, submit, "dt_wrong", nil)
	send(http.MethodGet, result+"?job_id=x", "dt_live", nil)
	send(http.MethodGet, "/health", "", nil)
	send(http.MethodGet, "/wp-admin/setup.php", "", nil)

	for i, l := range want {
		got := testutil.ToFloat64(httpRequests.WithLabelValues(l.method, l.route, l.status, l.outcome))
		if got != before[i]+1 {
			t.Errorf("requests%v = %v; want %v", l, got, before[i]+1)
		}
	}
	if inflight := testutil.ToFloat64(httpInflight); inflight != 0 {
		t.Fatalf("inflight = %v; want 0", inflight)
	}
	if got := testutil.CollectAndCount(httpRequestBytes); got < 1 {
		t.Fatalf("request body size was not observed for the submission")
	}
}

func TestRequestOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := requestOutcome(c, http.StatusOK); got != outcomeOK {
		t.Fatalf("2xx outcome = %q", got)
	}
	if got := requestOutcome(c, http.StatusRequestEntityTooLarge); got != "HTTP_413" {
		t.Fatalf("bare 413 outcome = %q", got)
	}
	SetErrorCode(c, "IMAGE_TOO_LARGE")
	if got := requestOutcome(c, http.StatusRequestEntityTooLarge); got != "IMAGE_TOO_LARGE" {
		t.Fatalf("enveloped 413 outcome = %q", got)
	}
}
