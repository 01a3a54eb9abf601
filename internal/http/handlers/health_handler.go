// Health HTTP handler.
//
// GET /health is unauthenticated and reports whether the relational store
// and the image bucket answer. Load balancers read the status line; humans
// read the body.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dental-gateway/internal/http/middleware"
)

const (
	healthHealthy  = "healthy"
	healthDegraded = "degraded"
	checkOK        = "ok"
	checkError     = "error"

	defaultHealthTimeout = 3 * time.Second
)

// CheckFunc checks one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthResponse is the body of GET /health. It is not wrapped in the
// envelope.
type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Timestamp string            `json:"timestamp" example:"2025-03-14T09:26:53Z"`
	Checks    map[string]string `json:"checks"`
}

// Health runs named dependency checks.
type Health struct {
	Database CheckFunc
	Storage  CheckFunc
	// Timeout bounds each check; zero uses 3s.
	Timeout time.Duration
	Now     func() time.Time
}

// Check godoc
//
// @ID           health
// @Summary      Dependency health
// @Description  Pings the database and the image bucket. Returns 503 with status "degraded" when either check fails.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  handlers.HealthResponse
// @Failure      503  {object}  handlers.HealthResponse
// @Router       /health [get]
func (h Health) Check(c *gin.Context) {
	checks := map[string]string{
		"database": h.run(c, "database", h.Database),
		"storage":  h.run(c, "storage", h.Storage),
	}

	status, code := healthHealthy, http.StatusOK
	for _, v := range checks {
		if v != checkOK {
			status, code = healthDegraded, http.StatusServiceUnavailable
		}
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h Health) run(c *gin.Context, name string, fn CheckFunc) string {
	if fn == nil {
		return checkOK
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		middleware.LoggerFrom(c).Warn().Str("check", name).Err(err).Msg("health check failed")
		return checkError
	}
	return checkOK
}
