// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response envelope shared by every endpoint and the
// helpers that write it. Success and failure use one shape so clients can
// branch on `success` and `error.code` without inspecting the status line.
//
// Conventions:
//   - `fail()` centralizes error formatting and logs 5xx responses with the
//     request-scoped logger.
//   - `ok()` wraps a payload in the success envelope.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "error": { "code": "JOB_NOT_FOUND", "message": "Job not found" },
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": { "job_id": "…", "status": "pending", "created_at": "…" } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dental-gateway/internal/http/middleware"
)

// APIError is the error member of the envelope.
type APIError struct {
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"JOB_NOT_FOUND"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"Job not found"`
}

// Envelope is the body of every /v1 response.
//
// Fields:
//   - Success: true when Data is set, false when Error is set.
//   - RequestID: correlation id echoed from X-Request-ID, used to match
//     client-side errors with server logs.
type Envelope struct {
	Success   bool      `json:"success" example:"true"`
	Data      any       `json:"data,omitempty" swaggertype:"object"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// ErrorResponse documents the failure envelope in OpenAPI.
type ErrorResponse struct {
	Success   bool     `json:"success" example:"false"`
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with an error envelope.
func fail(c *gin.Context, status int, code, msg string) {
	failCause(c, status, code, msg, nil)
}

// failCause is fail with the underlying error attached to the server log.
// Only 5xx responses are logged.
func failCause(c *gin.Context, status int, code, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}

	middleware.SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, Envelope{
		Success:   false,
		Error:     &APIError{Code: code, Message: msg},
		RequestID: middleware.RequestIDFrom(c),
	})
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope around data.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: middleware.RequestIDFrom(c),
	})
}
