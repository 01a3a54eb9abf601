// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file writes the error envelope for requests that middleware rejects
// before a handler runs (authentication, rate limiting, idempotency, panics).
// The shape matches the handlers package:
//
//	{"success": false, "error": {"code": "...", "message": "..."}, "request_id": "..."}
package middleware

import "github.com/gin-gonic/gin"

// Codes emitted directly by middleware.
const (
	codeMissingAPIKey         = "MISSING_API_KEY"
	codeInvalidAPIKey         = "INVALID_API_KEY"
	codeAPIKeyInactive        = "API_KEY_INACTIVE"
	codeRateLimited           = "RATE_LIMITED"
	codeInvalidIdempotencyKey = "INVALID_IDEMPOTENCY_KEY"
	codeInternal              = "INTERNAL_ERROR"
)

// errorCodeKey holds the envelope code of a failed request.
const errorCodeKey = "errorCode"

// SetErrorCode records the envelope code a request failed with. Metrics and
// the access log read it back after the handler returns.
func SetErrorCode(c *gin.Context, code string) { c.Set(errorCodeKey, code) }

// ErrorCodeFrom returns the code recorded by SetErrorCode, or "".
func ErrorCodeFrom(c *gin.Context) string { return c.GetString(errorCodeKey) }

// abortWithError stops the chain with an error envelope.
func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if rid := RequestIDFrom(c); rid != "" {
		body["request_id"] = rid
	}
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, body)
}

// RequestIDFrom returns the correlation id set by RequestID, falling back to
// the response header.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.Writer.Header().Get(requestIDHeader)
}
