// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements API key authentication. The secret is read from the
// X-API-Key header exactly as sent and handed to a verifier; on success the
// resulting tenant is stored in the Gin context for handlers to pass on
// explicitly. Nothing about the tenant lives outside the request.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/services"
)

const (
	// APIKeyHeader carries the tenant secret.
	APIKeyHeader = "X-API-Key"
	tenantKey    = "tenant"
)

// VerifyFunc resolves a raw secret to a tenant. services.AuthService.Verify
// satisfies it.
type VerifyFunc func(ctx context.Context, raw string) (domain.Tenant, error)

// Auth rejects requests without a valid, active API key.
//
// Responses:
//   - 401 MISSING_API_KEY when the header is absent or empty
//   - 401 INVALID_API_KEY when no credential matches
//   - 401 API_KEY_INACTIVE when the credential is revoked
//   - 500 INTERNAL_ERROR when the credential store fails
func Auth(verify VerifyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := verify(c.Request.Context(), c.GetHeader(APIKeyHeader))
		if err != nil {
			switch {
			case errors.Is(err, services.ErrMissingAPIKey):
				abortWithError(c, http.StatusUnauthorized, codeMissingAPIKey, "X-API-Key header is required")
			case errors.Is(err, services.ErrInvalidAPIKey):
				abortWithError(c, http.StatusUnauthorized, codeInvalidAPIKey, "Invalid API key")
			case errors.Is(err, services.ErrAPIKeyInactive):
				abortWithError(c, http.StatusUnauthorized, codeAPIKeyInactive, "API key is inactive")
			default:
				LoggerFrom(c).Error().Err(err).Msg("api key verification failed")
				abortWithError(c, http.StatusInternalServerError, codeInternal, "An unexpected error occurred")
			}
			return
		}

		c.Set(tenantKey, t)
		WithLogger(c, LoggerFrom(c).With().
			Str("company_id", t.CompanyID).
			Str("api_key_id", t.KeyID).
			Logger())
		c.Next()
	}
}

// TenantFrom returns the tenant stored by Auth.
func TenantFrom(c *gin.Context) (domain.Tenant, bool) {
	v, ok := c.Get(tenantKey)
	if !ok {
		return domain.Tenant{}, false
	}
	t, ok := v.(domain.Tenant)
	return t, ok
}
