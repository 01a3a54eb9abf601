// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets the transport and caching headers of every gateway reply.
// Replies are JSON about a tenant's jobs and are read by API clients, not
// rendered by browsers, so only two things matter here:
//
//   - No intermediary or client cache may keep a reply: job results carry
//     patient data and a cached poll would also go stale.
//   - Deployments terminating HTTPS can pin clients to it with HSTS.
//
// CORS exposure of X-Request-ID and Retry-After lives with the CORS setup in
// the router.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultHSTSMaxAge applies when HSTS is on and no max age is configured.
const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge is the HSTS lifetime; <= 0 means defaultHSTSMaxAge.
	HSTSMaxAge time.Duration
}

// SecurityHeaders sets, before the handler runs, so that replies aborted by
// Auth or the rate limiter carry them too:
//
//	Cache-Control: no-store
//	X-Content-Type-Options: nosniff
//	Strict-Transport-Security: max-age=<s>; includeSubDomains   (HTTPS + EnableHSTS)
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	age := opt.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	hsts := fmt.Sprintf("max-age=%d; includeSubDomains", int64(age/time.Second))

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("X-Content-Type-Options", "nosniff")
		if opt.EnableHSTS && servedOverHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// servedOverHTTPS reports whether the client reached us over TLS, either
// directly or through a proxy. With chained proxies X-Forwarded-Proto is a
// list and the first entry is the client-facing hop.
func servedOverHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
