// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the gateway's HTTP instrumentation. Requests are counted by
// route and by outcome, where the outcome is the envelope error code
// (IMAGE_TOO_LARGE, JOB_NOT_FOUND, RATE_LIMITED, ...) so dashboards can split
// client mistakes from gateway faults without parsing logs. Label values come
// from fixed sets: registered routes, status codes and the envelope codes.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// unmatchedRoute labels requests that matched no route, so scans of random
	// URLs cannot grow the label set.
	unmatchedRoute = "unmatched"
	// outcomeOK labels requests that completed without an error envelope.
	outcomeOK = "OK"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests by method, route, status and envelope outcome.",
		},
		[]string{"method", "route", "status", "outcome"},
	)

	// Submissions stream up to an image ceiling before answering, so the
	// buckets reach further than a plain JSON API needs.
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)

	// Declared body size; for submit-analysis this is dominated by the image.
	httpRequestBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_body_bytes",
			Help:    "Declared HTTP request body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8), // 16KiB .. 256MiB
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpRequestBytes)
}

// Metrics instruments every request. Mount it before Auth so rejected
// credentials and rate-limited calls are counted with their codes.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		status := c.Writer.Status()

		httpRequests.WithLabelValues(method, route, strconv.Itoa(status), requestOutcome(c, status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpRequestBytes.WithLabelValues(route).Observe(float64(n))
		}
	}
}

// requestOutcome is the envelope code when one was written, OK for success,
// and HTTP_<status> for failures that bypassed the envelope (health 503,
// body limits hit outside a handler).
func requestOutcome(c *gin.Context, status int) string {
	if code := ErrorCodeFrom(c); code != "" {
		return code
	}
	if status < 400 {
		return outcomeOK
	}
	return "HTTP_" + strconv.Itoa(status)
}
