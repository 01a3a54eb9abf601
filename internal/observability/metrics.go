package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values shared by the domain counters.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeReplay = "replay"
)

var (
	// Submissions counts submit-analysis calls by outcome: ok, replay, or
	// the error code returned to the caller.
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_submissions_total",
			Help: "Analysis submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// QueuePublishes counts job descriptor handoffs to the work queue.
	QueuePublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_queue_publish_total",
			Help: "Queue publish attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// UsageLogFailures counts usage records that could not be written.
	UsageLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_usage_log_failures_total",
			Help: "Usage log writes that failed and were dropped.",
		},
	)

	// BlobCleanups counts compensating deletes after a failed job insert.
	BlobCleanups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_blob_cleanup_total",
			Help: "Compensating image deletes by outcome.",
		},
		[]string{"outcome"},
	)

	// ResultPolls counts get-result calls by the job status returned.
	ResultPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_result_polls_total",
			Help: "Result polls by job status.",
		},
		[]string{"status"},
	)

	// BackgroundOverflow counts side effects run outside the worker pool
	// because every worker was busy.
	BackgroundOverflow = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_background_overflow_total",
			Help: "Background tasks started outside the bounded pool.",
		},
	)
)

func init() {
	prometheus.MustRegister(Submissions, QueuePublishes, UsageLogFailures, BlobCleanups, ResultPolls, BackgroundOverflow)
}
