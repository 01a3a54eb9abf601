// Package background runs fire-and-forget side effects (queue handoff,
// usage logging) off the request path. Tasks never report back to the
// caller: failures and panics are logged and counted, then dropped.
package background

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/dental-gateway/internal/observability"
)

// Task is one side effect. The context is detached from the request that
// spawned it and carries the per-task deadline.
type Task func(ctx context.Context) error

// Runner is a bounded pool of background tasks.
type Runner struct {
	sem     chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	overflow atomic.Int64
	failed   atomic.Int64
}

// New returns a runner with at most workers pooled tasks in flight, each
// bounded by timeout.
func New(workers int, timeout time.Duration) *Runner {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Runner{sem: make(chan struct{}, workers), timeout: timeout}
}

// Go schedules fn. Request cancellation does not propagate into fn, but
// values such as the trace span do. When every worker is busy fn still
// runs in its own goroutine and the overflow is counted. After Close, fn
// runs synchronously so shutdown never loses a side effect.
func (r *Runner) Go(ctx context.Context, name string, fn Task) {
	ctx = context.WithoutCancel(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.run(ctx, name, fn)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	pooled := false
	select {
	case r.sem <- struct{}{}:
		pooled = true
	default:
		r.overflow.Add(1)
		observability.BackgroundOverflow.Inc()
		log.Warn().Str("task", name).Msg("background pool saturated; running unpooled")
	}

	go func() {
		defer r.wg.Done()
		if pooled {
			defer func() { <-r.sem }()
		}
		r.run(ctx, name, fn)
	}()
}

func (r *Runner) run(ctx context.Context, name string, fn Task) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := safeCall(ctx, fn)
	if err != nil {
		r.failed.Add(1)
		log.Error().Err(err).
			Str("task", name).
			Dur("elapsed", time.Since(start)).
			Msg("background task failed")
	}
}

func safeCall(ctx context.Context, fn Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Close stops accepting pooled work and drains in-flight tasks.
func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

// Stats reports overflow and failure counts since start.
func (r *Runner) Stats() (overflow, failed int64) {
	return r.overflow.Load(), r.failed.Load()
}
