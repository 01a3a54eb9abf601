// Package queue hands analysis jobs to the inference pipeline. Publishing is
// a one-shot handoff: the gateway never retries, and a job that was never
// delivered stays pending in the job store for an external reconciler.
package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/dental-gateway/internal/config"
)

// Message is the job descriptor consumed by the inference worker.
type Message struct {
	JobID     string `json:"job_id"`
	CompanyID string `json:"company_id"`
	ImagePath string `json:"image_path"`
}

// Publisher delivers job descriptors to the work queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Open builds the publisher selected by cfg.Driver.
func Open(cfg config.QueueConfig, redisURL string) (Publisher, error) {
	switch cfg.Driver {
	case "log", "":
		return LogPublisher{}, nil
	case "redis":
		p, err := NewRedisPublisher(redisURL, cfg.Name)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "webhook":
		return NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}

// LogPublisher only logs descriptors. Used in development when no queue
// is running.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg Message) error {
	log.Info().
		Str("job_id", msg.JobID).
		Str("company_id", msg.CompanyID).
		Str("image_path", msg.ImagePath).
		Msg("queue: job published (log driver)")
	return nil
}

func (LogPublisher) Close() error { return nil }
