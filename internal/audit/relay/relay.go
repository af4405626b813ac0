// Package relay streams audit outbox rows to Kafka. Kafka consumers get
// at-least-once delivery; they deduplicate on the event ID carried in the
// payload.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custodia/internal/audit/store"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Outbox is the slice of the audit store the relay needs.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]store.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher abstracts the Kafka producer so the relay loop is testable
// without a broker.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Relay polls the outbox and publishes pending rows. Publish failures leave
// rows unmarked, so they are retried on the next tick; rows are never lost.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger

	pollInterval time.Duration
	batchSize    int
}

// Option configures the Relay.
type Option func(*Relay)

// WithPollInterval overrides the outbox poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.pollInterval = d }
}

// WithBatchSize overrides the per-tick batch size.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

// New creates a Relay.
func New(outbox Outbox, publisher Publisher, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		outbox:       outbox,
		publisher:    publisher,
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit relay tick failed", "error", err)
			}
		}
	}
}

// DrainOnce publishes one batch of pending rows. Exported for tests and for
// a final drain during shutdown.
func (r *Relay) DrainOnce(ctx context.Context) error {
	rows, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if err := r.publisher.Publish(ctx, []byte(row.ID.String()), row.Payload); err != nil {
			// Stop the batch; unmarked rows retry next tick.
			r.logger.WarnContext(ctx, "audit publish failed", "event_id", row.ID, "error", err)
			break
		}
		published = append(published, row.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return r.outbox.MarkPublished(ctx, published)
}
