package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/metrics"
	"github.com/bridgezone/market-api/internal/repository"
)

type reapplier interface {
	Reapply(ctx context.Context, event *domain.WebhookEvent) error
}

// Retrier re-applies webhook events that failed during live delivery. Claims
// use row locks with SKIP LOCKED, so multiple sweeper instances never process
// the same event twice.
type Retrier struct {
	events    repository.WebhookEventRepository
	billing   reapplier
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRetrier(
	events repository.WebhookEventRepository,
	billing reapplier,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
) *Retrier {
	return &Retrier{
		events:    events,
		billing:   billing,
		logger:    logger.With("component", "retrier"),
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *Retrier) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("retrier started", "interval", r.interval, "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retrier shut down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retrier) sweep(ctx context.Context) {
	start := time.Now()

	events, err := r.events.ClaimRetryable(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("claim retryable events", "error", err)
		return
	}

	for _, event := range events {
		if err := r.billing.Reapply(ctx, event); err != nil {
			metrics.SweeperRetriedTotal.WithLabelValues("error").Inc()
			r.logger.Error("reapply event", "event_id", event.ID, "type", event.Type,
				"attempt", event.Attempts, "error", err)
			continue
		}
		metrics.SweeperRetriedTotal.WithLabelValues("ok").Inc()
		r.logger.Info("event reapplied", "event_id", event.ID, "type", event.Type)
	}

	if len(events) > 0 {
		r.logger.Info("retry sweep complete", "claimed", len(events))
	}
	metrics.SweeperCycleDuration.Observe(time.Since(start).Seconds())
}
