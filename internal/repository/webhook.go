package repository

import (
	"context"

	"github.com/bridgezone/market-api/internal/domain"
)

type WebhookEventRepository interface {
	// Begin records the event before any processing. proceed=false means the
	// event id was seen before and already landed in a terminal state —
	// acknowledge the delivery and do nothing.
	Begin(ctx context.Context, id, eventType string, payload []byte) (proceed bool, err error)

	MarkProcessed(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, procErr string) error

	// ClaimRetryable locks a batch of failed events still under the attempt
	// cap (FOR UPDATE SKIP LOCKED, so concurrent sweepers never double-apply)
	// and increments their attempt counters.
	ClaimRetryable(ctx context.Context, limit int) ([]*domain.WebhookEvent, error)
}
