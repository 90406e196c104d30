package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// Begin inserts the event row, or recognizes a redelivery. A previously
// failed event gets another attempt (the provider redelivers on 5xx); a
// processed or skipped one is a duplicate and proceed=false.
func (r *WebhookEventRepository) Begin(ctx context.Context, id, eventType string, payload []byte) (bool, error) {
	var inserted string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (id, type, payload, status, attempts)
		VALUES ($1, $2, $3, 'failed', 1)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`,
		id, eventType, payload).Scan(&inserted)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("record webhook event: %w", err)
	}

	var status domain.WebhookStatus
	var attempts int
	err = r.pool.QueryRow(ctx,
		`SELECT status, attempts FROM webhook_events WHERE id = $1`, id).
		Scan(&status, &attempts)
	if err != nil {
		return false, fmt.Errorf("load webhook event: %w", err)
	}

	if status == domain.WebhookFailed && attempts < domain.WebhookEventMaxAttempts {
		_, err := r.pool.Exec(ctx,
			`UPDATE webhook_events SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return false, fmt.Errorf("bump webhook attempts: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.WebhookProcessed, nil)
}

func (r *WebhookEventRepository) MarkSkipped(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.WebhookSkipped, nil)
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id string, procErr string) error {
	return r.setStatus(ctx, id, domain.WebhookFailed, &procErr)
}

func (r *WebhookEventRepository) setStatus(ctx context.Context, id string, status domain.WebhookStatus, procErr *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, status, procErr)
	if err != nil {
		return fmt.Errorf("set webhook event status: %w", err)
	}
	return nil
}

// ClaimRetryable mirrors the job-queue claim shape: SKIP LOCKED keeps two
// sweeper instances from re-applying the same event.
func (r *WebhookEventRepository) ClaimRetryable(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE webhook_events
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = 'failed'
			  AND attempts < $1
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, payload, status, attempts, last_error, created_at, updated_at`,
		domain.WebhookEventMaxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim retryable events: %w", err)
	}
	defer rows.Close()

	var events []*domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.Status, &e.Attempts,
			&e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}
