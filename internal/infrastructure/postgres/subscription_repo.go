package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, user_id, stripe_subscription_id, plan, status,
	price_cents, currency, current_period_start, current_period_end,
	cancelled_at, payment_failures, created_at, updated_at`

type SubscriptionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSubscriptionRepository(pool *pgxpool.Pool, logger *slog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool, logger: logger.With("component", "subscription_repo")}
}

func (r *SubscriptionRepository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) FindCurrentByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	return scanSubscription(row)
}

// ApplyCheckout is the whole subscription-start mutation in one transaction.
// Upsert-by-external-id makes a replayed event a no-op rewrite of the same
// values rather than a second row.
func (r *SubscriptionRepository) ApplyCheckout(ctx context.Context, input repository.ApplySubscriptionCheckoutInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO subscriptions (
			user_id, stripe_subscription_id, plan, status, price_cents,
			currency, current_period_start, current_period_end
		) VALUES ($1, $2, $3, 'active', $4, $5, $6, $7)
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET status = 'active',
		    plan = EXCLUDED.plan,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    payment_failures = 0,
		    updated_at = NOW()
		RETURNING (xmax = 0)`,
		input.UserID, input.StripeSubscriptionID, input.Plan, input.PriceCents,
		input.Currency, input.CurrentPeriodStart, input.CurrentPeriodEnd,
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	if err := applyTierTx(ctx, tx, input.UserID, input.Plan); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET subscription_status = 'active', updated_at = NOW() WHERE id = $1`,
		input.UserID); err != nil {
		return fmt.Errorf("activate user: %w", err)
	}

	if input.InvitationCode != "" {
		_, err := tx.Exec(ctx, `
			UPDATE invitation_codes
			SET uses = uses + 1, updated_at = NOW()
			WHERE code = $1 AND (max_uses = -1 OR uses < max_uses)`,
			input.InvitationCode)
		if err != nil {
			return fmt.Errorf("consume invitation: %w", err)
		}
	}

	// Notify only on first activation, not on replays.
	if created {
		if err := insertNotification(ctx, tx, input.UserID,
			domain.NotificationSubscriptionStarted,
			fmt.Sprintf("Your %s subscription is now active.", input.Plan)); err != nil {
			return err
		}
	} else {
		r.logger.InfoContext(ctx, "subscription checkout replayed",
			"stripe_subscription_id", input.StripeSubscriptionID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply checkout: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) UpdateFromProvider(ctx context.Context, input repository.UpdateSubscriptionInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE stripe_subscription_id = $1 FOR UPDATE`,
		input.StripeSubscriptionID)
	sub, err := scanSubscription(row)
	if err != nil {
		return err
	}

	// cancelled is terminal: provider updates for a cancelled row are stale
	// deliveries and must not resurrect it.
	if !sub.CanTransitionTo(input.Status) {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2,
		    current_period_start = COALESCE($3, current_period_start),
		    current_period_end = COALESCE($4, current_period_end),
		    updated_at = NOW()
		WHERE id = $1`,
		sub.ID, input.Status,
		input.CurrentPeriodStart, input.CurrentPeriodEnd); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	userID := sub.UserID

	userStatus := domain.AccountActive
	switch input.Status {
	case domain.SubscriptionPastDue:
		userStatus = domain.AccountPastDue
	case domain.SubscriptionCancelled:
		userStatus = domain.AccountCancelled
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET subscription_status = $2, updated_at = NOW() WHERE id = $1`,
		userID, userStatus); err != nil {
		return fmt.Errorf("propagate status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Cancel(ctx context.Context, stripeSubscriptionID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', cancelled_at = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'cancelled'
		RETURNING user_id`,
		stripeSubscriptionID, at)

	var userID string
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Already cancelled (replay) or unknown. Distinguish for the caller.
			if _, ferr := r.FindByStripeID(ctx, stripeSubscriptionID); ferr != nil {
				return ferr
			}
			return nil
		}
		return fmt.Errorf("cancel subscription: %w", err)
	}

	if err := applyTierTx(ctx, tx, userID, domain.TierFree); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET subscription_status = 'cancelled', updated_at = NOW() WHERE id = $1`,
		userID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	if err := insertNotification(ctx, tx, userID,
		domain.NotificationSubscriptionCancelled,
		"Your subscription has ended. Your account is back on the free plan."); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) RecordPaymentFailure(ctx context.Context, stripeSubscriptionID string) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET payment_failures = payment_failures + 1, updated_at = NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'cancelled'
		RETURNING user_id, payment_failures`,
		stripeSubscriptionID)

	var userID string
	var failures int
	if err := row.Scan(&userID, &failures); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, domain.ErrSubscriptionNotFound
		}
		return 0, false, fmt.Errorf("record payment failure: %w", err)
	}

	movedPastDue := failures >= domain.PaymentFailureLimit
	if movedPastDue {
		if _, err := tx.Exec(ctx, `
			UPDATE subscriptions SET status = 'past_due', updated_at = NOW()
			WHERE stripe_subscription_id = $1 AND status = 'active'`,
			stripeSubscriptionID); err != nil {
			return 0, false, fmt.Errorf("mark past due: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET subscription_status = 'past_due', updated_at = NOW() WHERE id = $1`,
			userID); err != nil {
			return 0, false, fmt.Errorf("propagate past due: %w", err)
		}
		if err := insertNotification(ctx, tx, userID,
			domain.NotificationSubscriptionPastDue,
			"We could not collect your last payments. Please update your payment method."); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit payment failure: %w", err)
	}
	return failures, movedPastDue, nil
}

func (r *SubscriptionRepository) RecordPaymentSuccess(ctx context.Context, stripeSubscriptionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET payment_failures = 0,
		    status = CASE WHEN status = 'past_due' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'cancelled'
		RETURNING user_id`,
		stripeSubscriptionID)

	var userID string
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSubscriptionNotFound
		}
		return fmt.Errorf("record payment success: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET subscription_status = 'active', updated_at = NOW()
		WHERE id = $1 AND subscription_status = 'past_due'`,
		userID); err != nil {
		return fmt.Errorf("reactivate user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit payment success: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, userID string, kind domain.NotificationKind, body string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO notifications (user_id, kind, body) VALUES ($1, $2, $3)`,
		userID, kind, body)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.StripeSubscriptionID, &s.Plan, &s.Status,
		&s.PriceCents, &s.Currency, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.CancelledAt, &s.PaymentFailures, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &s, nil
}
