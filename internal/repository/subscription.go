package repository

import (
	"context"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
)

type ApplySubscriptionCheckoutInput struct {
	UserID               string
	StripeSubscriptionID string
	Plan                 domain.Tier
	PriceCents           int64
	Currency             string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time

	// Invitation code from the checkout session metadata, if any; consumed
	// inside the same transaction.
	InvitationCode string
}

type UpdateSubscriptionInput struct {
	StripeSubscriptionID string
	Status               domain.SubscriptionStatus
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
}

type SubscriptionRepository interface {
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)
	FindCurrentByUserID(ctx context.Context, userID string) (*domain.Subscription, error)

	// ApplyCheckout runs the whole subscription-start mutation in one
	// transaction: upsert the subscription by provider id, activate the user
	// at the plan tier, rewrite ceilings, consume the invitation code, and
	// write the notification. Safe to apply twice.
	ApplyCheckout(ctx context.Context, input ApplySubscriptionCheckoutInput) error

	// UpdateFromProvider applies a provider-side status/period change and
	// propagates the status to the user row. Transitions the status machine
	// forbids (anything out of cancelled) are acknowledged as no-ops.
	UpdateFromProvider(ctx context.Context, input UpdateSubscriptionInput) error

	// Cancel marks the subscription cancelled and reverts the user to the
	// free plan's tier and ceilings, in one transaction.
	Cancel(ctx context.Context, stripeSubscriptionID string, at time.Time) error

	// RecordPaymentFailure increments the consecutive-failure counter and,
	// at domain.PaymentFailureLimit, moves subscription and user to
	// past_due. Reports the resulting counter and whether the move happened.
	RecordPaymentFailure(ctx context.Context, stripeSubscriptionID string) (failures int, movedPastDue bool, err error)

	// RecordPaymentSuccess resets the failure counter and re-activates a
	// past_due subscription.
	RecordPaymentSuccess(ctx context.Context, stripeSubscriptionID string) error
}
