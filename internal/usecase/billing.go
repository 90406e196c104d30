package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/metrics"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v76"
)

// BillingUsecase reconciles local entitlement state with the payment
// provider's event stream. Every mutation goes through a repository method
// that is atomic per user and safe to apply twice; the webhook_events ledger
// on top makes replayed deliveries explicit.
type BillingUsecase struct {
	subs   repository.SubscriptionRepository
	orders repository.OrderRepository
	events repository.WebhookEventRepository
	logger *slog.Logger
}

func NewBillingUsecase(
	subs repository.SubscriptionRepository,
	orders repository.OrderRepository,
	events repository.WebhookEventRepository,
	logger *slog.Logger,
) *BillingUsecase {
	return &BillingUsecase{
		subs:   subs,
		orders: orders,
		events: events,
		logger: logger.With("component", "billing"),
	}
}

// HandleEvent applies one verified provider event. The caller has already
// checked the signature; nothing here trusts the payload beyond that.
func (u *BillingUsecase) HandleEvent(ctx context.Context, event stripe.Event) error {
	start := time.Now()

	proceed, err := u.events.Begin(ctx, event.ID, string(event.Type), event.Data.Raw)
	if err != nil {
		return fmt.Errorf("record event %s: %w", event.ID, err)
	}
	if !proceed {
		u.logger.InfoContext(ctx, "duplicate webhook delivery ignored",
			"event_id", event.ID, "type", event.Type)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "duplicate").Inc()
		return nil
	}

	handled, err := u.dispatch(ctx, event)
	if err != nil {
		// The provider will redeliver on 5xx and the sweeper retries after
		// that; either way the failure is on record for reconciliation.
		if markErr := u.events.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			u.logger.ErrorContext(ctx, "mark event failed", "event_id", event.ID, "error", markErr)
		}
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		return err
	}

	if handled {
		err = u.events.MarkProcessed(ctx, event.ID)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	} else {
		u.logger.InfoContext(ctx, "unhandled webhook event type acknowledged",
			"event_id", event.ID, "type", event.Type)
		err = u.events.MarkSkipped(ctx, event.ID)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "skipped").Inc()
	}
	if err != nil {
		return fmt.Errorf("finalize event %s: %w", event.ID, err)
	}

	metrics.WebhookProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Reapply re-runs a previously failed, already-recorded event (sweeper path).
func (u *BillingUsecase) Reapply(ctx context.Context, stored *domain.WebhookEvent) error {
	event := stripe.Event{
		ID:   stored.ID,
		Type: stripe.EventType(stored.Type),
		Data: &stripe.EventData{Raw: stored.Payload},
	}

	handled, err := u.dispatch(ctx, event)
	if err != nil {
		if markErr := u.events.MarkFailed(ctx, stored.ID, err.Error()); markErr != nil {
			u.logger.ErrorContext(ctx, "mark event failed", "event_id", stored.ID, "error", markErr)
		}
		return err
	}
	if handled {
		return u.events.MarkProcessed(ctx, stored.ID)
	}
	return u.events.MarkSkipped(ctx, stored.ID)
}

func (u *BillingUsecase) dispatch(ctx context.Context, event stripe.Event) (handled bool, err error) {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return false, fmt.Errorf("parse checkout session: %w", err)
		}
		switch session.Mode {
		case stripe.CheckoutSessionModeSubscription:
			return true, u.applySubscriptionCheckout(ctx, &session)
		case stripe.CheckoutSessionModePayment:
			return true, u.applyPurchase(ctx, &session)
		default:
			u.logger.WarnContext(ctx, "checkout session in unexpected mode",
				"session_id", session.ID, "mode", session.Mode)
			return false, nil
		}

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, fmt.Errorf("parse subscription: %w", err)
		}
		return true, u.applySubscriptionUpdate(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, fmt.Errorf("parse subscription: %w", err)
		}
		at := time.Now()
		if sub.CanceledAt > 0 {
			at = time.Unix(sub.CanceledAt, 0)
		}
		if err := u.subs.Cancel(ctx, sub.ID, at); err != nil {
			if errors.Is(err, domain.ErrSubscriptionNotFound) {
				// Nothing local to revert; acknowledge rather than retry forever.
				u.logger.WarnContext(ctx, "deletion for unknown subscription", "stripe_subscription_id", sub.ID)
				return true, nil
			}
			return false, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
		}
		return true, nil

	case "invoice.payment_succeeded":
		return u.applyInvoiceOutcome(ctx, event, true)

	case "invoice.payment_failed":
		return u.applyInvoiceOutcome(ctx, event, false)

	case "payment_intent.succeeded":
		// Order bookkeeping keys off checkout.session.completed; this event
		// only confirms funds movement.
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return false, fmt.Errorf("parse payment intent: %w", err)
		}
		u.logger.InfoContext(ctx, "payment intent succeeded",
			"payment_intent_id", pi.ID, "amount_cents", pi.Amount)
		return true, nil

	default:
		// Forward compatibility: unknown types are acknowledged, not errors.
		return false, nil
	}
}

func (u *BillingUsecase) applySubscriptionCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := session.Metadata["user_id"]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	if userID == "" {
		return fmt.Errorf("checkout session %s: no user reference", session.ID)
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return fmt.Errorf("checkout session %s: subscription mode without subscription id", session.ID)
	}

	plan := domain.Tier(session.Metadata["plan"])
	if !plan.Valid() || plan == domain.TierFree {
		plan = domain.TierPremium
	}

	input := repository.ApplySubscriptionCheckoutInput{
		UserID:               userID,
		StripeSubscriptionID: session.Subscription.ID,
		Plan:                 plan,
		PriceCents:           session.AmountTotal,
		Currency:             string(session.Currency),
		InvitationCode:       NormalizeCode(session.Metadata["invitation_code"]),
	}
	if session.Subscription.CurrentPeriodStart > 0 {
		t := time.Unix(session.Subscription.CurrentPeriodStart, 0)
		input.CurrentPeriodStart = &t
	}
	if session.Subscription.CurrentPeriodEnd > 0 {
		t := time.Unix(session.Subscription.CurrentPeriodEnd, 0)
		input.CurrentPeriodEnd = &t
	}

	if err := u.subs.ApplyCheckout(ctx, input); err != nil {
		return fmt.Errorf("apply subscription checkout %s: %w", session.ID, err)
	}

	u.logger.InfoContext(ctx, "subscription activated",
		"user_id", userID, "plan", plan, "stripe_subscription_id", session.Subscription.ID)
	return nil
}

func (u *BillingUsecase) applyPurchase(ctx context.Context, session *stripe.CheckoutSession) error {
	productID := session.Metadata["product_id"]
	buyerID := session.Metadata["buyer_id"]
	sellerID := session.Metadata["seller_id"]
	if productID == "" || buyerID == "" || sellerID == "" {
		return fmt.Errorf("checkout session %s: incomplete purchase metadata", session.ID)
	}

	fees := domain.ComputeFees(session.AmountTotal)

	created, err := u.orders.ApplyPurchase(ctx, repository.ApplyPurchaseInput{
		OrderID:           ulid.Make().String(),
		DebitTxID:         ulid.Make().String(),
		CreditTxID:        ulid.Make().String(),
		CheckoutSessionID: session.ID,
		ProductID:         productID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		AmountCents:       session.AmountTotal,
		Currency:          string(session.Currency),
		Fees:              fees,
	})
	if err != nil {
		return fmt.Errorf("apply purchase %s: %w", session.ID, err)
	}
	if !created {
		u.logger.InfoContext(ctx, "purchase already recorded", "session_id", session.ID)
		return nil
	}

	u.logger.InfoContext(ctx, "purchase recorded",
		"session_id", session.ID, "product_id", productID,
		"amount_cents", session.AmountTotal, "seller_net_cents", fees.SellerNetCents)
	return nil
}

func (u *BillingUsecase) applySubscriptionUpdate(ctx context.Context, sub *stripe.Subscription) error {
	input := repository.UpdateSubscriptionInput{
		StripeSubscriptionID: sub.ID,
		Status:               mapSubscriptionStatus(sub.Status),
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0)
		input.CurrentPeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		input.CurrentPeriodEnd = &t
	}

	err := u.subs.UpdateFromProvider(ctx, input)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		// Update arrived before the checkout event, or for a cancelled row.
		// Fail so it is retried once the checkout lands.
		return fmt.Errorf("subscription %s not found locally: %w", sub.ID, err)
	}
	return err
}

func (u *BillingUsecase) applyInvoiceOutcome(ctx context.Context, event stripe.Event, succeeded bool) (bool, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return false, fmt.Errorf("parse invoice: %w", err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		// One-off invoice; nothing to reconcile.
		return true, nil
	}

	if succeeded {
		err := u.subs.RecordPaymentSuccess(ctx, inv.Subscription.ID)
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			// First invoice often precedes the checkout event. Nothing to reset.
			return true, nil
		}
		return err == nil, err
	}

	failures, movedPastDue, err := u.subs.RecordPaymentFailure(ctx, inv.Subscription.ID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		u.logger.WarnContext(ctx, "payment failure for unknown subscription",
			"stripe_subscription_id", inv.Subscription.ID)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	u.logger.WarnContext(ctx, "invoice payment failed",
		"stripe_subscription_id", inv.Subscription.ID,
		"consecutive_failures", failures, "past_due", movedPastDue)
	return true, nil
}

// CurrentSubscription returns the user's latest subscription, or nil if they
// never had one.
func (u *BillingUsecase) CurrentSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := u.subs.FindCurrentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}

func mapSubscriptionStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return domain.SubscriptionCancelled
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionPastDue
	default:
		return domain.SubscriptionActive
	}
}
