package domain

import (
	"errors"
	"time"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// PaymentFailureLimit is how many consecutive failed invoices a subscription
// tolerates before it is moved to past_due.
const PaymentFailureLimit = 3

// Subscription mirrors the payment provider's subscription object. Created on
// the first successful checkout webhook, never deleted — only
// status-transitioned. cancelled is terminal: the only way back to active is
// a brand-new checkout, which creates a new row.
type Subscription struct {
	ID                   string
	UserID               string
	StripeSubscriptionID string

	Plan       Tier
	Status     SubscriptionStatus
	PriceCents int64
	Currency   string

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelledAt        *time.Time

	PaymentFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransitionTo encodes the status machine:
// active -> {active, past_due, cancelled}; past_due -> {active, cancelled};
// cancelled -> nothing.
func (s *Subscription) CanTransitionTo(next SubscriptionStatus) bool {
	if s.Status == SubscriptionCancelled {
		return false
	}
	switch next {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled:
		return true
	}
	return false
}
