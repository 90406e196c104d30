package domain

import (
	"errors"
	"time"
)

var ErrCeilingExceeded = errors.New("plan ceiling exceeded")

// Tier is the ordered entitlement level of a user.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Unlimited marks a ceiling that is never enforced.
const Unlimited = -1

// Plan is the fixed ceiling tuple a tier grants. Purchases are metered per
// calendar month.
type Plan struct {
	Tier         Tier
	MaxProducts  int
	MaxPurchases int
}

var plans = map[Tier]Plan{
	TierFree:       {Tier: TierFree, MaxProducts: 1, MaxPurchases: 1},
	TierPremium:    {Tier: TierPremium, MaxProducts: 25, MaxPurchases: 50},
	TierEnterprise: {Tier: TierEnterprise, MaxProducts: Unlimited, MaxPurchases: Unlimited},
}

// PlanFor returns the plan table entry for a tier, falling back to free for
// anything unrecognized so a bad value can never widen ceilings.
func PlanFor(tier Tier) Plan {
	if p, ok := plans[tier]; ok {
		return p
	}
	return plans[TierFree]
}

func (t Tier) Valid() bool {
	_, ok := plans[t]
	return ok
}

// WithinCeiling reports whether one more unit fits under max.
func WithinCeiling(current, max int) bool {
	return max == Unlimited || current < max
}

// UserLimits caches a user's ceilings plus current usage counters.
type UserLimits struct {
	UserID              string
	MaxProducts         int
	MaxPurchases        int
	CurrentProducts     int
	PurchasesThisPeriod int
	PeriodStartedAt     time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Resource is a metered thing a ceiling applies to.
type Resource string

const (
	ResourceProducts  Resource = "products"
	ResourcePurchases Resource = "purchases"
)
