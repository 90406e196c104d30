package usecase

import (
	"context"
	"fmt"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
)

// EntitlementUsecase owns the tier-to-ceiling mapping. Tier changes are
// always explicit events (checkout, cancellation, invitation) — never
// inferred from usage.
type EntitlementUsecase struct {
	users repository.UserRepository
}

func NewEntitlementUsecase(users repository.UserRepository) *EntitlementUsecase {
	return &EntitlementUsecase{users: users}
}

func (u *EntitlementUsecase) ApplyTier(ctx context.Context, userID string, tier domain.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("unknown tier %q", tier)
	}
	if err := u.users.ApplyTier(ctx, userID, tier); err != nil {
		return fmt.Errorf("apply tier: %w", err)
	}
	return nil
}

func (u *EntitlementUsecase) Limits(ctx context.Context, userID string) (*domain.UserLimits, error) {
	limits, err := u.users.GetLimits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get limits: %w", err)
	}
	return limits, nil
}

// CheckCeiling is the advisory pre-flight check. The write paths carry their
// own transactional guard; this exists so callers can fail fast with a clear
// error before starting a checkout or upload.
func (u *EntitlementUsecase) CheckCeiling(ctx context.Context, userID string, resource domain.Resource) error {
	limits, err := u.users.GetLimits(ctx, userID)
	if err != nil {
		return fmt.Errorf("get limits: %w", err)
	}

	switch resource {
	case domain.ResourceProducts:
		if !domain.WithinCeiling(limits.CurrentProducts, limits.MaxProducts) {
			return domain.ErrCeilingExceeded
		}
	case domain.ResourcePurchases:
		if !domain.WithinCeiling(limits.PurchasesThisPeriod, limits.MaxPurchases) {
			return domain.ErrCeilingExceeded
		}
	default:
		return fmt.Errorf("unknown resource %q", resource)
	}
	return nil
}
