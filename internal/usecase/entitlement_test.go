package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/usecase"
)

func TestApplyTier_UnknownTier_Rejected(t *testing.T) {
	uc := usecase.NewEntitlementUsecase(&fakeUserRepo{})

	if err := uc.ApplyTier(context.Background(), "user-1", "platinum"); err == nil {
		t.Fatal("unknown tier must be rejected before touching storage")
	}
}

func TestApplyTier_ValidTier_Delegates(t *testing.T) {
	var appliedTier domain.Tier
	users := &fakeUserRepo{
		applyTier: func(_ context.Context, _ string, tier domain.Tier) error {
			appliedTier = tier
			return nil
		},
	}

	if err := usecase.NewEntitlementUsecase(users).ApplyTier(context.Background(), "user-1", domain.TierPremium); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appliedTier != domain.TierPremium {
		t.Errorf("applied tier = %q, want premium", appliedTier)
	}
}

func TestCheckCeiling_ProductsAtLimit_Exceeded(t *testing.T) {
	users := &fakeUserRepo{
		getLimits: func(_ context.Context, _ string) (*domain.UserLimits, error) {
			return &domain.UserLimits{MaxProducts: 1, CurrentProducts: 1}, nil
		},
	}

	err := usecase.NewEntitlementUsecase(users).CheckCeiling(context.Background(), "user-1", domain.ResourceProducts)
	if !errors.Is(err, domain.ErrCeilingExceeded) {
		t.Fatalf("err = %v, want ErrCeilingExceeded", err)
	}
}

func TestCheckCeiling_UnlimitedPlan_NeverExceeded(t *testing.T) {
	users := &fakeUserRepo{
		getLimits: func(_ context.Context, _ string) (*domain.UserLimits, error) {
			return &domain.UserLimits{
				MaxProducts:         domain.Unlimited,
				MaxPurchases:        domain.Unlimited,
				CurrentProducts:     10_000,
				PurchasesThisPeriod: 10_000,
			}, nil
		},
	}

	uc := usecase.NewEntitlementUsecase(users)
	if err := uc.CheckCeiling(context.Background(), "user-1", domain.ResourceProducts); err != nil {
		t.Errorf("products: unexpected error %v", err)
	}
	if err := uc.CheckCeiling(context.Background(), "user-1", domain.ResourcePurchases); err != nil {
		t.Errorf("purchases: unexpected error %v", err)
	}
}

func TestCheckCeiling_PurchasesUnderLimit_OK(t *testing.T) {
	users := &fakeUserRepo{
		getLimits: func(_ context.Context, _ string) (*domain.UserLimits, error) {
			return &domain.UserLimits{MaxPurchases: 50, PurchasesThisPeriod: 49}, nil
		},
	}

	if err := usecase.NewEntitlementUsecase(users).CheckCeiling(context.Background(), "user-1", domain.ResourcePurchases); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
