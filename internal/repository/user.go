package repository

import (
	"context"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
)

type CreateUserInput struct {
	Email        string
	Name         string
	CompanyName  string
	PasswordHash *string

	Tier               domain.Tier
	Status             domain.AccountStatus
	VerificationStatus domain.VerificationStatus
}

// UseCases depend on interfaces, not the pgx implementations, so tests can
// inject fakes and the storage engine stays swappable.
type UserRepository interface {
	// Create inserts the user plus a user_limits row at the tier's ceilings
	// in one transaction. Returns domain.ErrDuplicateEmail on a unique
	// violation.
	Create(ctx context.Context, input CreateUserInput) (*domain.User, error)

	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	GetLimits(ctx context.Context, userID string) (*domain.UserLimits, error)

	// ApplyTier overwrites the user's tier and the user_limits ceilings to
	// the tier's plan values. Usage counters are preserved.
	ApplyTier(ctx context.Context, userID string, tier domain.Tier) error

	// ResetExpiredPurchaseWindows zeroes purchases_this_period for rows whose
	// metering window started before cutoff. Returns rows affected.
	ResetExpiredPurchaseWindows(ctx context.Context, cutoff time.Time) (int, error)
}
