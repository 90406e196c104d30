package repository

import (
	"context"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
)

type CodeRepository interface {
	FindInvitation(ctx context.Context, code string) (*domain.InvitationCode, error)

	// RedeemInvitation atomically validates the code, provisions (or reuses)
	// the pre-built account with the code's benefits bundle, and increments
	// the use counter — all in one transaction, so a failed provisioning
	// never burns a use. Returns domain.ErrInvalidCode or
	// domain.ErrCodeExhausted.
	RedeemInvitation(ctx context.Context, code string) (*domain.User, error)

	CountRecentLoginCodes(ctx context.Context, email string, since time.Time) (int, error)
	CreateLoginCode(ctx context.Context, lc *domain.LoginCode) error

	// DeleteLoginCode rolls back a code whose delivery email failed.
	DeleteLoginCode(ctx context.Context, id string) error

	// ReleaseLoginCode returns a claimed code to unused when the sign-in it
	// authorized could not complete, so the code still works on retry.
	ReleaseLoginCode(ctx context.Context, id string) error

	// ClaimLoginCode marks the matching unused, unexpired code used and
	// returns it — a single conditional UPDATE, so a code verifies exactly
	// once. Any miss is domain.ErrInvalidOrExpiredCode.
	ClaimLoginCode(ctx context.Context, email, codeHash string) (*domain.LoginCode, error)

	PurgeExpiredLoginCodes(ctx context.Context, cutoff time.Time) (int, error)
}
