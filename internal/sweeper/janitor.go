package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
)

// Janitor owns the periodic cleanup tasks: expired login codes are purged and
// monthly purchase windows are reset. Both are idempotent, so overlapping
// runs from two instances are harmless.
type Janitor struct {
	users  repository.UserRepository
	codes  repository.CodeRepository
	logger *slog.Logger
}

func NewJanitor(users repository.UserRepository, codes repository.CodeRepository, logger *slog.Logger) *Janitor {
	return &Janitor{
		users:  users,
		codes:  codes,
		logger: logger.With("component", "janitor"),
	}
}

// PurgeLoginCodes deletes codes that have been expired for long enough that
// the request limiter no longer counts their row. A code created at T expires
// at T+TTL but still counts against the per-email window until T+Window, so
// the purge cutoff trails expiry by Window−TTL.
func (j *Janitor) PurgeLoginCodes(ctx context.Context) {
	cutoff := time.Now().Add(-(domain.LoginCodeWindow - domain.LoginCodeTTL))
	purged, err := j.codes.PurgeExpiredLoginCodes(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge login codes", "error", err)
		return
	}
	if purged > 0 {
		j.logger.Info("purged expired login codes", "count", purged)
	}
}

// ResetPurchaseWindows zeroes purchases_this_period for users whose metering
// month has rolled over.
func (j *Janitor) ResetPurchaseWindows(ctx context.Context) {
	cutoff := time.Now().AddDate(0, -1, 0)
	reset, err := j.users.ResetExpiredPurchaseWindows(ctx, cutoff)
	if err != nil {
		j.logger.Error("reset purchase windows", "error", err)
		return
	}
	if reset > 0 {
		j.logger.Info("reset purchase windows", "count", reset)
	}
}
