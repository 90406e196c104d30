package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidCode          = errors.New("invitation code is invalid")
	ErrCodeExhausted        = errors.New("invitation code has already been used")
	ErrRateLimited          = errors.New("too many login code requests")
	ErrInvalidOrExpiredCode = errors.New("login code is invalid or expired")
	ErrEmailDelivery        = errors.New("could not deliver email")
)

// InvitationCode maps an opaque token to a pre-provisioned account and its
// benefits bundle. Operator-managed; immutable once exhausted.
type InvitationCode struct {
	Code string

	Tier               Tier
	VerificationStatus VerificationStatus

	// The account the code signs into. Provisioned on first redemption.
	AccountEmail string
	AccountName  string

	MaxUses   int
	Uses      int
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *InvitationCode) Exhausted() bool {
	return c.MaxUses != Unlimited && c.Uses >= c.MaxUses
}

func (c *InvitationCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// LoginCode is a one-time emailed numeric code. Only its SHA-256 hash is
// stored; IP and user agent are kept for abuse tracking.
type LoginCode struct {
	ID        string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	IP        string
	UserAgent string
	CreatedAt time.Time
}

const (
	LoginCodeTTL = 10 * time.Minute

	// Rolling window limits for RequestLoginCode, per email.
	LoginCodeWindow      = 15 * time.Minute
	LoginCodeMaxRequests = 5
)
