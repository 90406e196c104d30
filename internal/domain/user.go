package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUnauthorized       = errors.New("unauthorized")
)

// AccountStatus tracks the billing standing of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountPending   AccountStatus = "pending"
	AccountPastDue   AccountStatus = "past_due"
	AccountCancelled AccountStatus = "cancelled"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationInReview VerificationStatus = "in_review"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type User struct {
	ID          string
	Email       string
	Name        string
	CompanyName string

	// nil for accounts provisioned through invitation codes before the
	// owner ever sets a password.
	PasswordHash *string

	Tier               Tier
	SubscriptionStatus AccountStatus
	VerificationStatus VerificationStatus

	// Seller payout accumulator, in cents.
	BalanceCents int64
	Currency     string

	CreatedAt time.Time
	UpdatedAt time.Time
}
