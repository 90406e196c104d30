package domain

import (
	"errors"
	"time"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is no longer available")
	ErrOrderNotFound      = errors.New("order not found")
)

type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductSold      ProductStatus = "sold"
)

type Product struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	PriceCents  int64
	Currency    string
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Order records a completed one-off purchase, keyed by the provider's
// checkout session id so replayed webhooks cannot create duplicates.
type Order struct {
	ID                string
	CheckoutSessionID string
	ProductID         string
	BuyerID           string
	SellerID          string

	AmountCents       int64
	Currency          string
	PlatformFeeCents  int64
	ProcessorFeeCents int64
	SellerNetCents    int64

	CreatedAt time.Time
}

type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Transaction is one ledger row. Every order produces exactly two: a buyer
// debit of the gross amount and a seller credit of the net amount.
type Transaction struct {
	ID          string
	UserID      string
	OrderID     string
	Type        TransactionType
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
}

// Fee schedule, in basis points of the gross amount. The platform keeps 5%;
// the processor's cut approximates Stripe's EU card pricing.
const (
	PlatformFeeBasisPoints  = 500
	ProcessorFeeBasisPoints = 140
	ProcessorFeeFixedCents  = 25
)

type Fees struct {
	PlatformCents  int64
	ProcessorCents int64
	SellerNetCents int64
}

// ComputeFees is the single source of truth for order fee math.
// Percentages round half-up to a cent.
func ComputeFees(amountCents int64) Fees {
	platform := (amountCents*PlatformFeeBasisPoints + 5000) / 10000
	processor := (amountCents*ProcessorFeeBasisPoints+5000)/10000 + ProcessorFeeFixedCents

	return Fees{
		PlatformCents:  platform,
		ProcessorCents: processor,
		SellerNetCents: amountCents - platform - processor,
	}
}
