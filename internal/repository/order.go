package repository

import (
	"context"

	"github.com/bridgezone/market-api/internal/domain"
)

type ApplyPurchaseInput struct {
	// Ledger ids are generated by the caller so a retried transaction writes
	// the same rows.
	OrderID    string
	DebitTxID  string
	CreditTxID string

	CheckoutSessionID string
	ProductID         string
	BuyerID           string
	SellerID          string
	AmountCents       int64
	Currency          string
	Fees              domain.Fees
}

type OrderRepository interface {
	// ApplyPurchase runs the one-off purchase mutation in one transaction:
	// insert the order (keyed by checkout session id), mark the product
	// sold, write the buyer debit and seller credit ledger rows, credit the
	// seller balance, and increment the buyer's purchase counter. Returns
	// created=false when the order already exists (replayed event) without
	// touching anything.
	ApplyPurchase(ctx context.Context, input ApplyPurchaseInput) (created bool, err error)

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}
