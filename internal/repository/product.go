package repository

import (
	"context"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
)

type ListProductsInput struct {
	SellerID   string     // empty = all sellers
	CursorTime *time.Time // nil = first page
	CursorID   string     // used only when CursorTime is non-nil
	Limit      int
}

type ProductRepository interface {
	// Create inserts the product and bumps the seller's current_products
	// counter behind a ceiling guard, in one transaction. Returns
	// domain.ErrCeilingExceeded when the seller's plan is full.
	Create(ctx context.Context, p *domain.Product) (*domain.Product, error)

	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, input ListProductsInput) ([]*domain.Product, error)
}
