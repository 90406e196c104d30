package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrInvalidCursor marks a pagination cursor the client should not retry.
var ErrInvalidCursor = errors.New("invalid cursor")

type ProductUsecase struct {
	products repository.ProductRepository
}

func NewProductUsecase(products repository.ProductRepository) *ProductUsecase {
	return &ProductUsecase{products: products}
}

type CreateProductInput struct {
	SellerID    string
	Title       string
	Description string
	PriceCents  int64
	Currency    string
}

func (u *ProductUsecase) Create(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.PriceCents <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = "eur"
	}

	created, err := u.products.Create(ctx, &domain.Product{
		SellerID:    input.SellerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		Currency:    currency,
		Status:      domain.ProductAvailable,
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (u *ProductUsecase) Get(ctx context.Context, id string) (*domain.Product, error) {
	return u.products.GetByID(ctx, id)
}

type ListProductsInput struct {
	SellerID string
	Cursor   string
	Limit    int
}

type ProductPage struct {
	Products   []*domain.Product
	NextCursor string
}

// List returns one keyset page, newest first. The cursor pins the position to
// (created_at, id) so concurrent inserts never shift or duplicate rows.
func (u *ProductUsecase) List(ctx context.Context, input ListProductsInput) (*ProductPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	repoInput := repository.ListProductsInput{
		SellerID: input.SellerID,
		Limit:    limit + 1, // one extra row to detect a next page
	}
	if input.Cursor != "" {
		ts, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
		}
		repoInput.CursorTime = &ts
		repoInput.CursorID = id
	}

	rows, err := u.products.List(ctx, repoInput)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	page := &ProductPage{Products: rows}
	if len(rows) > limit {
		page.Products = rows[:limit]
		last := page.Products[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

type cursorPayload struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func encodeCursor(createdAt time.Time, id string) string {
	raw, _ := json.Marshal(cursorPayload{CreatedAt: createdAt, ID: id})
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", err
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return time.Time{}, "", err
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		return time.Time{}, "", fmt.Errorf("cursor missing fields")
	}
	return p.CreatedAt, p.ID, nil
}
