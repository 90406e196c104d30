package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, seller_id, title, description, price_cents,
	currency, status, created_at, updated_at`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts the listing behind a ceiling guard. The conditional counter
// UPDATE is the authoritative check: if it matches no row the seller's plan
// is full and the insert rolls back, so concurrent requests cannot overshoot.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE user_limits
		SET current_products = current_products + 1, updated_at = NOW()
		WHERE user_id = $1
		  AND (max_products = -1 OR current_products < max_products)`,
		p.SellerID)
	if err != nil {
		return nil, fmt.Errorf("reserve product slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrCeilingExceeded
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO products (seller_id, title, description, price_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, 'available')
		RETURNING `+productColumns,
		p.SellerID, p.Title, p.Description, p.PriceCents, p.Currency)

	created, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create product: %w", err)
	}
	return created, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *ProductRepository) List(ctx context.Context, input repository.ListProductsInput) ([]*domain.Product, error) {
	args := []any{}
	where := []string{"status = 'available'"}

	if input.SellerID != "" {
		args = append(args, input.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT `+productColumns+`
		FROM products
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.SellerID, &p.Title, &p.Description, &p.PriceCents,
		&p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}
