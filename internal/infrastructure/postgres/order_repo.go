package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// ApplyPurchase writes the order, the two ledger rows, the seller payout and
// the buyer's purchase counter in one transaction. The unique
// checkout_session_id makes replays detectable before anything is touched.
func (r *OrderRepository) ApplyPurchase(ctx context.Context, input repository.ApplyPurchaseInput) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID string
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, checkout_session_id, product_id, buyer_id, seller_id,
			amount_cents, currency, platform_fee_cents, processor_fee_cents,
			seller_net_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (checkout_session_id) DO NOTHING
		RETURNING id`,
		input.OrderID, input.CheckoutSessionID, input.ProductID, input.BuyerID,
		input.SellerID, input.AmountCents, input.Currency,
		input.Fees.PlatformCents, input.Fees.ProcessorCents, input.Fees.SellerNetCents,
	).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Replayed event: the order already exists, leave everything alone.
			return false, nil
		}
		return false, fmt.Errorf("insert order: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE products SET status = 'sold', updated_at = NOW()
		WHERE id = $1 AND status = 'available'`,
		input.ProductID)
	if err != nil {
		return false, fmt.Errorf("mark product sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, domain.ErrProductUnavailable
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO transactions (id, user_id, order_id, type, amount_cents, currency)
		VALUES ($1, $2, $3, 'debit', $4, $5)`,
		input.DebitTxID, input.BuyerID, orderID, input.AmountCents, input.Currency)
	batch.Queue(`
		INSERT INTO transactions (id, user_id, order_id, type, amount_cents, currency)
		VALUES ($1, $2, $3, 'credit', $4, $5)`,
		input.CreditTxID, input.SellerID, orderID, input.Fees.SellerNetCents, input.Currency)
	batch.Queue(`
		UPDATE users SET balance_cents = balance_cents + $2, updated_at = NOW()
		WHERE id = $1`,
		input.SellerID, input.Fees.SellerNetCents)
	batch.Queue(`
		UPDATE user_limits
		SET purchases_this_period = purchases_this_period + 1, updated_at = NOW()
		WHERE user_id = $1`,
		input.BuyerID)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return false, fmt.Errorf("apply purchase batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return false, fmt.Errorf("close purchase batch: %w", err)
	}

	if err := insertNotification(ctx, tx, input.SellerID, domain.NotificationProductSold,
		"One of your listings has been sold."); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply purchase: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, checkout_session_id, product_id, buyer_id, seller_id,
		       amount_cents, currency, platform_fee_cents, processor_fee_cents,
		       seller_net_cents, created_at
		FROM orders WHERE id = $1`, id)

	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CheckoutSessionID, &o.ProductID, &o.BuyerID, &o.SellerID,
		&o.AmountCents, &o.Currency, &o.PlatformFeeCents, &o.ProcessorFeeCents,
		&o.SellerNetCents, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, order_id, type, amount_cents, currency, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Type,
			&t.AmountCents, &t.Currency, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, nil
}
