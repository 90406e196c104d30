package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, company_name, password_hash, tier,
	subscription_status, verification_status, balance_cents, currency,
	created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, input repository.CreateUserInput) (*domain.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := insertUser(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	if err := insertLimits(ctx, tx, u.ID, input.Tier); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create user: %w", err)
	}
	return u, nil
}

// insertUser and insertLimits take pgx.Tx so RedeemInvitation can reuse them
// inside its own transaction.
func insertUser(ctx context.Context, tx pgx.Tx, input repository.CreateUserInput) (*domain.User, error) {
	query := `
		INSERT INTO users (
			email, name, company_name, password_hash, tier,
			subscription_status, verification_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	row := tx.QueryRow(ctx, query,
		input.Email, input.Name, input.CompanyName, input.PasswordHash,
		input.Tier, input.Status, input.VerificationStatus,
	)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func insertLimits(ctx context.Context, tx pgx.Tx, userID string, tier domain.Tier) error {
	plan := domain.PlanFor(tier)
	_, err := tx.Exec(ctx, `
		INSERT INTO user_limits (user_id, max_products, max_purchases, period_started_at)
		VALUES ($1, $2, $3, date_trunc('month', NOW()))
		ON CONFLICT (user_id) DO UPDATE
		SET max_products = EXCLUDED.max_products,
		    max_purchases = EXCLUDED.max_purchases,
		    updated_at = NOW()`,
		userID, plan.MaxProducts, plan.MaxPurchases)
	if err != nil {
		return fmt.Errorf("insert user limits: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *UserRepository) GetLimits(ctx context.Context, userID string) (*domain.UserLimits, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, max_products, max_purchases, current_products,
		       purchases_this_period, period_started_at, created_at, updated_at
		FROM user_limits
		WHERE user_id = $1`, userID)

	var l domain.UserLimits
	err := row.Scan(
		&l.UserID, &l.MaxProducts, &l.MaxPurchases, &l.CurrentProducts,
		&l.PurchasesThisPeriod, &l.PeriodStartedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user limits: %w", err)
	}
	return &l, nil
}

func (r *UserRepository) ApplyTier(ctx context.Context, userID string, tier domain.Tier) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyTierTx(ctx, tx, userID, tier); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply tier: %w", err)
	}
	return nil
}

func applyTierTx(ctx context.Context, tx pgx.Tx, userID string, tier domain.Tier) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET tier = $2, updated_at = NOW() WHERE id = $1`,
		userID, tier)
	if err != nil {
		return fmt.Errorf("update user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	plan := domain.PlanFor(tier)
	_, err = tx.Exec(ctx, `
		UPDATE user_limits
		SET max_products = $2, max_purchases = $3, updated_at = NOW()
		WHERE user_id = $1`,
		userID, plan.MaxProducts, plan.MaxPurchases)
	if err != nil {
		return fmt.Errorf("update user limits: %w", err)
	}
	return nil
}

func (r *UserRepository) ResetExpiredPurchaseWindows(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_limits
		SET purchases_this_period = 0,
		    period_started_at = date_trunc('month', NOW()),
		    updated_at = NOW()
		WHERE period_started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset purchase windows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.CompanyName, &u.PasswordHash, &u.Tier,
		&u.SubscriptionStatus, &u.VerificationStatus, &u.BalanceCents,
		&u.Currency, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
