package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `code, tier, verification_status, account_email,
	account_name, max_uses, uses, expires_at, created_at, updated_at`

type CodeRepository struct {
	pool *pgxpool.Pool
}

func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

func (r *CodeRepository) FindInvitation(ctx context.Context, code string) (*domain.InvitationCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitation_codes WHERE code = $1`, code)
	return scanInvitation(row)
}

// RedeemInvitation locks the code row, provisions the pre-built account on
// first use, and burns one use — all in one transaction. The use counter
// only moves if the whole provisioning commits.
func (r *CodeRepository) RedeemInvitation(ctx context.Context, code string) (*domain.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitation_codes WHERE code = $1 FOR UPDATE`, code)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if inv.Expired(now) {
		return nil, domain.ErrInvalidCode
	}
	if inv.Exhausted() {
		return nil, domain.ErrCodeExhausted
	}

	user, err := findUserByEmailTx(ctx, tx, inv.AccountEmail)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user, err = insertUser(ctx, tx, repository.CreateUserInput{
			Email:              inv.AccountEmail,
			Name:               inv.AccountName,
			Tier:               inv.Tier,
			Status:             domain.AccountActive,
			VerificationStatus: inv.VerificationStatus,
		})
		if err != nil {
			return nil, err
		}
		if err := insertLimits(ctx, tx, user.ID, inv.Tier); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		// Account exists from an earlier use of a multi-use code. Re-apply
		// the bundle in case an operator edited the code since.
		if err := applyTierTx(ctx, tx, user.ID, inv.Tier); err != nil {
			return nil, err
		}
		user.Tier = inv.Tier
	}

	_, err = tx.Exec(ctx,
		`UPDATE invitation_codes SET uses = uses + 1, updated_at = NOW() WHERE code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("consume invitation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redeem invitation: %w", err)
	}
	return user, nil
}

func (r *CodeRepository) CountRecentLoginCodes(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_codes
		WHERE lower(email) = lower($1) AND created_at >= $2`,
		email, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count login codes: %w", err)
	}
	return n, nil
}

func (r *CodeRepository) CreateLoginCode(ctx context.Context, lc *domain.LoginCode) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO login_codes (email, code_hash, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		lc.Email, lc.CodeHash, lc.ExpiresAt, lc.IP, lc.UserAgent,
	).Scan(&lc.ID, &lc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create login code: %w", err)
	}
	return nil
}

func (r *CodeRepository) DeleteLoginCode(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete login code: %w", err)
	}
	return nil
}

func (r *CodeRepository) ReleaseLoginCode(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE login_codes SET used_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release login code: %w", err)
	}
	return nil
}

// ClaimLoginCode is a single conditional UPDATE: whichever request matches
// first wins, every later attempt misses the WHERE clause.
func (r *CodeRepository) ClaimLoginCode(ctx context.Context, email, codeHash string) (*domain.LoginCode, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE login_codes
		SET used_at = NOW()
		WHERE lower(email) = lower($1)
		  AND code_hash = $2
		  AND used_at IS NULL
		  AND expires_at > NOW()
		RETURNING id, email, code_hash, expires_at, used_at, ip, user_agent, created_at`,
		email, codeHash)

	var lc domain.LoginCode
	err := row.Scan(&lc.ID, &lc.Email, &lc.CodeHash, &lc.ExpiresAt, &lc.UsedAt,
		&lc.IP, &lc.UserAgent, &lc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("claim login code: %w", err)
	}
	return &lc, nil
}

func (r *CodeRepository) PurgeExpiredLoginCodes(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM login_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge login codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func findUserByEmailTx(ctx context.Context, tx pgx.Tx, email string) (*domain.User, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) FOR UPDATE`, email)
	return scanUser(row)
}

func scanInvitation(row rowScanner) (*domain.InvitationCode, error) {
	var c domain.InvitationCode
	err := row.Scan(
		&c.Code, &c.Tier, &c.VerificationStatus, &c.AccountEmail,
		&c.AccountName, &c.MaxUses, &c.Uses, &c.ExpiresAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidCode
		}
		return nil, fmt.Errorf("scan invitation code: %w", err)
	}
	return &c, nil
}
