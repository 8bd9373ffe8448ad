package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `
	id, username, email, phone,
	wallet_balance, total_earned, total_loaded, referral_earnings, referral_count,
	auto_reload, auto_reload_amount, auto_reload_threshold,
	stripe_customer_id, is_active, created_at, updated_at`

type accountRepo struct{}

// NewAccountRepository returns a pgx-backed AccountRepository.
func NewAccountRepository() AccountRepository {
	return &accountRepo{}
}

func (r *accountRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT`+accountColumns+` FROM users WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *accountRepo) FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT`+accountColumns+` FROM users WHERE username = $1`, username)
	return scanAccount(row)
}

func (r *accountRepo) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT`+accountColumns+` FROM users WHERE email = $1`, email)
	return scanAccount(row)
}

func (r *accountRepo) FindByCustomerRef(ctx context.Context, db DBTX, customerRef string) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT`+accountColumns+` FROM users WHERE stripe_customer_id = $1`, customerRef)
	return scanAccount(row)
}

func (r *accountRepo) LockForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRow(ctx, `SELECT`+accountColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (r *accountRepo) Create(ctx context.Context, db DBTX, acct *domain.Account, passwordHash, tagCode string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO users (id, username, email, phone, password_hash, tag_code, is_active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), true)`,
		acct.ID, acct.Username, acct.Email, acct.Phone, passwordHash, tagCode)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateAggregates builds a dynamic SET clause from the non-zero deltas so
// the arithmetic runs server-side in one statement.
func (r *accountRepo) UpdateAggregates(ctx context.Context, tx DBTX, userID uuid.UUID, delta domain.AggregateUpdate) (*domain.Account, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{}
	argIdx := 1

	add := func(column string, v int64) {
		if v == 0 {
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s + $%d", column, column, argIdx))
		args = append(args, v)
		argIdx++
	}
	add("wallet_balance", delta.WalletBalance)
	add("total_earned", delta.TotalEarned)
	add("total_loaded", delta.TotalLoaded)
	add("referral_earnings", delta.ReferralEarnings)
	add("referral_count", delta.ReferralCount)

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE users SET %s
		WHERE id = $%d
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, accountColumns)

	row := tx.QueryRow(ctx, query, args...)
	return scanAccount(row)
}

func (r *accountRepo) UpdateAutoReload(ctx context.Context, db DBTX, userID uuid.UUID, settings domain.AutoReloadSettings) (*domain.Account, error) {
	row := db.QueryRow(ctx, `
		UPDATE users
		SET auto_reload = $1, auto_reload_amount = $2, auto_reload_threshold = $3, updated_at = now()
		WHERE id = $4
		RETURNING `+accountColumns,
		settings.Enabled, settings.Amount, settings.Threshold, userID)
	return scanAccount(row)
}

func (r *accountRepo) SetCustomerRef(ctx context.Context, db DBTX, userID uuid.UUID, customerRef string) error {
	tag, err := db.Exec(ctx, `
		UPDATE users SET stripe_customer_id = $1, updated_at = now() WHERE id = $2`,
		customerRef, userID)
	if err != nil {
		return fmt.Errorf("set customer ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound(userID.String())
	}
	return nil
}

func (r *accountRepo) PasswordHashByEmail(ctx context.Context, db DBTX, email string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var hash string
	err := db.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, "", nil
		}
		return uuid.Nil, "", fmt.Errorf("query password hash: %w", err)
	}
	return id, hash, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.Phone,
		&a.WalletBalance, &a.TotalEarned, &a.TotalLoaded, &a.ReferralEarnings, &a.ReferralCount,
		&a.AutoReload.Enabled, &a.AutoReload.Amount, &a.AutoReload.Threshold,
		&a.ExternalCustomerRef, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
