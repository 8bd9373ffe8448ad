package repository

import (
	"context"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const referralColumns = `
	id, referrer_id, referred_id, bonus_amount, bonus_paid, created_at, paid_at`

type referralRepo struct{}

// NewReferralRepository returns a pgx-backed ReferralRepository.
func NewReferralRepository() ReferralRepository {
	return &referralRepo{}
}

func (r *referralRepo) FindPair(ctx context.Context, db DBTX, referrerID, referredID uuid.UUID) (*domain.Referral, error) {
	row := db.QueryRow(ctx, `
		SELECT`+referralColumns+`
		FROM referrals
		WHERE referrer_id = $1 AND referred_id = $2`, referrerID, referredID)
	return scanReferral(row)
}

func (r *referralRepo) Insert(ctx context.Context, db DBTX, ref *domain.Referral) error {
	_, err := db.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, bonus_amount, bonus_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ref.ID, ref.ReferrerID, ref.ReferredID, ref.BonusAmount, ref.BonusPaid, ref.PaidAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (r *referralRepo) ListByReferrer(ctx context.Context, db DBTX, referrerID uuid.UUID) ([]domain.Referral, error) {
	rows, err := db.Query(ctx, `
		SELECT`+referralColumns+`
		FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("query referrals: %w", err)
	}
	defer rows.Close()

	var refs []domain.Referral
	for rows.Next() {
		var ref domain.Referral
		if err := rows.Scan(
			&ref.ID, &ref.ReferrerID, &ref.ReferredID,
			&ref.BonusAmount, &ref.BonusPaid, &ref.CreatedAt, &ref.PaidAt,
		); err != nil {
			return nil, fmt.Errorf("scan referral row: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func scanReferral(row pgx.Row) (*domain.Referral, error) {
	var ref domain.Referral
	err := row.Scan(
		&ref.ID, &ref.ReferrerID, &ref.ReferredID,
		&ref.BonusAmount, &ref.BonusPaid, &ref.CreatedAt, &ref.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan referral: %w", err)
	}
	return &ref, nil
}
