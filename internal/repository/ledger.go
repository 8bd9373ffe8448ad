package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `
	id, user_id, type, amount, status, description,
	stripe_payment_intent_id, related_game_id, related_user_id,
	metadata, created_at, updated_at`

type ledgerRepo struct{}

// NewLedgerRepository returns a pgx-backed LedgerRepository.
func NewLedgerRepository() LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) Insert(ctx context.Context, db DBTX, params domain.PostEntryParams) (*domain.Entry, error) {
	meta := params.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO transactions
		  (user_id, type, amount, status, description,
		   stripe_payment_intent_id, related_game_id, related_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+entryColumns,
		params.UserID,
		string(params.Kind),
		params.Amount,
		string(params.Status),
		params.Description,
		params.ExternalChargeRef,
		params.RelatedGameID,
		params.RelatedUserID,
		meta,
	)
	return scanEntry(row)
}

func (r *ledgerRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Entry, error) {
	row := db.QueryRow(ctx, `SELECT`+entryColumns+` FROM transactions WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *ledgerRepo) FindPendingByChargeRef(ctx context.Context, db DBTX, chargeRef string) (*domain.Entry, error) {
	row := db.QueryRow(ctx, `
		SELECT`+entryColumns+`
		FROM transactions
		WHERE stripe_payment_intent_id = $1 AND status = 'pending'`, chargeRef)
	return scanEntry(row)
}

func (r *ledgerRepo) SetStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.EntryStatus) (*domain.Entry, error) {
	row := db.QueryRow(ctx, `
		UPDATE transactions SET status = $1, updated_at = now()
		WHERE id = $2
		RETURNING `+entryColumns,
		string(status), id)
	return scanEntry(row)
}

func (r *ledgerRepo) UpdateChargeRef(ctx context.Context, db DBTX, id uuid.UUID, chargeRef string) error {
	_, err := db.Exec(ctx, `
		UPDATE transactions SET stripe_payment_intent_id = $1, updated_at = now()
		WHERE id = $2`, chargeRef, id)
	if err != nil {
		return fmt.Errorf("update charge ref: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := db.Query(ctx, `
		SELECT`+entryColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntryFromRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *ledgerRepo) SumCompletedByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error) {
	var sum int64
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND status = 'completed'`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum completed entries: %w", err)
	}
	return sum, nil
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var e domain.Entry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.Status, &e.Description,
		&e.ExternalChargeRef, &e.RelatedGameID, &e.RelatedUserID,
		&e.Metadata, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return &e, nil
}

func scanEntryFromRows(rows pgx.Rows) (*domain.Entry, error) {
	var e domain.Entry
	err := rows.Scan(
		&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.Status, &e.Description,
		&e.ExternalChargeRef, &e.RelatedGameID, &e.RelatedUserID,
		&e.Metadata, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan entry row: %w", err)
	}
	return &e, nil
}
