package repository

import (
	"context"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const methodColumns = `
	id, user_id, stripe_payment_method_id, brand, last4,
	expiry_month, expiry_year, is_default, is_active, created_at`

type paymentMethodRepo struct{}

// NewPaymentMethodRepository returns a pgx-backed PaymentMethodRepository.
func NewPaymentMethodRepository() PaymentMethodRepository {
	return &paymentMethodRepo{}
}

func (r *paymentMethodRepo) FindDefault(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.PaymentMethod, error) {
	row := db.QueryRow(ctx, `
		SELECT`+methodColumns+`
		FROM payment_methods
		WHERE user_id = $1 AND is_default = true AND is_active = true`, userID)
	return scanMethod(row)
}

func (r *paymentMethodRepo) FindByExternalRef(ctx context.Context, db DBTX, userID uuid.UUID, externalRef string) (*domain.PaymentMethod, error) {
	row := db.QueryRow(ctx, `
		SELECT`+methodColumns+`
		FROM payment_methods
		WHERE user_id = $1 AND stripe_payment_method_id = $2`, userID, externalRef)
	return scanMethod(row)
}

func (r *paymentMethodRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.PaymentMethod, error) {
	rows, err := db.Query(ctx, `
		SELECT`+methodColumns+`
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.ExternalMethodRef, &m.Brand, &m.Last4,
			&m.ExpiryMonth, &m.ExpiryYear, &m.IsDefault, &m.IsActive, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment method row: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *paymentMethodRepo) CountByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payment methods: %w", err)
	}
	return n, nil
}

func (r *paymentMethodRepo) Insert(ctx context.Context, db DBTX, method *domain.PaymentMethod) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payment_methods
		  (id, user_id, stripe_payment_method_id, brand, last4,
		   expiry_month, expiry_year, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		method.ID, method.UserID, method.ExternalMethodRef, method.Brand, method.Last4,
		method.ExpiryMonth, method.ExpiryYear, method.IsDefault, method.IsActive)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", err)
	}
	return nil
}

func (r *paymentMethodRepo) ClearDefault(ctx context.Context, db DBTX, userID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE payment_methods SET is_default = false WHERE user_id = $1 AND is_default = true`, userID)
	if err != nil {
		return fmt.Errorf("clear default method: %w", err)
	}
	return nil
}

func (r *paymentMethodRepo) SetDefault(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `UPDATE payment_methods SET is_default = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set default method: %w", err)
	}
	return nil
}

func scanMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := row.Scan(
		&m.ID, &m.UserID, &m.ExternalMethodRef, &m.Brand, &m.Last4,
		&m.ExpiryMonth, &m.ExpiryYear, &m.IsDefault, &m.IsActive, &m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment method: %w", err)
	}
	return &m, nil
}
