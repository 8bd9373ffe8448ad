package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

func (r *sessionRepo) Create(ctx context.Context, db DBTX, session *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, session_token, expires_at)
		VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.SessionToken, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error) {
	var s domain.Session
	err := db.QueryRow(ctx, `
		SELECT id, user_id, session_token, expires_at, created_at
		FROM sessions WHERE session_token = $1`, token).
		Scan(&s.ID, &s.UserID, &s.SessionToken, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) DeleteByToken(ctx context.Context, db DBTX, token string) error {
	_, err := db.Exec(ctx, `DELETE FROM sessions WHERE session_token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, db DBTX) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

type tagCodeRepo struct{}

// NewTagCodeRepository returns a pgx-backed TagCodeRepository.
func NewTagCodeRepository() TagCodeRepository {
	return &tagCodeRepo{}
}

func (r *tagCodeRepo) FindUnused(ctx context.Context, db DBTX, code string) (*domain.TagCode, error) {
	var tc domain.TagCode
	err := db.QueryRow(ctx, `
		SELECT id, code, is_used, used_by, created_at, used_at
		FROM tag_codes WHERE code = $1 AND is_used = false`, code).
		Scan(&tc.ID, &tc.Code, &tc.IsUsed, &tc.UsedBy, &tc.CreatedAt, &tc.UsedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query tag code: %w", err)
	}
	return &tc, nil
}

func (r *tagCodeRepo) MarkUsed(ctx context.Context, db DBTX, code string, userID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE tag_codes SET is_used = true, used_by = $1, used_at = now()
		WHERE code = $2`, userID, code)
	if err != nil {
		return fmt.Errorf("mark tag code used: %w", err)
	}
	return nil
}
