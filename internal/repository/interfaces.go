package repository

import (
	"context"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UnitOfWork groups reads and writes into one atomic database transaction.
// The callback's writes commit together or not at all.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx DBTX) error) error
}

// AccountRepository provides access to the wallet columns of users.
type AccountRepository interface {
	// FindByID returns an account by ID.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Account, error)

	// FindByUsername returns an account by username.
	FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Account, error)

	// FindByEmail returns an account by email.
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.Account, error)

	// FindByCustomerRef returns the account owning an external customer ref.
	FindByCustomerRef(ctx context.Context, db DBTX, customerRef string) (*domain.Account, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and
	// returns the account. Must run inside a transaction.
	LockForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Account, error)

	// Create inserts a new account with zero balances.
	Create(ctx context.Context, db DBTX, acct *domain.Account, passwordHash, tagCode string) error

	// UpdateAggregates atomically updates wallet columns using server-side
	// arithmetic with dynamic SET clauses built from the non-zero deltas.
	UpdateAggregates(ctx context.Context, tx DBTX, userID uuid.UUID, delta domain.AggregateUpdate) (*domain.Account, error)

	// UpdateAutoReload replaces the auto-reload settings.
	UpdateAutoReload(ctx context.Context, db DBTX, userID uuid.UUID, settings domain.AutoReloadSettings) (*domain.Account, error)

	// SetCustomerRef records the lazily created external customer ref.
	SetCustomerRef(ctx context.Context, db DBTX, userID uuid.UUID, customerRef string) error

	// PasswordHashByEmail returns (userID, hash) for login checks.
	PasswordHashByEmail(ctx context.Context, db DBTX, email string) (uuid.UUID, string, error)
}

// LedgerRepository provides access to transactions (the append-only ledger).
type LedgerRepository interface {
	// Insert creates a new ledger entry and returns the inserted row.
	Insert(ctx context.Context, db DBTX, params domain.PostEntryParams) (*domain.Entry, error)

	// FindByID returns an entry by ID.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Entry, error)

	// FindPendingByChargeRef returns the pending entry carrying the given
	// external charge ref, or nil. The ref uniquely identifies at most one
	// entry; the pending filter is the webhook idempotency guard.
	FindPendingByChargeRef(ctx context.Context, db DBTX, chargeRef string) (*domain.Entry, error)

	// SetStatus transitions an entry's status and returns the updated row.
	SetStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.EntryStatus) (*domain.Entry, error)

	// UpdateChargeRef replaces the provisional charge ref on an entry with
	// the processor-issued identifier.
	UpdateChargeRef(ctx context.Context, db DBTX, id uuid.UUID, chargeRef string) error

	// ListByUser returns entries for a user, newest first.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.Entry, error)

	// SumCompletedByUser returns the sum of completed entry amounts for a
	// user. Used by reconciliation checks against the denormalized balance.
	SumCompletedByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error)
}

// PaymentMethodRepository provides access to payment_methods.
type PaymentMethodRepository interface {
	// FindDefault returns the active default method for a user, or nil.
	FindDefault(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.PaymentMethod, error)

	// FindByExternalRef returns a user's method by its external ref, or nil.
	FindByExternalRef(ctx context.Context, db DBTX, userID uuid.UUID, externalRef string) (*domain.PaymentMethod, error)

	// ListByUser returns all methods for a user.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.PaymentMethod, error)

	// CountByUser returns how many methods the user has.
	CountByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int, error)

	// Insert stores a new method.
	Insert(ctx context.Context, db DBTX, method *domain.PaymentMethod) error

	// ClearDefault unsets is_default on all of a user's methods.
	ClearDefault(ctx context.Context, db DBTX, userID uuid.UUID) error

	// SetDefault marks one method default.
	SetDefault(ctx context.Context, db DBTX, id uuid.UUID) error
}

// ReferralRepository provides access to referrals.
type ReferralRepository interface {
	// FindPair returns the referral for (referrer, referred), or nil.
	FindPair(ctx context.Context, db DBTX, referrerID, referredID uuid.UUID) (*domain.Referral, error)

	// Insert records a referral.
	Insert(ctx context.Context, db DBTX, ref *domain.Referral) error

	// ListByReferrer returns all referrals made by a user.
	ListByReferrer(ctx context.Context, db DBTX, referrerID uuid.UUID) ([]domain.Referral, error)
}

// SessionRepository provides access to sessions.
type SessionRepository interface {
	// Create inserts a session row.
	Create(ctx context.Context, db DBTX, session *domain.Session) error

	// FindByToken returns the session for a token, or nil.
	FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error)

	// DeleteByToken removes a session (logout or expiry cleanup).
	DeleteByToken(ctx context.Context, db DBTX, token string) error

	// DeleteExpired removes all sessions past their expiry.
	DeleteExpired(ctx context.Context, db DBTX) (int64, error)
}

// TagCodeRepository provides access to tag_codes.
type TagCodeRepository interface {
	// FindUnused returns the unused tag code row for a code, or nil.
	FindUnused(ctx context.Context, db DBTX, code string) (*domain.TagCode, error)

	// MarkUsed consumes a tag code for a user.
	MarkUsed(ctx context.Context, db DBTX, code string, userID uuid.UUID) error
}

// OutboxRepository provides access to event_outbox.
type OutboxRepository interface {
	// Insert stages an event within the caller's transaction.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}
