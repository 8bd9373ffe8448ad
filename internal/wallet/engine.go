package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
)

// Engine provides the primitive ledger operations:
//  1. Credit / Debit: atomic balance update + append-only entry
//  2. CreatePending: stage an entry awaiting external confirmation
//  3. PromoteByRef / FailByRef / FinalizeCharge: one-way pending finalization
//
// Every write runs within a caller-supplied unit of work; the balance update,
// the ledger row, and the outbox event commit together or not at all.
//
// The debit path reads the balance before writing. Concurrent debits against
// the same account can both observe the pre-commit balance, which allows an
// overdraft; WithAccountLocks switches the read to SELECT FOR UPDATE, closing
// the race at the cost of serializing all writes per account. The lock is off
// by default to match the original flow.
type Engine struct {
	accounts     repository.AccountRepository
	ledger       repository.LedgerRepository
	outbox       repository.OutboxRepository
	lockAccounts bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAccountLocks makes every balance-affecting operation acquire a
// row-level lock on the account before reading its balance.
func WithAccountLocks(enabled bool) Option {
	return func(e *Engine) { e.lockAccounts = enabled }
}

// NewEngine creates a wallet engine with the given repositories.
func NewEngine(
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	outbox repository.OutboxRepository,
	opts ...Option,
) *Engine {
	e := &Engine{accounts: accounts, ledger: ledger, outbox: outbox}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// fetchAccount reads the account inside the transaction, locking the row
// when account locks are enabled.
func (e *Engine) fetchAccount(ctx context.Context, tx repository.DBTX, userID uuid.UUID) (*domain.Account, error) {
	var acct *domain.Account
	var err error
	if e.lockAccounts {
		acct, err = e.accounts.LockForUpdate(ctx, tx, userID)
	} else {
		acct, err = e.accounts.FindByID(ctx, tx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}
	return acct, nil
}

// postEntry atomically applies the aggregate deltas, inserts the ledger
// entry, and stages the outbox event. All steps run within the caller's
// transaction.
func (e *Engine) postEntry(ctx context.Context, tx repository.DBTX, params domain.PostEntryParams) (*domain.Entry, *domain.Account, error) {
	var updated *domain.Account
	var err error
	if !params.Aggregates.IsZero() {
		updated, err = e.accounts.UpdateAggregates(ctx, tx, params.UserID, params.Aggregates)
		if err != nil {
			return nil, nil, fmt.Errorf("update aggregates: %w", err)
		}
		if updated == nil {
			return nil, nil, domain.ErrAccountNotFound(params.UserID.String())
		}
	}

	entry, err := e.ledger.Insert(ctx, tx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("insert entry: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return entry, updated, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}
