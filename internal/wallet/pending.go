package wallet

import (
	"context"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
)

// CreatePending stages a ledger entry whose balance effect is deferred until
// the external processor confirms the charge. No balance column changes here;
// promotion applies the credit when the entry completes.
func (e *Engine) CreatePending(ctx context.Context, tx repository.DBTX, params domain.PendingChargeParams) (*domain.EntryResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	eff, err := domain.EffectOf(params.Kind)
	if err != nil {
		return nil, err
	}
	if !eff.MayBePending {
		return nil, domain.ErrValidation("kind " + string(params.Kind) + " cannot be pending")
	}
	if params.ExternalChargeRef == "" {
		return nil, domain.ErrValidation("external charge ref is required for pending entries")
	}

	if _, err := e.fetchAccount(ctx, tx, params.UserID); err != nil {
		return nil, fmt.Errorf("create pending: %w", err)
	}

	entry, err := e.ledger.Insert(ctx, tx, domain.PostEntryParams{
		UserID:            params.UserID,
		Kind:              params.Kind,
		Amount:            params.Amount,
		Status:            domain.StatusPending,
		Description:       params.Description,
		ExternalChargeRef: strPtr(params.ExternalChargeRef),
		Metadata:          ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("insert pending entry: %w", err)
	}
	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.EntryResult{Entry: entry}, nil
}

// PromoteByRef completes the pending entry carrying the given charge ref and
// applies the deferred credit, in one unit of work. The pending row is
// promoted in place, never duplicated. If no pending entry matches (already
// finalized, or the charge is not ours) the call is an idempotent no-op.
func (e *Engine) PromoteByRef(ctx context.Context, tx repository.DBTX, chargeRef string) (*domain.EntryResult, error) {
	entry, err := e.ledger.FindPendingByChargeRef(ctx, tx, chargeRef)
	if err != nil {
		return nil, fmt.Errorf("find pending entry: %w", err)
	}
	if entry == nil {
		return &domain.EntryResult{Duplicate: true}, nil
	}
	return e.finalize(ctx, tx, entry, "", true)
}

// FailByRef marks the pending entry carrying the given charge ref failed.
// No balance change. Idempotent in the same way as PromoteByRef.
func (e *Engine) FailByRef(ctx context.Context, tx repository.DBTX, chargeRef string) (*domain.EntryResult, error) {
	entry, err := e.ledger.FindPendingByChargeRef(ctx, tx, chargeRef)
	if err != nil {
		return nil, fmt.Errorf("find pending entry: %w", err)
	}
	if entry == nil {
		return &domain.EntryResult{Duplicate: true}, nil
	}
	return e.finalize(ctx, tx, entry, "", false)
}

// FinalizeCharge finalizes a pending entry by ID once the processor's
// synchronous answer is in. chargeRef, when non-empty, replaces the entry's
// provisional ref with the processor's charge identifier so later webhook
// events match the same row.
func (e *Engine) FinalizeCharge(ctx context.Context, tx repository.DBTX, entryID uuid.UUID, chargeRef string, succeeded bool) (*domain.EntryResult, error) {
	entry, err := e.ledger.FindByID(ctx, tx, entryID)
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound("ledger entry", entryID.String())
	}
	if entry.Status != domain.StatusPending {
		return &domain.EntryResult{Entry: entry, Duplicate: true}, nil
	}
	return e.finalize(ctx, tx, entry, chargeRef, succeeded)
}

// finalize performs the one-way pending → {completed, failed} transition.
// The status flip is the idempotency guard: callers only reach here with an
// entry they just observed pending inside the same transaction.
func (e *Engine) finalize(ctx context.Context, tx repository.DBTX, entry *domain.Entry, chargeRef string, succeeded bool) (*domain.EntryResult, error) {
	if chargeRef != "" {
		if err := e.ledger.UpdateChargeRef(ctx, tx, entry.ID, chargeRef); err != nil {
			return nil, fmt.Errorf("update charge ref: %w", err)
		}
	}

	status := domain.StatusFailed
	if succeeded {
		status = domain.StatusCompleted
	}
	updated, err := e.ledger.SetStatus(ctx, tx, entry.ID, status)
	if err != nil {
		return nil, fmt.Errorf("set entry status: %w", err)
	}

	var acct *domain.Account
	if succeeded {
		aggregates, err := domain.CreditAggregates(entry.Kind, entry.Amount)
		if err != nil {
			return nil, err
		}
		acct, err = e.accounts.UpdateAggregates(ctx, tx, entry.UserID, aggregates)
		if err != nil {
			return nil, fmt.Errorf("apply deferred credit: %w", err)
		}
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryFinalizedEvent(updated)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.EntryResult{Entry: updated, Account: acct}, nil
}
