package wallet

import (
	"context"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
)

// Debit reads the current balance and, if sufficient, inserts a completed
// negative entry and decrements the balance in one unit of work. It performs
// no reload itself; the service layer invokes the auto-reload trigger and
// retries the debit exactly once.
func (e *Engine) Debit(ctx context.Context, tx repository.DBTX, params domain.DebitParams) (*domain.EntryResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	eff, err := domain.EffectOf(params.Kind)
	if err != nil {
		return nil, err
	}
	if !eff.Debit {
		return nil, domain.ErrValidation("kind " + string(params.Kind) + " is not a debit kind")
	}

	acct, err := e.fetchAccount(ctx, tx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	if acct.WalletBalance < params.Amount {
		return nil, domain.ErrInsufficientFunds()
	}

	entry, updated, err := e.postEntry(ctx, tx, domain.PostEntryParams{
		UserID:        params.UserID,
		Kind:          params.Kind,
		Amount:        -params.Amount,
		Status:        domain.StatusCompleted,
		Description:   params.Description,
		Aggregates:    domain.AggregateUpdate{WalletBalance: -params.Amount},
		RelatedGameID: strPtr(params.RelatedGameID),
		Metadata:      ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("debit post: %w", err)
	}

	return &domain.EntryResult{Entry: entry, Account: updated}, nil
}
