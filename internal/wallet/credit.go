package wallet

import (
	"context"
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
)

// Credit inserts a completed entry and increments the balance plus the
// kind-mapped aggregates in one unit of work.
func (e *Engine) Credit(ctx context.Context, tx repository.DBTX, params domain.CreditParams) (*domain.EntryResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	aggregates, err := domain.CreditAggregates(params.Kind, params.Amount)
	if err != nil {
		return nil, err
	}

	if _, err := e.fetchAccount(ctx, tx, params.UserID); err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	entry, updated, err := e.postEntry(ctx, tx, domain.PostEntryParams{
		UserID:        params.UserID,
		Kind:          params.Kind,
		Amount:        params.Amount,
		Status:        domain.StatusCompleted,
		Description:   params.Description,
		Aggregates:    aggregates,
		RelatedGameID: strPtr(params.RelatedGameID),
		RelatedUserID: params.RelatedUserID,
		Metadata:      ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("credit post: %w", err)
	}

	return &domain.EntryResult{Entry: entry, Account: updated}, nil
}
