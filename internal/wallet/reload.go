package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/provider"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
)

// Charger is the slice of the payment processor the auto-reload trigger
// consumes.
type Charger interface {
	CreatePaymentIntent(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error)
}

// AutoReloader tops up an account from its default payment method when the
// balance falls below the configured threshold.
type AutoReloader struct {
	db       repository.DBTX
	uow      repository.UnitOfWork
	engine   *Engine
	accounts repository.AccountRepository
	methods  repository.PaymentMethodRepository
	charger  Charger
	logger   *slog.Logger
}

// NewAutoReloader creates an AutoReloader.
func NewAutoReloader(
	db repository.DBTX,
	uow repository.UnitOfWork,
	engine *Engine,
	accounts repository.AccountRepository,
	methods repository.PaymentMethodRepository,
	charger Charger,
	logger *slog.Logger,
) *AutoReloader {
	return &AutoReloader{
		db:       db,
		uow:      uow,
		engine:   engine,
		accounts: accounts,
		methods:  methods,
		charger:  charger,
		logger:   logger,
	}
}

// MaybeReload checks the auto-reload preconditions in order, short-circuiting
// on the first miss, and on a pass charges the default method for the
// configured amount. Returns true only when the charge succeeded synchronously
// and the credit was applied.
//
// A charge that needs step-up authentication cannot complete headlessly, so
// its entry is marked failed. A timed-out charge is indeterminate: the entry
// stays pending for the webhook to resolve, and the trigger reports failure
// so the caller's debit is rejected rather than stalled.
func (a *AutoReloader) MaybeReload(ctx context.Context, userID uuid.UUID) (bool, error) {
	acct, err := a.accounts.FindByID(ctx, a.db, userID)
	if err != nil {
		return false, fmt.Errorf("auto-reload account lookup: %w", err)
	}
	if acct == nil {
		return false, nil
	}

	cfg := acct.AutoReload
	if !cfg.Enabled || acct.WalletBalance >= cfg.Threshold || cfg.Amount <= 0 {
		return false, nil
	}

	method, err := a.methods.FindDefault(ctx, a.db, userID)
	if err != nil {
		return false, fmt.Errorf("auto-reload method lookup: %w", err)
	}
	if method == nil {
		a.logger.Info("auto-reload skipped: no default payment method", "user_id", userID)
		return false, nil
	}
	if acct.ExternalCustomerRef == nil {
		a.logger.Info("auto-reload skipped: no processor customer", "user_id", userID)
		return false, nil
	}

	clientRef := "cpx_" + uuid.New().String()
	var pending *domain.Entry
	err = a.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		res, err := a.engine.CreatePending(ctx, tx, domain.PendingChargeParams{
			UserID:            userID,
			Kind:              domain.KindAutoReload,
			Amount:            cfg.Amount,
			Description:       fmt.Sprintf("Auto Reload - $%.2f", float64(cfg.Amount)/100),
			ExternalChargeRef: clientRef,
			Metadata:          []byte(`{"autoReload":true}`),
		})
		if err != nil {
			return err
		}
		pending = res.Entry
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("auto-reload pending entry: %w", err)
	}

	result, chargeErr := a.charger.CreatePaymentIntent(ctx, provider.ChargeRequest{
		AmountCents: cfg.Amount,
		CustomerRef: *acct.ExternalCustomerRef,
		MethodRef:   method.ExternalMethodRef,
		ClientRef:   clientRef,
		Metadata: map[string]string{
			"userId":     userID.String(),
			"type":       "wallet_reload",
			"autoReload": "true",
		},
	})

	if chargeErr != nil {
		if errors.Is(chargeErr, provider.ErrIndeterminate) {
			a.logger.Warn("auto-reload charge indeterminate, leaving entry pending",
				"user_id", userID, "entry_id", pending.ID)
			return false, nil
		}
		a.logger.Error("auto-reload charge failed", "user_id", userID, "error", chargeErr)
		if ferr := a.finalizePending(ctx, pending.ID, "", false); ferr != nil {
			return false, ferr
		}
		return false, nil
	}

	switch result.Status {
	case provider.ChargeSucceeded:
		if err := a.finalizePending(ctx, pending.ID, result.IntentID, true); err != nil {
			return false, err
		}
		a.logger.Info("auto-reload succeeded", "user_id", userID, "amount", cfg.Amount)
		return true, nil
	case provider.ChargeRequiresAction:
		// No user is present to complete the step-up.
		a.logger.Info("auto-reload requires action, marking failed", "user_id", userID)
		if err := a.finalizePending(ctx, pending.ID, result.IntentID, false); err != nil {
			return false, err
		}
		return false, nil
	default:
		a.logger.Info("auto-reload declined", "user_id", userID)
		if err := a.finalizePending(ctx, pending.ID, result.IntentID, false); err != nil {
			return false, err
		}
		return false, nil
	}
}

func (a *AutoReloader) finalizePending(ctx context.Context, entryID uuid.UUID, chargeRef string, succeeded bool) error {
	return a.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		_, err := a.engine.FinalizeCharge(ctx, tx, entryID, chargeRef, succeeded)
		return err
	})
}
