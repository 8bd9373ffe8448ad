package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/policy"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/crosspointx/platform/internal/wallet"
	"github.com/google/uuid"
)

// WalletService orchestrates the wallet mutation primitives for callers
// outside the engine: game entry debits, winnings credits, the wallet read
// model, and auto-reload settings.
type WalletService struct {
	db           repository.DBTX
	uow          repository.UnitOfWork
	engine       *wallet.Engine
	reloader     *wallet.AutoReloader
	accounts     repository.AccountRepository
	ledger       repository.LedgerRepository
	methods      repository.PaymentMethodRepository
	reloadPolicy policy.AutoReloadPolicy
	logger       *slog.Logger
}

// NewWalletService creates a WalletService.
func NewWalletService(
	db repository.DBTX,
	uow repository.UnitOfWork,
	engine *wallet.Engine,
	reloader *wallet.AutoReloader,
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	methods repository.PaymentMethodRepository,
	reloadPolicy policy.AutoReloadPolicy,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		db:           db,
		uow:          uow,
		engine:       engine,
		reloader:     reloader,
		accounts:     accounts,
		ledger:       ledger,
		methods:      methods,
		reloadPolicy: reloadPolicy,
		logger:       logger,
	}
}

// Credit adds funds to an account with a completed entry of the given kind.
func (s *WalletService) Credit(ctx context.Context, params domain.CreditParams) (*domain.Entry, error) {
	var entry *domain.Entry
	err := s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		res, err := s.engine.Credit(ctx, tx, params)
		if err != nil {
			return err
		}
		entry = res.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit deducts funds from an account. On insufficient funds it invokes the
// auto-reload trigger once and, if that reports success, re-checks the
// balance by retrying the debit exactly once more.
//
// The check, the reload, and the retry run in separate transactions; a
// concurrent debit can slip between them. See wallet.WithAccountLocks for
// the opt-in row-lock fix.
func (s *WalletService) Debit(ctx context.Context, params domain.DebitParams) (*domain.Entry, error) {
	entry, err := s.tryDebit(ctx, params)
	if err == nil {
		return entry, nil
	}
	if !isInsufficientFunds(err) {
		return nil, err
	}

	reloaded, rerr := s.reloader.MaybeReload(ctx, params.UserID)
	if rerr != nil {
		s.logger.Error("auto-reload attempt failed", "user_id", params.UserID, "error", rerr)
	}
	if !reloaded {
		return nil, domain.ErrInsufficientFunds()
	}

	return s.tryDebit(ctx, params)
}

func (s *WalletService) tryDebit(ctx context.Context, params domain.DebitParams) (*domain.Entry, error) {
	var entry *domain.Entry
	err := s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		res, err := s.engine.Debit(ctx, tx, params)
		if err != nil {
			return err
		}
		entry = res.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func isInsufficientFunds(err error) bool {
	var appErr *domain.AppError
	return errors.As(err, &appErr) && appErr.Code == "INSUFFICIENT_FUNDS"
}

// WalletView is the aggregate read model behind GET /wallet.
type WalletView struct {
	Account        *domain.Account        `json:"user"`
	Entries        []domain.Entry         `json:"transactions"`
	PaymentMethods []domain.PaymentMethod `json:"payment_methods"`
}

// GetWallet returns the account's wallet fields, its ten most recent ledger
// entries, and its payment methods.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*WalletView, error) {
	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}

	entries, err := s.ledger.ListByUser(ctx, s.db, userID, 10)
	if err != nil {
		return nil, domain.ErrInternal("list entries", err)
	}

	methods, err := s.methods.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("list payment methods", err)
	}

	return &WalletView{Account: acct, Entries: entries, PaymentMethods: methods}, nil
}

// ListEntries returns a user's recent ledger entries.
func (s *WalletService) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Entry, error) {
	entries, err := s.ledger.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, domain.ErrInternal("list entries", err)
	}
	return entries, nil
}

// UpdateAutoReload validates and stores auto-reload settings. The reload
// amount is bounded like a manual deposit. Disabling clears the amount and
// threshold.
func (s *WalletService) UpdateAutoReload(ctx context.Context, userID uuid.UUID, settings domain.AutoReloadSettings) (*domain.Account, error) {
	if err := s.reloadPolicy.ValidateSettings(settings); err != nil {
		return nil, err
	}
	if !settings.Enabled {
		settings.Amount = 0
		settings.Threshold = 0
	}

	acct, err := s.accounts.UpdateAutoReload(ctx, s.db, userID, settings)
	if err != nil {
		return nil, domain.ErrInternal("update auto-reload settings", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}
	return acct, nil
}

// Reconcile compares the denormalized balance with the sum of completed
// entries. A mismatch indicates a drifted aggregate.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (balance, ledgerSum int64, err error) {
	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return 0, 0, domain.ErrInternal("find account", err)
	}
	if acct == nil {
		return 0, 0, domain.ErrAccountNotFound(userID.String())
	}
	sum, err := s.ledger.SumCompletedByUser(ctx, s.db, userID)
	if err != nil {
		return 0, 0, domain.ErrInternal("sum entries", err)
	}
	return acct.WalletBalance, sum, nil
}
