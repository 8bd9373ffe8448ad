package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/policy"
	"github.com/crosspointx/platform/internal/provider"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/crosspointx/platform/internal/wallet"
	"github.com/google/uuid"
)

// PaymentProcessor is the slice of the external processor the payment
// service consumes. The processor holds all card data; this side only ever
// sees opaque refs.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, email, name, phone string) (string, error)
	CreatePaymentIntent(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error)
	CreateSetupIntent(ctx context.Context, customerRef string) (*provider.SetupIntent, error)
	RetrievePaymentMethod(ctx context.Context, methodRef string) (*provider.CardDetails, error)
	VerifyWebhookSignature(payload []byte, sigHeader string) (*provider.WebhookEvent, error)
}

// PaymentService handles deposit initiation, payment method management, and
// webhook reconciliation.
type PaymentService struct {
	db        repository.DBTX
	uow       repository.UnitOfWork
	engine    *wallet.Engine
	accounts  repository.AccountRepository
	ledger    repository.LedgerRepository
	methods   repository.PaymentMethodRepository
	processor PaymentProcessor
	limits    policy.DepositLimits
	logger    *slog.Logger
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	db repository.DBTX,
	uow repository.UnitOfWork,
	engine *wallet.Engine,
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	methods repository.PaymentMethodRepository,
	processor PaymentProcessor,
	limits policy.DepositLimits,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		db:        db,
		uow:       uow,
		engine:    engine,
		accounts:  accounts,
		ledger:    ledger,
		methods:   methods,
		processor: processor,
		limits:    limits,
		logger:    logger,
	}
}

// DepositStatus is the synchronous outcome of a deposit initiation.
type DepositStatus string

const (
	DepositCompleted      DepositStatus = "completed"
	DepositPending        DepositStatus = "pending"
	DepositRequiresAction DepositStatus = "requires_action"
)

// DepositOutcome is returned from InitiateDeposit. For requires_action the
// continuation fields carry what the client needs to finish the step-up
// out-of-band; finalization then arrives via webhook.
type DepositOutcome struct {
	Status          DepositStatus `json:"status"`
	TransactionID   uuid.UUID     `json:"transaction_id"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	ClientSecret    string        `json:"client_secret,omitempty"`
	RedirectURL     string        `json:"redirect_url,omitempty"`
}

// InitiateDeposit charges the user's payment method (explicit ref or the
// default) to top up the wallet. The pending entry is created before the
// charge; a timed-out charge leaves it pending for the webhook to resolve.
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID uuid.UUID, amountCents int64, methodRef string) (*DepositOutcome, error) {
	if err := s.limits.ValidateDeposit(amountCents); err != nil {
		return nil, err
	}

	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}

	method, err := s.resolveMethod(ctx, userID, methodRef)
	if err != nil {
		return nil, err
	}

	customerRef, err := s.ensureCustomer(ctx, acct)
	if err != nil {
		return nil, err
	}

	clientRef := "cpx_" + uuid.New().String()
	var pending *domain.Entry
	err = s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		res, err := s.engine.CreatePending(ctx, tx, domain.PendingChargeParams{
			UserID:            userID,
			Kind:              domain.KindDeposit,
			Amount:            amountCents,
			Description:       fmt.Sprintf("Wallet Reload - $%.2f", float64(amountCents)/100),
			ExternalChargeRef: clientRef,
		})
		if err != nil {
			return err
		}
		pending = res.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, chargeErr := s.processor.CreatePaymentIntent(ctx, provider.ChargeRequest{
		AmountCents: amountCents,
		CustomerRef: customerRef,
		MethodRef:   method.ExternalMethodRef,
		ClientRef:   clientRef,
		Metadata: map[string]string{
			"userId": userID.String(),
			"type":   "wallet_reload",
		},
	})

	if chargeErr != nil {
		if errors.Is(chargeErr, provider.ErrIndeterminate) {
			s.logger.Warn("deposit charge indeterminate, leaving entry pending",
				"user_id", userID, "entry_id", pending.ID)
			return &DepositOutcome{Status: DepositPending, TransactionID: pending.ID}, nil
		}
		if err := s.finalize(ctx, pending.ID, "", false); err != nil {
			return nil, err
		}
		return nil, domain.ErrChargeFailed(chargeErr)
	}

	switch result.Status {
	case provider.ChargeSucceeded:
		if err := s.finalize(ctx, pending.ID, result.IntentID, true); err != nil {
			return nil, err
		}
		s.logger.Info("deposit completed", "user_id", userID, "amount", amountCents)
		return &DepositOutcome{
			Status:          DepositCompleted,
			TransactionID:   pending.ID,
			PaymentIntentID: result.IntentID,
		}, nil

	case provider.ChargeRequiresAction:
		// Re-key the pending entry to the intent ID so the webhook that
		// follows the step-up finds it.
		if err := s.ledger.UpdateChargeRef(ctx, s.db, pending.ID, result.IntentID); err != nil {
			return nil, domain.ErrInternal("update charge ref", err)
		}
		return &DepositOutcome{
			Status:          DepositRequiresAction,
			TransactionID:   pending.ID,
			PaymentIntentID: result.IntentID,
			ClientSecret:    result.ClientSecret,
			RedirectURL:     result.RedirectURL,
		}, nil

	default:
		if err := s.finalize(ctx, pending.ID, result.IntentID, false); err != nil {
			return nil, err
		}
		return nil, domain.ErrChargeFailed(nil)
	}
}

func (s *PaymentService) resolveMethod(ctx context.Context, userID uuid.UUID, methodRef string) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	var err error
	if methodRef != "" {
		method, err = s.methods.FindByExternalRef(ctx, s.db, userID, methodRef)
	} else {
		method, err = s.methods.FindDefault(ctx, s.db, userID)
	}
	if err != nil {
		return nil, domain.ErrInternal("resolve payment method", err)
	}
	if method == nil {
		return nil, domain.ErrNoPaymentMethod()
	}
	return method, nil
}

// ensureCustomer lazily creates the processor-side customer object on the
// first funding attempt.
func (s *PaymentService) ensureCustomer(ctx context.Context, acct *domain.Account) (string, error) {
	if acct.ExternalCustomerRef != nil {
		return *acct.ExternalCustomerRef, nil
	}
	customerRef, err := s.processor.CreateCustomer(ctx, acct.Email, acct.Username, acct.Phone)
	if err != nil {
		return "", domain.ErrInternal("create processor customer", err)
	}
	if err := s.accounts.SetCustomerRef(ctx, s.db, acct.ID, customerRef); err != nil {
		return "", domain.ErrInternal("store customer ref", err)
	}
	acct.ExternalCustomerRef = &customerRef
	return customerRef, nil
}

func (s *PaymentService) finalize(ctx context.Context, entryID uuid.UUID, chargeRef string, succeeded bool) error {
	return s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		_, err := s.engine.FinalizeCharge(ctx, tx, entryID, chargeRef, succeeded)
		return err
	})
}

// CreateSetupIntent starts the save-a-card flow; the processor-side
// confirmation arrives later as a setup_intent.succeeded webhook.
func (s *PaymentService) CreateSetupIntent(ctx context.Context, userID uuid.UUID) (*provider.SetupIntent, error) {
	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}
	customerRef, err := s.ensureCustomer(ctx, acct)
	if err != nil {
		return nil, err
	}
	intent, err := s.processor.CreateSetupIntent(ctx, customerRef)
	if err != nil {
		return nil, domain.ErrInternal("create setup intent", err)
	}
	return intent, nil
}

// SetDefaultPaymentMethod marks one of the user's methods default,
// clearing any previous default in the same transaction.
func (s *PaymentService) SetDefaultPaymentMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	return s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		methods, err := s.methods.ListByUser(ctx, tx, userID)
		if err != nil {
			return domain.ErrInternal("list payment methods", err)
		}
		var target *domain.PaymentMethod
		for i := range methods {
			if methods[i].ID == methodID {
				target = &methods[i]
				break
			}
		}
		if target == nil {
			return domain.ErrNotFound("payment method", methodID.String())
		}
		if err := s.methods.ClearDefault(ctx, tx, userID); err != nil {
			return domain.ErrInternal("clear default", err)
		}
		if err := s.methods.SetDefault(ctx, tx, methodID); err != nil {
			return domain.ErrInternal("set default", err)
		}
		return nil
	})
}

// HandleWebhook verifies and dispatches an inbound processor event.
// Handlers are idempotent: the pending-status lookup is the replay guard, so
// at-least-once delivery never double-credits.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.processor.VerifyWebhookSignature(payload, sigHeader)
	if err != nil {
		return domain.ErrUnauthorized(fmt.Sprintf("webhook verification failed: %v", err))
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return s.handleIntentFinalized(ctx, event, true)
	case "payment_intent.payment_failed":
		return s.handleIntentFinalized(ctx, event, false)
	case "setup_intent.succeeded":
		return s.handleSetupSucceeded(ctx, event)
	case "payment_method.attached":
		return s.handleMethodAttached(ctx, event)
	default:
		s.logger.Info("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

func (s *PaymentService) handleIntentFinalized(ctx context.Context, event *provider.WebhookEvent, succeeded bool) error {
	intent, err := provider.ParsePaymentIntentData(event.Data)
	if err != nil {
		return domain.ErrInternal("parse payment intent", err)
	}
	if intent.Metadata["type"] != "wallet_reload" {
		s.logger.Info("payment intent not a wallet reload, ignoring", "intent_id", intent.ID)
		return nil
	}

	var duplicate bool
	err = s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		res, err := s.finalizeByAnyRef(ctx, tx, intent, succeeded)
		if err != nil {
			return err
		}
		duplicate = res.Duplicate
		return nil
	})
	if err != nil {
		return domain.ErrInternal("finalize entry", err)
	}

	if duplicate {
		s.logger.Info("no pending entry for charge event, ignoring",
			"intent_id", intent.ID, "event_id", event.ID)
	} else {
		s.logger.Info("charge event reconciled",
			"intent_id", intent.ID, "succeeded", succeeded, "amount", intent.Amount)
	}
	return nil
}

// finalizeByAnyRef matches the entry by the processor's intent ID first and
// falls back to the client ref we stamped into the intent metadata, which is
// how entries left behind by an indeterminate charge get resolved.
func (s *PaymentService) finalizeByAnyRef(ctx context.Context, tx repository.DBTX, intent *provider.PaymentIntentData, succeeded bool) (*domain.EntryResult, error) {
	apply := s.engine.FailByRef
	if succeeded {
		apply = s.engine.PromoteByRef
	}

	res, err := apply(ctx, tx, intent.ID)
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		if clientRef := intent.Metadata["client_ref"]; clientRef != "" {
			return apply(ctx, tx, clientRef)
		}
	}
	return res, nil
}

func (s *PaymentService) handleSetupSucceeded(ctx context.Context, event *provider.WebhookEvent) error {
	setup, err := provider.ParseSetupIntentData(event.Data)
	if err != nil {
		return domain.ErrInternal("parse setup intent", err)
	}
	if setup.Customer == "" || setup.PaymentMethod == "" {
		s.logger.Info("setup intent missing customer or method, ignoring", "event_id", event.ID)
		return nil
	}

	card, err := s.processor.RetrievePaymentMethod(ctx, setup.PaymentMethod)
	if err != nil {
		return domain.ErrInternal("retrieve payment method", err)
	}
	return s.upsertMethod(ctx, setup.Customer, card)
}

func (s *PaymentService) handleMethodAttached(ctx context.Context, event *provider.WebhookEvent) error {
	method, err := provider.ParsePaymentMethodData(event.Data)
	if err != nil {
		return domain.ErrInternal("parse payment method", err)
	}
	if method.Customer == "" {
		s.logger.Info("payment method not attached to a customer, ignoring", "event_id", event.ID)
		return nil
	}
	if method.Type != "card" || method.Card == nil {
		s.logger.Info("non-card payment method, ignoring", "method_ref", method.ID)
		return nil
	}
	return s.upsertMethod(ctx, method.Customer, &provider.CardDetails{
		MethodRef:   method.ID,
		Brand:       method.Card.Brand,
		Last4:       method.Card.Last4,
		ExpiryMonth: method.Card.ExpMonth,
		ExpiryYear:  method.Card.ExpYear,
	})
}

// upsertMethod stores a card attached on the processor side. The first
// method for an account becomes the default; reprocessing the same attach
// event is a no-op.
func (s *PaymentService) upsertMethod(ctx context.Context, customerRef string, card *provider.CardDetails) error {
	acct, err := s.accounts.FindByCustomerRef(ctx, s.db, customerRef)
	if err != nil {
		return domain.ErrInternal("find account by customer", err)
	}
	if acct == nil {
		s.logger.Warn("no account for processor customer, ignoring", "customer_ref", customerRef)
		return nil
	}

	return s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		existing, err := s.methods.FindByExternalRef(ctx, tx, acct.ID, card.MethodRef)
		if err != nil {
			return domain.ErrInternal("find existing method", err)
		}
		if existing != nil {
			return nil
		}

		count, err := s.methods.CountByUser(ctx, tx, acct.ID)
		if err != nil {
			return domain.ErrInternal("count methods", err)
		}

		method := &domain.PaymentMethod{
			ID:                uuid.New(),
			UserID:            acct.ID,
			ExternalMethodRef: card.MethodRef,
			Brand:             card.Brand,
			Last4:             card.Last4,
			ExpiryMonth:       card.ExpiryMonth,
			ExpiryYear:        card.ExpiryYear,
			IsDefault:         count == 0,
			IsActive:          true,
		}
		if err := s.methods.Insert(ctx, tx, method); err != nil {
			return domain.ErrInternal("insert payment method", err)
		}
		s.logger.Info("payment method stored",
			"user_id", acct.ID, "brand", card.Brand, "last4", card.Last4, "default", method.IsDefault)
		return nil
	})
}
