package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/crosspointx/platform/internal/wallet"
	"github.com/google/uuid"
)

// ReferralBonusCents is the flat bonus credited to the referrer when a
// referred user signs up.
const ReferralBonusCents int64 = 200

// ReferralService credits referral bonuses and manages referral codes.
type ReferralService struct {
	db        repository.DBTX
	uow       repository.UnitOfWork
	engine    *wallet.Engine
	accounts  repository.AccountRepository
	referrals repository.ReferralRepository
	outbox    repository.OutboxRepository
	logger    *slog.Logger
}

// NewReferralService creates a ReferralService.
func NewReferralService(
	db repository.DBTX,
	uow repository.UnitOfWork,
	engine *wallet.Engine,
	accounts repository.AccountRepository,
	referrals repository.ReferralRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *ReferralService {
	return &ReferralService{
		db:        db,
		uow:       uow,
		engine:    engine,
		accounts:  accounts,
		referrals: referrals,
		outbox:    outbox,
		logger:    logger,
	}
}

// ProcessBonus records the referral pair and credits the referrer's wallet
// in one transaction. A repeat (referrer, referred) pair is a no-op, so the
// bonus pays out at most once per pair.
func (s *ReferralService) ProcessBonus(ctx context.Context, referrerID, referredID uuid.UUID) error {
	if referrerID == referredID {
		return domain.ErrValidation("cannot refer yourself")
	}

	referred, err := s.accounts.FindByID(ctx, s.db, referredID)
	if err != nil {
		return domain.ErrInternal("find referred account", err)
	}
	if referred == nil {
		return domain.ErrAccountNotFound(referredID.String())
	}

	return s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		existing, err := s.referrals.FindPair(ctx, tx, referrerID, referredID)
		if err != nil {
			return domain.ErrInternal("find referral pair", err)
		}
		if existing != nil {
			s.logger.Info("referral pair already recorded, skipping bonus",
				"referrer_id", referrerID, "referred_id", referredID)
			return nil
		}

		referral := &domain.Referral{
			ID:          uuid.New(),
			ReferrerID:  referrerID,
			ReferredID:  referredID,
			BonusAmount: ReferralBonusCents,
			BonusPaid:   true,
		}
		if err := s.referrals.Insert(ctx, tx, referral); err != nil {
			return domain.ErrInternal("insert referral", err)
		}
		if _, err := s.accounts.UpdateAggregates(ctx, tx, referrerID, domain.AggregateUpdate{ReferralCount: 1}); err != nil {
			return domain.ErrInternal("bump referral count", err)
		}

		_, err = s.engine.Credit(ctx, tx, domain.CreditParams{
			UserID:        referrerID,
			Kind:          domain.KindReferralBonus,
			Amount:        ReferralBonusCents,
			Description:   fmt.Sprintf("Referral Bonus - %s", referred.Username),
			RelatedUserID: &referredID,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewReferralCreditedEvent(referrerID, referredID, ReferralBonusCents)); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}

		s.logger.Info("referral bonus credited",
			"referrer_id", referrerID, "referred_id", referredID, "amount", ReferralBonusCents)
		return nil
	})
}

// ReferralStats is the referrer-facing summary.
type ReferralStats struct {
	ReferralCount    int64             `json:"referral_count"`
	ReferralEarnings int64             `json:"referral_earnings"`
	ReferralCode     string            `json:"referral_code"`
	Referrals        []domain.Referral `json:"referrals"`
}

// Stats returns the user's referral code, running totals, and history.
func (s *ReferralService) Stats(ctx context.Context, userID uuid.UUID) (*ReferralStats, error) {
	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(userID.String())
	}

	referrals, err := s.referrals.ListByReferrer(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("list referrals", err)
	}

	return &ReferralStats{
		ReferralCount:    acct.ReferralCount,
		ReferralEarnings: acct.ReferralEarnings,
		ReferralCode:     GenerateReferralCode(acct.Username),
		Referrals:        referrals,
	}, nil
}

// GenerateReferralCode derives a shareable code from the username. The
// suffix is decorative; resolution only uses the username segment.
func GenerateReferralCode(username string) string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%s", strings.ToUpper(username), strings.ToUpper(hex.EncodeToString(suffix)))
}

// ResolveCode maps a referral code back to the referrer's account. Codes
// are USERNAME-XXXXXX; only the username segment identifies the referrer.
func (s *ReferralService) ResolveCode(ctx context.Context, code string) (*domain.Account, error) {
	username, _, found := strings.Cut(code, "-")
	if !found || username == "" {
		return nil, domain.ErrValidation("invalid referral code")
	}

	acct, err := s.accounts.FindByUsername(ctx, s.db, strings.ToLower(username))
	if err != nil {
		return nil, domain.ErrInternal("find referrer", err)
	}
	if acct == nil {
		return nil, domain.ErrNotFound("referral code", code)
	}
	return acct, nil
}
