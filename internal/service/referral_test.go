package service

import (
	"context"
	"strings"
	"testing"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBonus(t *testing.T) {
	f := newServiceFixture()
	referrer := f.store.addAccount(domain.Account{Username: "veteran", Email: "veteran@example.com", IsActive: true})
	referred := f.store.addAccount(domain.Account{Username: "rookie", Email: "rookie@example.com", IsActive: true})

	require.NoError(t, f.referralSvc.ProcessBonus(context.Background(), referrer.ID, referred.ID))

	final := f.store.accounts[referrer.ID]
	assert.Equal(t, ReferralBonusCents, final.WalletBalance)
	assert.Equal(t, ReferralBonusCents, final.ReferralEarnings)
	assert.Equal(t, int64(1), final.ReferralCount)

	entries := f.store.entriesFor(referrer.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindReferralBonus, entries[0].Kind)
	require.NotNil(t, entries[0].RelatedUserID)
	assert.Equal(t, referred.ID, *entries[0].RelatedUserID)

	credited := outboxEventsOfType(f, domain.EventReferralCredited)
	require.Len(t, credited, 1)
	assert.Equal(t, referrer.ID.String(), credited[0].AggregateID)
	f.checkInvariant(t, referrer.ID)
}

func outboxEventsOfType(f *serviceFixture, kind domain.EventType) []domain.OutboxDraft {
	var matched []domain.OutboxDraft
	for _, draft := range f.store.outbox {
		if draft.EventType == kind {
			matched = append(matched, draft)
		}
	}
	return matched
}

func TestProcessBonus_PaysOncePerPair(t *testing.T) {
	f := newServiceFixture()
	referrer := f.store.addAccount(domain.Account{Username: "veteran", Email: "veteran@example.com", IsActive: true})
	referred := f.store.addAccount(domain.Account{Username: "rookie", Email: "rookie@example.com", IsActive: true})

	require.NoError(t, f.referralSvc.ProcessBonus(context.Background(), referrer.ID, referred.ID))
	require.NoError(t, f.referralSvc.ProcessBonus(context.Background(), referrer.ID, referred.ID))

	final := f.store.accounts[referrer.ID]
	assert.Equal(t, ReferralBonusCents, final.WalletBalance)
	assert.Equal(t, int64(1), final.ReferralCount)
	assert.Len(t, f.store.referrals, 1)
	assert.Len(t, f.store.entriesFor(referrer.ID), 1)
	assert.Len(t, outboxEventsOfType(f, domain.EventReferralCredited), 1)
}

func TestProcessBonus_RejectsSelfReferral(t *testing.T) {
	f := newServiceFixture()
	acct := f.store.addAccount(domain.Account{Username: "loner", Email: "loner@example.com", IsActive: true})

	err := f.referralSvc.ProcessBonus(context.Background(), acct.ID, acct.ID)
	require.Error(t, err)
	assert.Zero(t, f.store.accounts[acct.ID].WalletBalance)
}

func TestProcessBonus_UnknownReferred(t *testing.T) {
	f := newServiceFixture()
	referrer := f.store.addAccount(domain.Account{Username: "veteran", Email: "veteran@example.com", IsActive: true})

	err := f.referralSvc.ProcessBonus(context.Background(), referrer.ID, uuid.New())
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", appErr.Code)
}

func TestGenerateAndResolveCode(t *testing.T) {
	f := newServiceFixture()
	acct := f.store.addAccount(domain.Account{Username: "veteran", Email: "veteran@example.com", IsActive: true})

	code := GenerateReferralCode(acct.Username)
	assert.True(t, strings.HasPrefix(code, "VETERAN-"))

	resolved, err := f.referralSvc.ResolveCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, resolved.ID)
}

func TestResolveCode_Invalid(t *testing.T) {
	f := newServiceFixture()

	_, err := f.referralSvc.ResolveCode(context.Background(), "nodash")
	require.Error(t, err)

	_, err = f.referralSvc.ResolveCode(context.Background(), "GHOST-AB12CD")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestStats(t *testing.T) {
	f := newServiceFixture()
	referrer := f.store.addAccount(domain.Account{Username: "veteran", Email: "veteran@example.com", IsActive: true})
	referred := f.store.addAccount(domain.Account{Username: "rookie", Email: "rookie@example.com", IsActive: true})

	require.NoError(t, f.referralSvc.ProcessBonus(context.Background(), referrer.ID, referred.ID))

	stats, err := f.referralSvc.Stats(context.Background(), referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ReferralCount)
	assert.Equal(t, ReferralBonusCents, stats.ReferralEarnings)
	assert.True(t, strings.HasPrefix(stats.ReferralCode, "VETERAN-"))
	assert.Len(t, stats.Referrals, 1)
}
