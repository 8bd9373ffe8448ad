package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/provider"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCharger scripts the processor's answer to the next charge.
type fakeCharger struct {
	result  *provider.ChargeResult
	err     error
	calls   int
	lastReq provider.ChargeRequest
}

func (c *fakeCharger) CreatePaymentIntent(_ context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	c.calls++
	c.lastReq = req
	return c.result, c.err
}

type reloadFixture struct {
	store    *memStore
	uow      *memUow
	engine   *Engine
	charger  *fakeCharger
	reloader *AutoReloader
}

func newReloadFixture() *reloadFixture {
	s := newMemStore()
	uow := &memUow{s: s}
	accounts := &memAccounts{s}
	methods := &memMethods{s}
	engine := NewEngine(accounts, &memLedger{s}, &memOutbox{s})
	charger := &fakeCharger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &reloadFixture{
		store:    s,
		uow:      uow,
		engine:   engine,
		charger:  charger,
		reloader: NewAutoReloader(nil, uow, engine, accounts, methods, charger, logger),
	}
}

// reloadAccount seeds an account eligible for auto-reload unless mutated.
func (f *reloadFixture) reloadAccount(balance int64) *domain.Account {
	customer := "cus_test"
	acct := f.store.addAccount(domain.Account{
		Username:            "reloader",
		Email:               "r@example.com",
		IsActive:            true,
		ExternalCustomerRef: &customer,
		WalletAggregates:    domain.WalletAggregates{WalletBalance: balance},
		AutoReload:          domain.AutoReloadSettings{Enabled: true, Amount: 2500, Threshold: 1500},
	})
	f.store.methods = append(f.store.methods, domain.PaymentMethod{
		ID: uuid.New(), UserID: acct.ID, ExternalMethodRef: "pm_default",
		IsDefault: true, IsActive: true,
	})
	return acct
}

func TestMaybeReload_DisabledIsNoOp(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.store.accounts[acct.ID].AutoReload.Enabled = false

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, f.charger.calls, "no charge may be attempted")
	assert.Empty(t, f.store.entries)
}

func TestMaybeReload_BalanceAtThresholdIsNoOp(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1500) // equal to threshold, not below

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, f.charger.calls)
}

func TestMaybeReload_ZeroAmountIsNoOp(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.store.accounts[acct.ID].AutoReload.Amount = 0

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, f.charger.calls)
}

func TestMaybeReload_NoDefaultMethodIsNoOp(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.store.methods = nil

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, f.charger.calls)
}

func TestMaybeReload_NoCustomerRefIsNoOp(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.store.accounts[acct.ID].ExternalCustomerRef = nil

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Zero(t, f.charger.calls)
}

func TestMaybeReload_ChargeSucceeds(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.charger.result = &provider.ChargeResult{IntentID: "pi_ok", Status: provider.ChargeSucceeded}

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, 1, f.charger.calls)
	assert.Equal(t, int64(3500), f.store.accounts[acct.ID].WalletBalance)
	assert.Equal(t, int64(2500), f.store.accounts[acct.ID].TotalLoaded)

	entries := f.store.entriesFor(acct.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindAutoReload, entries[0].Kind)
	assert.Equal(t, domain.StatusCompleted, entries[0].Status)
	assert.Equal(t, "pi_ok", *entries[0].ExternalChargeRef)

	// The charge request carries the reload metadata and client ref.
	assert.Equal(t, "wallet_reload", f.charger.lastReq.Metadata["type"])
	assert.NotEmpty(t, f.charger.lastReq.ClientRef)
}

func TestMaybeReload_RequiresActionMarksFailed(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.charger.result = &provider.ChargeResult{IntentID: "pi_sca", Status: provider.ChargeRequiresAction}

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, int64(1000), f.store.accounts[acct.ID].WalletBalance)

	entries := f.store.entriesFor(acct.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusFailed, entries[0].Status)
}

func TestMaybeReload_DeclineMarksFailed(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.charger.err = errors.New("card_declined")

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, int64(1000), f.store.accounts[acct.ID].WalletBalance)

	entries := f.store.entriesFor(acct.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusFailed, entries[0].Status)
}

func TestMaybeReload_IndeterminateLeavesPending(t *testing.T) {
	f := newReloadFixture()
	acct := f.reloadAccount(1000)
	f.charger.err = provider.ErrIndeterminate

	reloaded, err := f.reloader.MaybeReload(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, reloaded, "indeterminate must not report success")
	assert.Equal(t, int64(1000), f.store.accounts[acct.ID].WalletBalance)

	entries := f.store.entriesFor(acct.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusPending, entries[0].Status)

	// The webhook later resolves the pending entry by its client ref.
	clientRef := *entries[0].ExternalChargeRef
	err = f.uow.WithinTx(context.Background(), func(tx repository.DBTX) error {
		res, err := f.engine.PromoteByRef(context.Background(), tx, clientRef)
		if err != nil {
			return err
		}
		assert.False(t, res.Duplicate)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3500), f.store.accounts[acct.ID].WalletBalance)
}
