package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
)

// memStore backs the in-memory repository fakes. The unit-of-work fake
// snapshots and restores it to model transactional rollback.
type memStore struct {
	accounts map[uuid.UUID]*domain.Account
	entries  map[uuid.UUID]*domain.Entry
	order    []uuid.UUID
	methods  []domain.PaymentMethod
	outbox   []domain.OutboxDraft

	// opening holds each account's seeded starting balance, standing in
	// for ledger history that predates the test.
	opening map[uuid.UUID]int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		entries:  make(map[uuid.UUID]*domain.Entry),
		opening:  make(map[uuid.UUID]int64),
	}
}

func (s *memStore) addAccount(acct domain.Account) *domain.Account {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	s.accounts[acct.ID] = &acct
	s.opening[acct.ID] = acct.WalletBalance
	return &acct
}

func (s *memStore) snapshot() *memStore {
	snap := newMemStore()
	for id, a := range s.accounts {
		c := *a
		snap.accounts[id] = &c
	}
	for id, e := range s.entries {
		c := *e
		snap.entries[id] = &c
	}
	for id, bal := range s.opening {
		snap.opening[id] = bal
	}
	snap.order = append([]uuid.UUID(nil), s.order...)
	snap.methods = append([]domain.PaymentMethod(nil), s.methods...)
	snap.outbox = append([]domain.OutboxDraft(nil), s.outbox...)
	return snap
}

func (s *memStore) restore(snap *memStore) {
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.opening = snap.opening
	s.order = snap.order
	s.methods = snap.methods
	s.outbox = snap.outbox
}

func (s *memStore) completedSum(userID uuid.UUID) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID && e.Status == domain.StatusCompleted {
			sum += e.Amount
		}
	}
	return sum
}

func (s *memStore) entriesFor(userID uuid.UUID) []*domain.Entry {
	var out []*domain.Entry
	for _, id := range s.order {
		if e := s.entries[id]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// memUow runs the callback against the shared store, rolling back on error.
// failCommit, when set, fails the transaction after the callback succeeded.
type memUow struct {
	s          *memStore
	failCommit error
}

func (u *memUow) WithinTx(_ context.Context, fn func(tx repository.DBTX) error) error {
	snap := u.s.snapshot()
	if err := fn(nil); err != nil {
		u.s.restore(snap)
		return err
	}
	if u.failCommit != nil {
		err := u.failCommit
		u.failCommit = nil
		u.s.restore(snap)
		return err
	}
	return nil
}

type memAccounts struct{ s *memStore }

func (r *memAccounts) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Account, error) {
	if a, ok := r.s.accounts[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (r *memAccounts) FindByUsername(_ context.Context, _ repository.DBTX, username string) (*domain.Account, error) {
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Username, username) {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) FindByEmail(_ context.Context, _ repository.DBTX, email string) (*domain.Account, error) {
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) FindByCustomerRef(_ context.Context, _ repository.DBTX, ref string) (*domain.Account, error) {
	for _, a := range r.s.accounts {
		if a.ExternalCustomerRef != nil && *a.ExternalCustomerRef == ref {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) LockForUpdate(ctx context.Context, tx repository.DBTX, id uuid.UUID) (*domain.Account, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *memAccounts) Create(_ context.Context, _ repository.DBTX, acct *domain.Account, _, _ string) error {
	c := *acct
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.accounts[c.ID] = &c
	return nil
}

func (r *memAccounts) UpdateAggregates(_ context.Context, _ repository.DBTX, userID uuid.UUID, delta domain.AggregateUpdate) (*domain.Account, error) {
	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, nil
	}
	a.WalletBalance += delta.WalletBalance
	a.TotalEarned += delta.TotalEarned
	a.TotalLoaded += delta.TotalLoaded
	a.ReferralEarnings += delta.ReferralEarnings
	a.ReferralCount += delta.ReferralCount
	a.UpdatedAt = time.Now()
	c := *a
	return &c, nil
}

func (r *memAccounts) UpdateAutoReload(_ context.Context, _ repository.DBTX, userID uuid.UUID, settings domain.AutoReloadSettings) (*domain.Account, error) {
	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, nil
	}
	a.AutoReload = settings
	c := *a
	return &c, nil
}

func (r *memAccounts) SetCustomerRef(_ context.Context, _ repository.DBTX, userID uuid.UUID, ref string) error {
	a, ok := r.s.accounts[userID]
	if !ok {
		return domain.ErrAccountNotFound(userID.String())
	}
	a.ExternalCustomerRef = &ref
	return nil
}

func (r *memAccounts) PasswordHashByEmail(_ context.Context, _ repository.DBTX, _ string) (uuid.UUID, string, error) {
	return uuid.Nil, "", nil
}

type memLedger struct{ s *memStore }

func (r *memLedger) Insert(_ context.Context, _ repository.DBTX, params domain.PostEntryParams) (*domain.Entry, error) {
	now := time.Now()
	e := &domain.Entry{
		ID:                uuid.New(),
		UserID:            params.UserID,
		Kind:              params.Kind,
		Amount:            params.Amount,
		Status:            params.Status,
		Description:       params.Description,
		ExternalChargeRef: params.ExternalChargeRef,
		RelatedGameID:     params.RelatedGameID,
		RelatedUserID:     params.RelatedUserID,
		Metadata:          params.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.s.entries[e.ID] = e
	r.s.order = append(r.s.order, e.ID)
	c := *e
	return &c, nil
}

func (r *memLedger) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Entry, error) {
	if e, ok := r.s.entries[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (r *memLedger) FindPendingByChargeRef(_ context.Context, _ repository.DBTX, ref string) (*domain.Entry, error) {
	for _, e := range r.s.entries {
		if e.Status == domain.StatusPending && e.ExternalChargeRef != nil && *e.ExternalChargeRef == ref {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memLedger) SetStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, status domain.EntryStatus) (*domain.Entry, error) {
	e, ok := r.s.entries[id]
	if !ok {
		return nil, nil
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	c := *e
	return &c, nil
}

func (r *memLedger) UpdateChargeRef(_ context.Context, _ repository.DBTX, id uuid.UUID, ref string) error {
	e, ok := r.s.entries[id]
	if !ok {
		return domain.ErrNotFound("ledger entry", id.String())
	}
	e.ExternalChargeRef = &ref
	return nil
}

func (r *memLedger) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID, limit int) ([]domain.Entry, error) {
	var out []domain.Entry
	all := r.s.entriesFor(userID)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *all[i])
	}
	return out, nil
}

func (r *memLedger) SumCompletedByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int64, error) {
	return r.s.completedSum(userID), nil
}

type memMethods struct{ s *memStore }

func (r *memMethods) FindDefault(_ context.Context, _ repository.DBTX, userID uuid.UUID) (*domain.PaymentMethod, error) {
	for i := range r.s.methods {
		m := r.s.methods[i]
		if m.UserID == userID && m.IsDefault && m.IsActive {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memMethods) FindByExternalRef(_ context.Context, _ repository.DBTX, userID uuid.UUID, ref string) (*domain.PaymentMethod, error) {
	for i := range r.s.methods {
		m := r.s.methods[i]
		if m.UserID == userID && m.ExternalMethodRef == ref {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memMethods) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	for _, m := range r.s.methods {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMethods) CountByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int, error) {
	n := 0
	for _, m := range r.s.methods {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *memMethods) Insert(_ context.Context, _ repository.DBTX, method *domain.PaymentMethod) error {
	r.s.methods = append(r.s.methods, *method)
	return nil
}

func (r *memMethods) ClearDefault(_ context.Context, _ repository.DBTX, userID uuid.UUID) error {
	for i := range r.s.methods {
		if r.s.methods[i].UserID == userID {
			r.s.methods[i].IsDefault = false
		}
	}
	return nil
}

func (r *memMethods) SetDefault(_ context.Context, _ repository.DBTX, id uuid.UUID) error {
	for i := range r.s.methods {
		if r.s.methods[i].ID == id {
			r.s.methods[i].IsDefault = true
		}
	}
	return nil
}

type memOutbox struct{ s *memStore }

func (r *memOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.s.outbox = append(r.s.outbox, draft)
	return nil
}
