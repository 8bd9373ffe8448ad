package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/provider"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore backs the in-memory repository fakes for service tests.
type memStore struct {
	accounts  map[uuid.UUID]*domain.Account
	hashes    map[string]string
	entries   map[uuid.UUID]*domain.Entry
	order     []uuid.UUID
	methods   []domain.PaymentMethod
	referrals []domain.Referral
	sessions  map[string]*domain.Session
	tagCodes  map[string]*domain.TagCode
	outbox    []domain.OutboxDraft

	// opening holds each account's seeded starting balance, standing in
	// for ledger history that predates the test.
	opening map[uuid.UUID]int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		hashes:   make(map[string]string),
		entries:  make(map[uuid.UUID]*domain.Entry),
		sessions: make(map[string]*domain.Session),
		tagCodes: make(map[string]*domain.TagCode),
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

func (s *memStore) snapshot() *memStore {
	snap := newMemStore()
	for id, a := range s.accounts {
		c := *a
		snap.accounts[id] = &c
	}
	for k, v := range s.hashes {
		snap.hashes[k] = v
	}
	for id, e := range s.entries {
		c := *e
		snap.entries[id] = &c
	}
	for tok, sess := range s.sessions {
		c := *sess
		snap.sessions[tok] = &c
	}
	for code, tc := range s.tagCodes {
		c := *tc
		snap.tagCodes[code] = &c
	}
	for id, bal := range s.opening {
		snap.opening[id] = bal
	}
	snap.order = append([]uuid.UUID(nil), s.order...)
	snap.methods = append([]domain.PaymentMethod(nil), s.methods...)
	snap.referrals = append([]domain.Referral(nil), s.referrals...)
	snap.outbox = append([]domain.OutboxDraft(nil), s.outbox...)
	return snap
}

func (s *memStore) restore(snap *memStore) { *s = *snap }

type memUow struct{ s *memStore }

func (u *memUow) WithinTx(_ context.Context, fn func(tx repository.DBTX) error) error {
	snap := u.s.snapshot()
	if err := fn(stubDB{}); err != nil {
		u.s.restore(snap)
		return err
	}
	return nil
}

// stubDB satisfies repository.DBTX for code that issues raw SQL (the login
// lockout guard). Queries report an error so the guard fails open.
type stubDB struct{}

func (stubDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (stubDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not supported in tests")
}

func (stubDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...interface{}) error { return errors.New("not supported in tests") }

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

func (r *memAccounts) Create(_ context.Context, _ repository.DBTX, acct *domain.Account, passwordHash, _ string) error {
	c := *acct
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.accounts[c.ID] = &c
	r.s.hashes[c.Email] = passwordHash
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

func (r *memAccounts) PasswordHashByEmail(_ context.Context, _ repository.DBTX, email string) (uuid.UUID, string, error) {
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a.ID, r.s.hashes[a.Email], nil
		}
	}
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

type memReferrals struct{ s *memStore }

func (r *memReferrals) FindPair(_ context.Context, _ repository.DBTX, referrerID, referredID uuid.UUID) (*domain.Referral, error) {
	for i := range r.s.referrals {
		ref := r.s.referrals[i]
		if ref.ReferrerID == referrerID && ref.ReferredID == referredID {
			return &ref, nil
		}
	}
	return nil, nil
}

func (r *memReferrals) Insert(_ context.Context, _ repository.DBTX, ref *domain.Referral) error {
	r.s.referrals = append(r.s.referrals, *ref)
	return nil
}

func (r *memReferrals) ListByReferrer(_ context.Context, _ repository.DBTX, referrerID uuid.UUID) ([]domain.Referral, error) {
	var out []domain.Referral
	for _, ref := range r.s.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

type memSessions struct{ s *memStore }

func (r *memSessions) Create(_ context.Context, _ repository.DBTX, session *domain.Session) error {
	c := *session
	r.s.sessions[c.SessionToken] = &c
	return nil
}

func (r *memSessions) FindByToken(_ context.Context, _ repository.DBTX, token string) (*domain.Session, error) {
	if sess, ok := r.s.sessions[token]; ok {
		c := *sess
		return &c, nil
	}
	return nil, nil
}

func (r *memSessions) DeleteByToken(_ context.Context, _ repository.DBTX, token string) error {
	delete(r.s.sessions, token)
	return nil
}

func (r *memSessions) DeleteExpired(_ context.Context, _ repository.DBTX) (int64, error) {
	var n int64
	now := time.Now()
	for tok, sess := range r.s.sessions {
		if sess.Expired(now) {
			delete(r.s.sessions, tok)
			n++
		}
	}
	return n, nil
}

type memTagCodes struct{ s *memStore }

func (r *memTagCodes) FindUnused(_ context.Context, _ repository.DBTX, code string) (*domain.TagCode, error) {
	if tc, ok := r.s.tagCodes[code]; ok && !tc.IsUsed {
		c := *tc
		return &c, nil
	}
	return nil, nil
}

func (r *memTagCodes) MarkUsed(_ context.Context, _ repository.DBTX, code string, userID uuid.UUID) error {
	tc, ok := r.s.tagCodes[code]
	if !ok {
		return domain.ErrNotFound("tag code", code)
	}
	now := time.Now()
	tc.IsUsed = true
	tc.UsedBy = &userID
	tc.UsedAt = &now
	return nil
}

type memOutbox struct{ s *memStore }

func (r *memOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.s.outbox = append(r.s.outbox, draft)
	return nil
}

// fakeProcessor scripts processor behavior for payment service tests. The
// webhook path skips signature math and returns the scripted event.
type fakeProcessor struct {
	chargeResult *provider.ChargeResult
	chargeErr    error
	chargeCalls  int
	lastCharge   provider.ChargeRequest

	customerRef   string
	customerCalls int

	card *provider.CardDetails

	webhookEvent *provider.WebhookEvent
	webhookErr   error
}

func (p *fakeProcessor) CreateCustomer(context.Context, string, string, string) (string, error) {
	p.customerCalls++
	if p.customerRef == "" {
		p.customerRef = "cus_" + uuid.New().String()[:8]
	}
	return p.customerRef, nil
}

func (p *fakeProcessor) CreatePaymentIntent(_ context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	p.chargeCalls++
	p.lastCharge = req
	return p.chargeResult, p.chargeErr
}

func (p *fakeProcessor) CreateSetupIntent(_ context.Context, customerRef string) (*provider.SetupIntent, error) {
	return &provider.SetupIntent{ID: "seti_1", ClientSecret: "seti_secret"}, nil
}

func (p *fakeProcessor) RetrievePaymentMethod(context.Context, string) (*provider.CardDetails, error) {
	if p.card == nil {
		return nil, errors.New("no card scripted")
	}
	return p.card, nil
}

func (p *fakeProcessor) VerifyWebhookSignature([]byte, string) (*provider.WebhookEvent, error) {
	return p.webhookEvent, p.webhookErr
}
