package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryKind enumerates all ledger entry kinds.
type EntryKind string

const (
	KindDeposit       EntryKind = "deposit"
	KindWithdrawal    EntryKind = "withdrawal"
	KindGameEntry     EntryKind = "game_entry"
	KindGameWinnings  EntryKind = "game_winnings"
	KindReferralBonus EntryKind = "referral_bonus"
	KindAutoReload    EntryKind = "auto_reload"
)

// EntryStatus tracks an entry's lifecycle. Transitions are one-way:
// pending → completed or pending → failed, never backward.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// KindEffect describes how a completed entry of a kind moves the balance and
// which aggregate columns it bumps. This table replaces the original
// system's string branching on kind at every call site.
type KindEffect struct {
	// Debit entries store negative amounts; credits positive.
	Debit bool
	// Aggregates bumped by the absolute amount on completion.
	BumpsTotalLoaded     bool
	BumpsTotalEarned     bool
	BumpsReferralEarning bool
	// Kinds backed by an external charge may be created pending and
	// finalized asynchronously.
	MayBePending bool
}

// KindEffects maps every EntryKind to its balance effect. Lookups must go
// through EffectOf so unknown kinds are rejected.
var KindEffects = map[EntryKind]KindEffect{
	KindDeposit:       {BumpsTotalLoaded: true, MayBePending: true},
	KindWithdrawal:    {Debit: true},
	KindGameEntry:     {Debit: true},
	KindGameWinnings:  {BumpsTotalEarned: true},
	KindReferralBonus: {BumpsTotalEarned: true, BumpsReferralEarning: true},
	KindAutoReload:    {BumpsTotalLoaded: true, MayBePending: true},
}

// EffectOf returns the effect table row for a kind.
func EffectOf(kind EntryKind) (KindEffect, error) {
	eff, ok := KindEffects[kind]
	if !ok {
		return KindEffect{}, ErrValidation("unknown ledger entry kind: " + string(kind))
	}
	return eff, nil
}

// Entry is a transactions row: one immutable record of a balance-affecting
// event. Amount is signed integer cents; negative means debit.
type Entry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Kind              EntryKind       `json:"type"`
	Amount            int64           `json:"amount"`
	Status            EntryStatus     `json:"status"`
	Description       string          `json:"description"`
	ExternalChargeRef *string         `json:"external_charge_ref,omitempty"`
	RelatedGameID     *string         `json:"related_game_id,omitempty"`
	RelatedUserID     *uuid.UUID      `json:"related_user_id,omitempty"`
	Metadata          json.RawMessage `json:"metadata"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AggregateUpdate describes which users columns to update and by how much.
// The account repository builds a dynamic UPDATE with server-side arithmetic
// from the non-zero deltas.
type AggregateUpdate struct {
	WalletBalance    int64
	TotalEarned      int64
	TotalLoaded      int64
	ReferralEarnings int64
	ReferralCount    int64
}

// IsZero reports whether the update changes nothing.
func (u AggregateUpdate) IsZero() bool {
	return u == AggregateUpdate{}
}

// CreditAggregates returns the aggregate deltas for completing a credit entry
// of the given kind and (positive) amount.
func CreditAggregates(kind EntryKind, amount int64) (AggregateUpdate, error) {
	eff, err := EffectOf(kind)
	if err != nil {
		return AggregateUpdate{}, err
	}
	if eff.Debit {
		return AggregateUpdate{}, ErrValidation("kind " + string(kind) + " is not a credit kind")
	}
	upd := AggregateUpdate{WalletBalance: amount}
	if eff.BumpsTotalLoaded {
		upd.TotalLoaded = amount
	}
	if eff.BumpsTotalEarned {
		upd.TotalEarned = amount
	}
	if eff.BumpsReferralEarning {
		upd.ReferralEarnings = amount
	}
	return upd, nil
}

// PostEntryParams is the input to the atomic PostEntry operation.
type PostEntryParams struct {
	UserID            uuid.UUID
	Kind              EntryKind
	Amount            int64
	Status            EntryStatus
	Description       string
	Aggregates        AggregateUpdate
	ExternalChargeRef *string
	RelatedGameID     *string
	RelatedUserID     *uuid.UUID
	Metadata          json.RawMessage
}

// CreditParams holds the input for Engine.Credit.
type CreditParams struct {
	UserID        uuid.UUID
	Kind          EntryKind
	Amount        int64
	Description   string
	RelatedGameID string
	RelatedUserID *uuid.UUID
	Metadata      json.RawMessage
}

// DebitParams holds the input for Engine.Debit.
type DebitParams struct {
	UserID        uuid.UUID
	Kind          EntryKind
	Amount        int64
	Description   string
	RelatedGameID string
	Metadata      json.RawMessage
}

// PendingChargeParams holds the input for Engine.CreatePending: a ledger
// entry whose completion depends on asynchronous external confirmation.
type PendingChargeParams struct {
	UserID            uuid.UUID
	Kind              EntryKind
	Amount            int64
	Description       string
	ExternalChargeRef string
	Metadata          json.RawMessage
}

// EntryResult is returned from the wallet engine's write operations.
type EntryResult struct {
	Entry   *Entry
	Account *Account
	// Duplicate is true when a confirmation arrived for an entry that was
	// no longer pending; the call was a no-op.
	Duplicate bool
}
