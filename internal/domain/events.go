package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType names the entity an outbox event belongs to.
type AggregateType string

const (
	AggregateWallet  AggregateType = "wallet"
	AggregateAccount AggregateType = "account"
)

// EventType names the outbox event kinds published to the stream.
type EventType string

const (
	EventEntryPosted      EventType = "entry_posted"
	EventEntryFinalized   EventType = "entry_finalized"
	EventAccountCreated   EventType = "account_created"
	EventReferralCredited EventType = "referral_credited"
)

// OutboxDraft is an event staged in event_outbox within the same database
// transaction as the state change it describes.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewEntryPostedEvent creates the standard wallet event for a ledger entry.
func NewEntryPostedEvent(entry *Entry) OutboxDraft {
	payload, _ := json.Marshal(entry)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   entry.UserID.String(),
		EventType:     EventEntryPosted,
		PartitionKey:  entry.UserID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewEntryFinalizedEvent records a pending entry reaching completed or failed.
func NewEntryFinalizedEvent(entry *Entry) OutboxDraft {
	payload, _ := json.Marshal(entry)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   entry.UserID.String(),
		EventType:     EventEntryFinalized,
		PartitionKey:  entry.UserID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewReferralCreditedEvent records a referral bonus paid to the referrer.
func NewReferralCreditedEvent(referrerID, referredID uuid.UUID, amount int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]any{
		"referrer_id": referrerID.String(),
		"referred_id": referredID.String(),
		"amount":      amount,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateAccount,
		AggregateID:   referrerID.String(),
		EventType:     EventReferralCredited,
		PartitionKey:  referrerID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewAccountCreatedEvent creates an account lifecycle event.
func NewAccountCreatedEvent(userID uuid.UUID, username, email string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"user_id":  userID.String(),
		"username": username,
		"email":    email,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateAccount,
		AggregateID:   userID.String(),
		EventType:     EventAccountCreated,
		PartitionKey:  userID.String(),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
