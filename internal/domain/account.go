package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletAggregates are the denormalized running totals on a users row.
// All columns are NOT NULL DEFAULT 0, so zero values are always meaningful.
type WalletAggregates struct {
	WalletBalance    int64 `json:"wallet_balance"`
	TotalEarned      int64 `json:"total_earned"`
	TotalLoaded      int64 `json:"total_loaded"`
	ReferralEarnings int64 `json:"referral_earnings"`
	ReferralCount    int64 `json:"referral_count"`
}

// AutoReloadSettings is the per-account auto-reload configuration.
type AutoReloadSettings struct {
	Enabled   bool  `json:"auto_reload"`
	Amount    int64 `json:"auto_reload_amount"`
	Threshold int64 `json:"auto_reload_threshold"`
}

// Account is the wallet-relevant subset of a users row.
type Account struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone,omitempty"`
	WalletAggregates
	AutoReload          AutoReloadSettings `json:"auto_reload_settings"`
	ExternalCustomerRef *string            `json:"-"`
	IsActive            bool               `json:"is_active"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// PaymentMethod is a stored card reference from payment_methods.
// At most one method per account has IsDefault set.
type PaymentMethod struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	ExternalMethodRef string    `json:"external_method_ref"`
	Brand             string    `json:"brand"`
	Last4             string    `json:"last4"`
	ExpiryMonth       int       `json:"expiry_month"`
	ExpiryYear        int       `json:"expiry_year"`
	IsDefault         bool      `json:"is_default"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// Referral records a referral pair. (referrer, referred) is unique.
type Referral struct {
	ID          uuid.UUID  `json:"id"`
	ReferrerID  uuid.UUID  `json:"referrer_id"`
	ReferredID  uuid.UUID  `json:"referred_id"`
	BonusAmount int64      `json:"bonus_amount"`
	BonusPaid   bool       `json:"bonus_paid"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// Session is an opaque-token row from sessions. Tokens are validated against
// this table on every request; there is no in-process auth state.
type Session struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	SessionToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// TagCode is a one-time registration invite code.
type TagCode struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	IsUsed    bool       `json:"is_used"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}
