package policy

import (
	"fmt"

	"github.com/crosspointx/platform/internal/domain"
)

// DepositLimits bounds a single wallet top-up.
type DepositLimits struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
}

// DefaultDepositLimits returns the standard deposit bounds ($1 to $100).
func DefaultDepositLimits() DepositLimits {
	return DepositLimits{
		MinCents: 100,    // $1
		MaxCents: 10_000, // $100
	}
}

// ValidateDeposit checks a deposit amount against the bounds. Manual
// deposits and auto-reload top-ups go through the same check.
func (l DepositLimits) ValidateDeposit(amount int64) error {
	if amount < l.MinCents {
		return domain.ErrValidation(fmt.Sprintf("minimum deposit is $%.2f", float64(l.MinCents)/100))
	}
	if l.MaxCents > 0 && amount > l.MaxCents {
		return domain.ErrValidation(fmt.Sprintf("maximum deposit is $%.2f", float64(l.MaxCents)/100))
	}
	return nil
}

// AutoReloadPolicy bounds the auto-reload configuration values.
type AutoReloadPolicy struct {
	Deposits DepositLimits `json:"deposits"`
}

// ValidateSettings checks an auto-reload configuration. Disabled settings
// carry no amounts and always pass.
func (p AutoReloadPolicy) ValidateSettings(s domain.AutoReloadSettings) error {
	if !s.Enabled {
		return nil
	}
	if err := p.Deposits.ValidateDeposit(s.Amount); err != nil {
		return err
	}
	if s.Threshold < 0 {
		return domain.ErrValidation("auto-reload threshold cannot be negative")
	}
	return nil
}
