package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrAccountNotFound(id string) *AppError {
	return &AppError{Code: "ACCOUNT_NOT_FOUND", Message: fmt.Sprintf("account %s not found", id), Status: 404}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient wallet balance", Status: 400}
}

func ErrNoPaymentMethod() *AppError {
	return &AppError{Code: "NO_PAYMENT_METHOD", Message: "no payment method on file", Status: 400}
}

// ErrChargeFailed surfaces a processor decline generically, without leaking
// processor internals to the caller.
func ErrChargeFailed(cause error) *AppError {
	return &AppError{Code: "CHARGE_FAILED", Message: "payment failed", Status: 402, Cause: cause}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrAccountLocked(msg string) *AppError {
	return &AppError{Code: "ACCOUNT_LOCKED", Message: msg, Status: 423}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}

// GuardResult is the outcome of a protective check (rate limits, lockouts).
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"`
}
