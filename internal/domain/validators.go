package domain

import (
	"fmt"
	"regexp"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	phoneRegex    = regexp.MustCompile(`^\+?1?\s?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrValidation("email is required")
	}
	if !emailRegex.MatchString(email) {
		return ErrValidation("invalid email format")
	}
	return nil
}

// ValidateUsername checks length and character set (letters, digits, underscore).
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrValidation("username must be 3-20 characters of letters, numbers, and underscores")
	}
	return nil
}

// ValidatePhone checks for a North American phone number.
func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return ErrValidation("invalid phone number")
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in cents).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %d", amount))
	}
	return nil
}
