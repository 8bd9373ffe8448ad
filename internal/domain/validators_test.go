package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("player@example.com"))
	assert.NoError(t, ValidateEmail("first.last+tag@sub.domain.io"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail("missing@tld"))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("player_1"))
	assert.NoError(t, ValidateUsername("abc"))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("this_username_is_way_too_long"))
	assert.Error(t, ValidateUsername("bad name"))
	assert.Error(t, ValidateUsername("emoji🎯"))
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("555-123-4567"))
	assert.NoError(t, ValidatePhone("(555) 123-4567"))
	assert.NoError(t, ValidatePhone("+1 555 123 4567"))
	assert.Error(t, ValidatePhone("12345"))
	assert.Error(t, ValidatePhone("phone"))
}

func TestValidatePositiveAmount(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(1))
	assert.Error(t, ValidatePositiveAmount(0))
	assert.Error(t, ValidatePositiveAmount(-500))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := ErrInternal("boom", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 500, err.Status)
}

func TestAppError_StatusCodes(t *testing.T) {
	assert.Equal(t, 400, ErrInsufficientFunds().Status)
	assert.Equal(t, 402, ErrChargeFailed(nil).Status)
	assert.Equal(t, 404, ErrAccountNotFound("x").Status)
	assert.Equal(t, 401, ErrUnauthorized("x").Status)
	assert.Equal(t, 409, ErrConflict("x").Status)
	assert.Equal(t, 423, ErrAccountLocked("x").Status)
	assert.Equal(t, 429, ErrRateLimited("x").Status)
}
