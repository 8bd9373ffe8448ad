package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	accountKey contextKey = "auth_account"
	tokenKey   contextKey = "auth_token"
)

// SessionValidator resolves a session token to its account.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*domain.Account, error)
}

// AccountFromContext extracts the authenticated account from request context.
func AccountFromContext(ctx context.Context) *domain.Account {
	acct, _ := ctx.Value(accountKey).(*domain.Account)
	return acct
}

// UserIDFromContext extracts the authenticated user's ID, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if acct := AccountFromContext(ctx); acct != nil {
		return acct.ID
	}
	return uuid.Nil
}

// TokenFromContext extracts the session token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// Authenticate returns middleware that validates the session token against
// the database on every request. Tokens come from the Authorization header
// or the session cookie.
func Authenticate(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"missing session token"}`, http.StatusUnauthorized)
				return
			}

			acct, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, acct)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken pulls the session token from a request, preferring the
// Authorization header over the session cookie.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}
	return ""
}
