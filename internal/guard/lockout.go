package guard

import (
	"context"
	"time"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/repository"
)

const (
	// MaxAttempts failed logins within LockoutWindow lock the email out.
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// RecordAttempt logs a login attempt. The insert is best effort: an audit
// row must never fail a successful login.
func RecordAttempt(ctx context.Context, db repository.DBTX, email, ip string, success bool) {
	_, _ = db.Exec(ctx, `
		INSERT INTO login_attempts (email, ip_address, success)
		VALUES ($1, $2, $3)`,
		email, ip, success)
}

// CheckLocked rejects logins for an email with too many recent failures.
// Fails open on query errors so a degraded database does not lock
// everyone out.
func CheckLocked(ctx context.Context, db repository.DBTX, email string) error {
	var failures int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false
		  AND created_at > $2`,
		email, time.Now().Add(-LockoutWindow)).Scan(&failures)
	if err != nil {
		return nil
	}
	if failures >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
