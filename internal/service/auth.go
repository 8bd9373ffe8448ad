package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/guard"
	"github.com/crosspointx/platform/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionTokenBytes is the entropy of a session token before hex encoding.
const SessionTokenBytes = 32

// DefaultSessionTTL is how long a session stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// passwordHashCost is the bcrypt work factor for stored password hashes.
const passwordHashCost = 12

// AuthService handles registration, login, and session validation. Sessions
// are opaque random tokens checked against the database on every request.
type AuthService struct {
	db         repository.DBTX
	uow        repository.UnitOfWork
	accounts   repository.AccountRepository
	sessions   repository.SessionRepository
	tagCodes   repository.TagCodeRepository
	referrals  *ReferralService
	outbox     repository.OutboxRepository
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService creates an AuthService. A zero sessionTTL falls back to
// DefaultSessionTTL.
func NewAuthService(
	db repository.DBTX,
	uow repository.UnitOfWork,
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	tagCodes repository.TagCodeRepository,
	referrals *ReferralService,
	outbox repository.OutboxRepository,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AuthService{
		db:         db,
		uow:        uow,
		accounts:   accounts,
		sessions:   sessions,
		tagCodes:   tagCodes,
		referrals:  referrals,
		outbox:     outbox,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	TagCode      string `json:"tag_code"`
	ReferralCode string `json:"referral_code"`
}

// AuthResult is a logged-in identity: the account plus a fresh session.
type AuthResult struct {
	Account *domain.Account `json:"user"`
	Token   string          `json:"token"`
	Expires time.Time       `json:"expires_at"`
}

// Register creates an account, consumes the tag code if one was supplied,
// opens a session, and pays out the referral bonus if a valid referral code
// was used.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))

	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if len(params.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}
	if params.Phone != "" {
		if err := domain.ValidatePhone(params.Phone); err != nil {
			return nil, err
		}
	}

	if existing, err := s.accounts.FindByUsername(ctx, s.db, username); err != nil {
		return nil, domain.ErrInternal("check username", err)
	} else if existing != nil {
		return nil, domain.ErrConflict("username already taken")
	}
	if existing, err := s.accounts.FindByEmail(ctx, s.db, email); err != nil {
		return nil, domain.ErrInternal("check email", err)
	} else if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	var referrer *domain.Account
	if params.ReferralCode != "" {
		acct, err := s.referrals.ResolveCode(ctx, params.ReferralCode)
		if err == nil {
			referrer = acct
		} else {
			// A bad referral code does not block signup.
			s.logger.Info("referral code did not resolve", "code", params.ReferralCode)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), passwordHashCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	acct := &domain.Account{
		ID:       uuid.New(),
		Username: username,
		Email:    email,
		Phone:    params.Phone,
		IsActive: true,
	}

	err = s.uow.WithinTx(ctx, func(tx repository.DBTX) error {
		tagCode := ""
		if params.TagCode != "" {
			tc, err := s.tagCodes.FindUnused(ctx, tx, params.TagCode)
			if err != nil {
				return domain.ErrInternal("check tag code", err)
			}
			if tc == nil {
				return domain.ErrValidation("invalid or already used tag code")
			}
			tagCode = tc.Code
		}

		if err := s.accounts.Create(ctx, tx, acct, string(hash), tagCode); err != nil {
			return domain.ErrInternal("create account", err)
		}
		if tagCode != "" {
			if err := s.tagCodes.MarkUsed(ctx, tx, tagCode, acct.ID); err != nil {
				return domain.ErrInternal("consume tag code", err)
			}
		}
		return s.outbox.Insert(ctx, tx, domain.NewAccountCreatedEvent(acct.ID, acct.Username, acct.Email))
	})
	if err != nil {
		return nil, err
	}

	if referrer != nil && referrer.ID != acct.ID {
		if err := s.referrals.ProcessBonus(ctx, referrer.ID, acct.ID); err != nil {
			// The account exists either way; the bonus can be replayed.
			s.logger.Error("referral bonus failed", "error", err,
				"referrer_id", referrer.ID, "referred_id", acct.ID)
		}
	}

	s.logger.Info("account registered", "user_id", acct.ID, "username", username)
	return s.openSession(ctx, acct)
}

// Login verifies credentials and opens a session. Repeated failures within
// the lockout window block further attempts for that email.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := guard.CheckLocked(ctx, s.db, email); err != nil {
		return nil, err
	}

	userID, hash, err := s.accounts.PasswordHashByEmail(ctx, s.db, email)
	if err != nil {
		return nil, domain.ErrInternal("look up credentials", err)
	}
	if hash == "" {
		// Burn a comparison so missing accounts take as long as bad passwords.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$00000000000000000000000000000000000000000000000000000"), []byte(password))
		guard.RecordAttempt(ctx, s.db, email, clientIP, false)
		return nil, domain.ErrUnauthorized("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		guard.RecordAttempt(ctx, s.db, email, clientIP, false)
		return nil, domain.ErrUnauthorized("invalid email or password")
	}
	guard.RecordAttempt(ctx, s.db, email, clientIP, true)

	acct, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil || !acct.IsActive {
		return nil, domain.ErrUnauthorized("account is not active")
	}

	s.logger.Info("login", "user_id", acct.ID)
	return s.openSession(ctx, acct)
}

// Logout deletes the session. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.DeleteByToken(ctx, s.db, token); err != nil {
		return domain.ErrInternal("delete session", err)
	}
	return nil
}

// ValidateSession resolves a token to its account. Expired sessions are
// deleted on touch.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized("missing session token")
	}

	session, err := s.sessions.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, domain.ErrUnauthorized("invalid session")
	}
	if session.Expired(time.Now()) {
		if err := s.sessions.DeleteByToken(ctx, s.db, token); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, domain.ErrUnauthorized("session expired")
	}

	acct, err := s.accounts.FindByID(ctx, s.db, session.UserID)
	if err != nil {
		return nil, domain.ErrInternal("find account", err)
	}
	if acct == nil || !acct.IsActive {
		return nil, domain.ErrUnauthorized("account is not active")
	}
	return acct, nil
}

// CheckUsername reports whether a username is valid and free.
func (s *AuthService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := domain.ValidateUsername(username); err != nil {
		return false, err
	}
	existing, err := s.accounts.FindByUsername(ctx, s.db, username)
	if err != nil {
		return false, domain.ErrInternal("check username", err)
	}
	return existing == nil, nil
}

// ValidateTagCode reports whether a tag code exists and is unused.
func (s *AuthService) ValidateTagCode(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, domain.ErrValidation("tag code is required")
	}
	tc, err := s.tagCodes.FindUnused(ctx, s.db, code)
	if err != nil {
		return false, domain.ErrInternal("check tag code", err)
	}
	return tc != nil, nil
}

func (s *AuthService) openSession(ctx context.Context, acct *domain.Account) (*AuthResult, error) {
	raw := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, domain.ErrInternal("generate session token", err)
	}
	token := hex.EncodeToString(raw)

	session := &domain.Session{
		ID:           uuid.New(),
		UserID:       acct.ID,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, s.db, session); err != nil {
		return nil, domain.ErrInternal("create session", err)
	}

	return &AuthResult{Account: acct, Token: token, Expires: session.ExpiresAt}, nil
}
