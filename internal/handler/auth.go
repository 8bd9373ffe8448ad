package handler

import (
	"net"
	"net/http"

	"github.com/crosspointx/platform/internal/auth"
	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/service"
)

// AuthHandler handles registration, login, and session endpoints.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterParams
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.authSvc.Register(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}
	setSessionCookie(w, result)
	RespondJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password, remoteIP(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	setSessionCookie(w, result)
	RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	if err := h.authSvc.Logout(r.Context(), token); err != nil {
		RespondError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	if acct == nil {
		RespondError(w, domain.ErrUnauthorized("no authenticated user"))
		return
	}
	RespondJSON(w, http.StatusOK, acct)
}

// CheckUsername handles GET /auth/check-username?username=.
func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := h.authSvc.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"available": available})
}

type tagCodeRequest struct {
	Code string `json:"code"`
}

// ValidateTagCode handles POST /auth/validate-tag-code.
func (h *AuthHandler) ValidateTagCode(w http.ResponseWriter, r *http.Request) {
	var req tagCodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	valid, err := h.authSvc.ValidateTagCode(r.Context(), req.Code)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func setSessionCookie(w http.ResponseWriter, result *service.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
