package handler

import (
	"net/http"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/service"
)

// ReferralHandler handles referral stats and code validation.
type ReferralHandler struct {
	referralSvc *service.ReferralService
}

// NewReferralHandler creates a new ReferralHandler.
func NewReferralHandler(referralSvc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralSvc: referralSvc}
}

// GetStats handles GET /referrals/stats.
func (h *ReferralHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	stats, err := h.referralSvc.Stats(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

// ValidateCode handles GET /referrals/validate?code=. Open to unauthenticated
// callers so the signup form can check codes.
func (h *ReferralHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		RespondError(w, domain.ErrValidation("code is required"))
		return
	}

	acct, err := h.referralSvc.ResolveCode(r.Context(), code)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{
		"referrer_username": acct.Username,
	})
}
