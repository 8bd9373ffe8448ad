package handler

import (
	"net/http"
	"strconv"

	"github.com/crosspointx/platform/internal/auth"
	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WalletHandler handles wallet balance, funding, and settings endpoints.
type WalletHandler struct {
	walletSvc  *service.WalletService
	paymentSvc *service.PaymentService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc *service.WalletService, paymentSvc *service.PaymentService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, paymentSvc: paymentSvc}
}

// GetWallet handles GET /wallet: the account's balances, recent
// transactions, and stored payment methods in one payload.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	view, err := h.walletSvc.GetWallet(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// addFundsRequest is the body of POST /wallet/add-funds. Amount is in cents.
type addFundsRequest struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

// AddFunds handles POST /wallet/add-funds.
func (h *WalletHandler) AddFunds(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req addFundsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	outcome, err := h.paymentSvc.InitiateDeposit(r.Context(), userID, req.Amount, req.PaymentMethodID)
	if err != nil {
		RespondError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Status != service.DepositCompleted {
		status = http.StatusAccepted
	}
	RespondJSON(w, status, outcome)
}

// autoReloadRequest is the body of PUT /wallet/auto-reload.
type autoReloadRequest struct {
	Enabled   bool  `json:"auto_reload"`
	Amount    int64 `json:"auto_reload_amount"`
	Threshold int64 `json:"auto_reload_threshold"`
}

// UpdateAutoReload handles PUT /wallet/auto-reload.
func (h *WalletHandler) UpdateAutoReload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req autoReloadRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	acct, err := h.walletSvc.UpdateAutoReload(r.Context(), userID, domain.AutoReloadSettings{
		Enabled:   req.Enabled,
		Amount:    req.Amount,
		Threshold: req.Threshold,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, acct)
}

// GetTransactions handles GET /wallet/transactions.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.walletSvc.ListEntries(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}

// CreateSetupIntent handles POST /wallet/payment-methods/setup.
func (h *WalletHandler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	intent, err := h.paymentSvc.CreateSetupIntent(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, intent)
}

// SetDefaultPaymentMethod handles PUT /wallet/payment-methods/{methodID}/default.
func (h *WalletHandler) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	methodID, err := uuid.Parse(chi.URLParam(r, "methodID"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid payment method id"))
		return
	}

	if err := h.paymentSvc.SetDefaultPaymentMethod(r.Context(), userID, methodID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// userIDFromContext extracts the authenticated user's UUID from auth context.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	id := auth.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no authenticated user")
	}
	return id, nil
}
