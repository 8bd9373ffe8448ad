package handler

import (
	"fmt"
	"net/http"

	"github.com/crosspointx/platform/internal/domain"
	"github.com/crosspointx/platform/internal/service"
	"github.com/go-chi/chi/v5"
)

// GameHandler handles the wallet side of game participation: entry fee
// debits and winnings payouts.
type GameHandler struct {
	walletSvc *service.WalletService
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(walletSvc *service.WalletService) *GameHandler {
	return &GameHandler{walletSvc: walletSvc}
}

// entryRequest is the body of POST /games/{gameID}/entry. Amount is in cents.
type entryRequest struct {
	Amount int64 `json:"amount"`
}

// EnterGame handles POST /games/{gameID}/entry. A short balance triggers one
// auto-reload attempt before the debit is rejected.
func (h *GameHandler) EnterGame(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	gameID := chi.URLParam(r, "gameID")

	var req entryRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	entry, err := h.walletSvc.Debit(r.Context(), domain.DebitParams{
		UserID:        userID,
		Kind:          domain.KindGameEntry,
		Amount:        req.Amount,
		Description:   fmt.Sprintf("Game Entry - %s", gameID),
		RelatedGameID: gameID,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

// payoutRequest is the body of POST /games/{gameID}/payout.
type payoutRequest struct {
	Amount int64 `json:"amount"`
}

// PayoutWinnings handles POST /games/{gameID}/payout.
func (h *GameHandler) PayoutWinnings(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	gameID := chi.URLParam(r, "gameID")

	var req payoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	entry, err := h.walletSvc.Credit(r.Context(), domain.CreditParams{
		UserID:        userID,
		Kind:          domain.KindGameWinnings,
		Amount:        req.Amount,
		Description:   fmt.Sprintf("Game Winnings - %s", gameID),
		RelatedGameID: gameID,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}
