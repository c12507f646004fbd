package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

type CardManager interface {
	ListUserCards(ctx context.Context, userID uuid.UUID) ([]model.Card, error)
	SetCardActive(ctx context.Context, userID, cardID uuid.UUID, active bool) (*model.Card, error)
}

// CardHandler карты добавляются только через /otp/verify, здесь чтение и блокировка
type CardHandler struct {
	cards  CardManager
	logger *logrus.Logger
}

func NewCardHandler(cards CardManager, logger *logrus.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

func (h *CardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/cards", h.ListCards).Methods(http.MethodGet)
	router.HandleFunc("/cards/{id}", h.SetActive).Methods(http.MethodPatch)
}

func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cards, err := h.cards.ListUserCards(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "cards": cards})
}

func (h *CardHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cardID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.logger.WithField("card_id", mux.Vars(r)["id"]).Warn("Неверный формат ID карты")
		writeFailure(w, http.StatusBadRequest, "invalid_request", "Invalid card ID")
		return
	}

	var req model.SetCardActiveRequest
	if err := decodeJSON(w, r, &req); err != nil || req.IsActive == nil {
		writeFailure(w, http.StatusBadRequest, "invalid_request", "is_active is required")
		return
	}

	card, err := h.cards.SetCardActive(r.Context(), userID, cardID, *req.IsActive)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	message := "Card blocked"
	if card.IsActive {
		message = "Card activated"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message, "card": card})
}
