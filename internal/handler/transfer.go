package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

type Transferer interface {
	Transfer(ctx context.Context, userID uuid.UUID, req model.TransferRequest) (*model.TransferResult, error)
	ExternalTransfer(ctx context.Context, userID uuid.UUID, req model.ExternalTransferRequest) (*model.TransferResult, error)
}

// TransferHandler принимает переводы между своими счетами и внешним получателям
type TransferHandler struct {
	transfers Transferer
	logger    *logrus.Logger
}

func NewTransferHandler(transfers Transferer, logger *logrus.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, logger: logger}
}

func (h *TransferHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/transfers", h.Transfer).Methods(http.MethodPost)
	router.HandleFunc("/transfers/external", h.ExternalTransfer).Methods(http.MethodPost)
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на перевод")
		writeFailure(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.transfers.Transfer(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TransferHandler) ExternalTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.ExternalTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на внешний перевод")
		writeFailure(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.transfers.ExternalTransfer(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
