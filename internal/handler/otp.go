package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

type OTPIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, req model.SendOTPRequest) (*model.SendOTPResult, error)
	Verify(ctx context.Context, userID uuid.UUID, req model.VerifyOTPRequest) (*model.VerifyOTPResult, error)
}

type OTPHandler struct {
	otps   OTPIssuer
	logger *logrus.Logger
}

func NewOTPHandler(otps OTPIssuer, logger *logrus.Logger) *OTPHandler {
	return &OTPHandler{otps: otps, logger: logger}
}

func (h *OTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/otp/send", h.Send).Methods(http.MethodPost)
	router.HandleFunc("/otp/verify", h.Verify).Methods(http.MethodPost)
}

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.SendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на выпуск OTP")
		writeFailure(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.otps.Issue(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на проверку OTP")
		writeFailure(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.otps.Verify(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
