package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

// AccountReader чтение счетов, журнала и получателей
type AccountReader interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]model.Account, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter model.TransactionFilter) ([]model.Transaction, error)
	ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]model.Beneficiary, error)
}

// AccountHandler обрабатывает запросы чтения счетов и истории операций
type AccountHandler struct {
	accounts AccountReader
	logger   *logrus.Logger
}

func NewAccountHandler(accounts AccountReader, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// RegisterRoutes регистрирует маршруты на /api роутере
func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.ListAccounts).Methods(http.MethodGet)
	router.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	router.HandleFunc("/beneficiaries", h.ListBeneficiaries).Methods(http.MethodGet)
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.accounts.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "accounts": accounts})
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		h.logger.WithError(err).Warn("Некорректные параметры выборки транзакций")
		writeFailure(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	transactions, err := h.accounts.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "transactions": transactions})
}

func (h *AccountHandler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	beneficiaries, err := h.accounts.ListBeneficiaries(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "beneficiaries": beneficiaries})
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseTransactionFilter(r *http.Request) (model.TransactionFilter, error) {
	q := r.URL.Query()
	var filter model.TransactionFilter

	if v := q.Get("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, filterError("account_id must be a UUID")
		}
		filter.AccountID = &id
	}

	switch t := model.TransactionType(q.Get("type")); t {
	case "", model.TransactionTypeInternalTransfer, model.TransactionTypeExternalTransfer:
		filter.Type = t
	default:
		return filter, filterError("type must be internal_transfer or external_transfer")
	}

	switch s := model.TransactionStatus(q.Get("status")); s {
	case "", model.TransactionStatusCompleted, model.TransactionStatusFailed:
		filter.Status = s
	default:
		return filter, filterError("status must be completed or failed")
	}

	bounds := []struct {
		name string
		dst  **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	}
	for _, b := range bounds {
		v := q.Get(b.name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, filterError(b.name + " must be an RFC3339 timestamp")
		}
		*b.dst = &ts
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, filterError("limit must be a positive integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}
