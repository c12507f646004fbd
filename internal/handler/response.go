package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"bankly-api/internal/service"
)

// errorResponse тело ответа при ошибке. Внутренняя причина клиенту не отдается.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[service.Kind]int{
	service.KindValidation:        http.StatusBadRequest,
	service.KindNotFound:          http.StatusNotFound,
	service.KindInsufficientFunds: http.StatusUnprocessableEntity,
	service.KindConflict:          http.StatusConflict,
	service.KindRateLimited:       http.StatusTooManyRequests,
	service.KindPersistence:       http.StatusInternalServerError,
	service.KindCompensation:      http.StatusInternalServerError,
	service.KindDispatch:          http.StatusInternalServerError,
	service.KindInternal:          http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: code, Message: message})
}

// writeError переводит ошибку сервиса в HTTP ответ
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		logger.WithError(err).Error("Необработанная ошибка")
		svcErr = service.ErrInternal
	}

	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("code", svcErr.Code).Error("Ошибка обработки запроса")
	}
	if svcErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(svcErr.RetryAfter.Seconds()))))
	}
	writeFailure(w, status, svcErr.Code, svcErr.Message)
}

// decodeJSON читает тело запроса; неизвестные поля отклоняются
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
