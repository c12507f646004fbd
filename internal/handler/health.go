package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler проверка живости, доступна без токена
type HealthHandler struct {
	db     Pinger
	logger *logrus.Logger
}

func NewHealthHandler(db Pinger, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WithError(err).Error("База данных недоступна")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
}
