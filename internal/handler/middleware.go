package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenParser проверяет bearer токен и возвращает id пользователя
type TokenParser interface {
	ParseToken(token string) (uuid.UUID, error)
}

// AuthMiddleware проверяет наличие и валидность JWT токена в заголовке Authorization
func AuthMiddleware(tokens TokenParser, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Отсутствует заголовок Authorization")
				writeFailure(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				logger.Warn("Неверный формат заголовка Authorization")
				writeFailure(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header")
				return
			}

			userID, err := tokens.ParseToken(parts[1])
			if err != nil {
				logger.WithError(err).Warn("Неверный токен")
				writeFailure(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext id пользователя, положенный AuthMiddleware
func userIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

// requireUser достает пользователя или пишет 401
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	}
	return userID, ok
}
