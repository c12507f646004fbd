package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthService проверяет bearer токены. Идентификатор пользователя берется из subject.
type AuthService struct {
	jwtSecret   string
	tokenExpiry time.Duration
	logger      *logrus.Logger
}

func NewAuthService(jwtSecret string, tokenExpiry time.Duration, logger *logrus.Logger) *AuthService {
	return &AuthService{
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

// GenerateJWTToken Генерация JWT токена
func (s *AuthService) GenerateJWTToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken Разбор и валидация JWT токена
func (s *AuthService) ParseToken(tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		s.logger.WithError(err).Warn("Невалидный JWT токен")
		return uuid.Nil, fmt.Errorf("невалидный токен: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.logger.WithField("subject", claims.Subject).Warn("Некорректный subject в токене")
		return uuid.Nil, fmt.Errorf("некорректные claims токена: %w", err)
	}

	s.logger.WithField("user_id", userID).Debug("JWT токен успешно распознан")
	return userID, nil
}
