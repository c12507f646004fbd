// Команда devtoken выпускает bearer токен для локальной отладки API.
// Секрет и время жизни берутся из той же конфигурации, что и у сервера.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/config"
	"bankly-api/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	if err := run(cfg, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.Config, args []string, out io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userFlag := fs.String("user", "", "id пользователя (uuid), попадает в subject токена")
	ttl := fs.Duration("ttl", cfg.TokenExpiry, "время жизни токена")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	userID, err := uuid.Parse(*userFlag)
	if err != nil || userID == uuid.Nil {
		return fmt.Errorf("-user must be a non-nil uuid, got %q", *userFlag)
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive, got %s", *ttl)
	}

	token, err := service.NewAuthService(cfg.JWTSecret, *ttl, logger).GenerateJWTToken(userID)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"expires_at": time.Now().Add(*ttl).Format(time.RFC3339),
	}).Info("Токен выпущен")
	_, err = fmt.Fprintln(out, token)
	return err
}
