package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/config"
	"bankly-api/internal/crypto"
	"bankly-api/internal/events"
	"bankly-api/internal/handler"
	"bankly-api/internal/migrations"
	"bankly-api/internal/ratelimit"
	"bankly-api/internal/repository"
	"bankly-api/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Загрузка конфигурации приложения
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Неизвестный уровень логирования, используется info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Подключение к PostgreSQL
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	if err := db.PingContext(startupCtx); err != nil {
		logger.Fatalf("Ошибка проверки соединения с БД: %v", err)
	}
	if err := migrations.Up(startupCtx, db); err != nil {
		logger.Fatalf("Ошибка применения миграций: %v", err)
	}

	// PGP ключ для запечатывания данных ожидающих операций OTP
	pgpManager, err := crypto.NewPGPManager(cfg.PGPKeyPath, 0)
	if err != nil {
		logger.Fatalf("Ошибка инициализации PGP: %v", err)
	}

	// Алерты сверки уходят в RabbitMQ, без брокера только в лог
	var alerts events.Publisher = events.NewLogPublisher(logger)
	if cfg.RabbitMQURL != "" {
		producer, err := events.NewProducer(cfg.RabbitMQURL, cfg.AlertExchange, logger)
		if err != nil {
			logger.WithError(err).Error("RabbitMQ недоступен, алерты будут только в логе")
		} else {
			alerts = producer
		}
	}
	defer alerts.Close()

	var limiter service.RateLimiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewClient(startupCtx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis недоступен, лимиты OTP отключены")
		} else {
			defer client.Close()
			limiter = ratelimit.NewRedisLimiter(client, "")
		}
	}

	// Инициализация репозиториев
	logger.Info("Инициализация репозиториев...")
	accountRepo := repository.NewAccountRepository(db, logger)
	transactionRepo := repository.NewTransactionRepository(db, logger)
	beneficiaryRepo := repository.NewBeneficiaryRepository(db, logger)
	cardRepo := repository.NewCardRepository(db, logger)
	otpRepo := repository.NewOTPRepository(db, logger)
	emailSender := service.NewEmailSender(cfg, logger)

	// Инициализация сервисов
	logger.Info("Инициализация сервисов...")
	authService := service.NewAuthService(cfg.JWTSecret, cfg.TokenExpiry, logger)
	accountService := service.NewAccountService(accountRepo, transactionRepo, beneficiaryRepo, logger)
	transferService := service.NewTransferService(accountRepo, transactionRepo, beneficiaryRepo, alerts, logger)
	cardService := service.NewCardService(cardRepo, accountRepo, []byte(cfg.HMACSecret), logger)
	otpService := service.NewOTPService(otpRepo, cardService, emailSender, pgpManager, limiter, service.OTPConfig{
		TTL:          cfg.OTPTTL,
		BcryptCost:   cfg.OTPBcryptCost,
		IssueLimit:   cfg.OTPIssueLimit,
		IssueWindow:  cfg.OTPIssueWindow,
		VerifyLimit:  cfg.OTPVerifyLimit,
		VerifyWindow: cfg.OTPVerifyWindow,
	}, logger)

	// Настройка маршрутизатора
	router := mux.NewRouter()
	handler.NewHealthHandler(db, logger).RegisterRoutes(router)

	// Защищенные API маршруты (требуется JWT токен)
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(handler.AuthMiddleware(authService, logger))
	handler.NewAccountHandler(accountService, logger).RegisterRoutes(apiRouter)
	handler.NewTransferHandler(transferService, logger).RegisterRoutes(apiRouter)
	handler.NewOTPHandler(otpService, logger).RegisterRoutes(apiRouter)
	handler.NewCardHandler(cardService, logger).RegisterRoutes(apiRouter)

	// Планировщик очистки просроченных кодов
	c := cron.New()
	_, err = c.AddFunc(cfg.OTPPurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := otpService.PurgeExpired(ctx); err != nil {
			logger.WithError(err).Error("Ошибка очистки просроченных OTP")
		}
	})
	if err != nil {
		logger.Fatalf("Ошибка настройки планировщика: %v", err)
	}
	c.Start()

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Запуск сервера на %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Ошибка сервера: %v", err)
		}
	}()

	// Ожидание сигналов для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Завершение работы сервера...")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Ошибка при завершении работы сервера: %v", err)
	}
	logger.Info("Сервер успешно остановлен")
}
