package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config содержит настройки приложения
type Config struct {
	DBHost     string // Хост базы данных
	DBPort     string // Порт базы данных
	DBUser     string // Пользователь базы данных
	DBPassword string // Пароль базы данных
	DBName     string // Имя базы данных
	DBSSLMode  string // Режим SSL для подключения к БД

	ServerAddr string // Адрес HTTP сервера
	LogLevel   string // Уровень логирования

	JWTSecret   string        // Секрет для проверки JWT
	TokenExpiry time.Duration // Время жизни выпускаемых токенов
	HMACSecret  string        // Ключ для токенов карт
	PGPKeyPath  string        // Путь к PGP ключу для запечатывания данных OTP
	Currency    string        // Единственная поддерживаемая валюта

	OTPTTL           time.Duration // Время жизни одноразового кода
	OTPBcryptCost    int           // Стоимость bcrypt для хеша кода
	OTPIssueLimit    int           // Максимум выпусков кода за окно
	OTPIssueWindow   time.Duration // Окно ограничения выпуска
	OTPVerifyLimit   int           // Максимум попыток подтверждения за окно
	OTPVerifyWindow  time.Duration // Окно ограничения попыток подтверждения
	OTPPurgeSchedule string        // Cron расписание очистки просроченных кодов

	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPass           string
	SMTPFrom           string
	EmailSenderEnabled bool
	InsecureSkipVerify bool

	RabbitMQURL   string // Брокер для алертов сверки (пусто - только лог)
	AlertExchange string
	RedisURL      string // Redis для лимита выпуска OTP (пусто - без лимита)
}

// DSN строка подключения к PostgreSQL
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// LoadConfig загружает конфигурацию из .env файла и переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем переменные окружения из .env файла
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Файл .env не найден")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	config := &Config{
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		ServerAddr: v.GetString("SERVER_ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),

		JWTSecret:   v.GetString("JWT_SECRET"),
		TokenExpiry: v.GetDuration("JWT_TOKEN_EXPIRY"),
		HMACSecret:  v.GetString("HMAC_SECRET"),
		PGPKeyPath:  v.GetString("PGP_KEY_PATH"),
		Currency:    strings.ToUpper(v.GetString("CURRENCY")),

		OTPTTL:           v.GetDuration("OTP_TTL"),
		OTPBcryptCost:    v.GetInt("OTP_BCRYPT_COST"),
		OTPIssueLimit:    v.GetInt("OTP_ISSUE_LIMIT"),
		OTPIssueWindow:   v.GetDuration("OTP_ISSUE_WINDOW"),
		OTPVerifyLimit:   v.GetInt("OTP_VERIFY_LIMIT"),
		OTPVerifyWindow:  v.GetDuration("OTP_VERIFY_WINDOW"),
		OTPPurgeSchedule: v.GetString("OTP_PURGE_SCHEDULE"),

		SMTPHost:           v.GetString("SMTP_HOST"),
		SMTPPort:           v.GetInt("SMTP_PORT"),
		SMTPUser:           v.GetString("SMTP_USER"),
		SMTPPass:           v.GetString("SMTP_PASS"),
		SMTPFrom:           v.GetString("SMTP_FROM"),
		EmailSenderEnabled: v.GetBool("EMAIL_SENDER_ENABLED"),
		InsecureSkipVerify: v.GetBool("INSECURE_SKIP_VERIFY"),

		RabbitMQURL:   v.GetString("RABBITMQ_URL"),
		AlertExchange: v.GetString("ALERT_EXCHANGE"),
		RedisURL:      v.GetString("REDIS_URL"),
	}

	if config.SMTPFrom == "" {
		config.SMTPFrom = config.SMTPUser
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bankly")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SERVER_ADDR", ":8080")
	// Debug для разработки, info для продакшена
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("JWT_SECRET", "default-secret-key")
	v.SetDefault("JWT_TOKEN_EXPIRY", "24h")
	v.SetDefault("PGP_KEY_PATH", "config/pgp-key.asc")
	v.SetDefault("CURRENCY", "JOD")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_BCRYPT_COST", 10)
	v.SetDefault("OTP_ISSUE_LIMIT", 5)
	v.SetDefault("OTP_ISSUE_WINDOW", "15m")
	v.SetDefault("OTP_VERIFY_LIMIT", 5)
	v.SetDefault("OTP_VERIFY_WINDOW", "15m")
	v.SetDefault("OTP_PURGE_SCHEDULE", "*/15 * * * *")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_SENDER_ENABLED", false)
	v.SetDefault("INSECURE_SKIP_VERIFY", false)
	v.SetDefault("ALERT_EXCHANGE", "bankly.reconciliation")
}

func (c *Config) validate() error {
	if len(c.HMACSecret) < 32 {
		return fmt.Errorf("HMAC_SECRET must be at least 32 bytes")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.Currency != "JOD" {
		return fmt.Errorf("unsupported CURRENCY %q: only JOD is supported", c.Currency)
	}
	if c.OTPIssueLimit < 0 {
		return fmt.Errorf("OTP_ISSUE_LIMIT must not be negative")
	}
	if c.OTPVerifyLimit < 0 {
		return fmt.Errorf("OTP_VERIFY_LIMIT must not be negative")
	}
	return nil
}
