package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/money"
)

// Типы сигналов сверки
const (
	AlertAuditWriteFailure   = "audit_write_failure"   // деньги перемещены, запись журнала потеряна
	AlertCompensationFailure = "compensation_failure" // списание не удалось откатить
)

const reconciliationRoutingKey = "reconciliation.alert"

// ReconciliationAlert сигнал о расхождении между балансами и журналом операций
type ReconciliationAlert struct {
	Kind          string       `json:"kind"`
	TransactionID uuid.UUID    `json:"transaction_id"`
	UserID        uuid.UUID    `json:"user_id"`
	FromAccountID uuid.UUID    `json:"from_account_id"`
	ToAccountID   uuid.UUID    `json:"to_account_id"`
	Amount        money.Amount `json:"amount"`
	Reason        string       `json:"reason"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// Publisher публикует сигналы сверки
type Publisher interface {
	PublishReconciliationAlert(ctx context.Context, alert ReconciliationAlert) error
	Close()
}

// amqpChannel часть *amqp091.Channel, которой пользуется продюсер
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Producer держит соединение с RabbitMQ и канал для публикации
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  amqpChannel
	exchange string
	logger   *logrus.Logger
}

// sanitizeAMQPURL убирает кавычки и мусор перед схемой
func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewProducer(amqpURL, exchange string, logger *logrus.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rabbitmq url: %w", err)
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	return &Producer{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// PublishReconciliationAlert публикует сигнал в durable topic exchange.
// При ошибке канал переоткрывается и публикация повторяется один раз.
func (p *Producer) PublishReconciliationAlert(ctx context.Context, alert ReconciliationAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, body)
	if err == nil {
		return nil
	}

	p.logger.WithError(err).WithField("exchange", p.exchange).Warn("Ошибка публикации, переоткрываем канал")
	if p.conn == nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("failed to reopen rabbitmq channel: %w", chErr)
	}
	p.channel = ch
	if err := p.publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (p *Producer) publish(ctx context.Context, body []byte) error {
	if err := p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		reconciliationRoutingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogPublisher используется, когда RabbitMQ не настроен или недоступен:
// сигнал пишется в лог и не теряется бесследно.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishReconciliationAlert(_ context.Context, alert ReconciliationAlert) error {
	p.logger.WithFields(logrus.Fields{
		"kind":           alert.Kind,
		"transaction_id": alert.TransactionID,
		"user_id":        alert.UserID,
		"from_account":   alert.FromAccountID,
		"to_account":     alert.ToAccountID,
		"amount":         alert.Amount.String(),
		"reason":         alert.Reason,
		"mode":           "fallback",
	}).Warn("Сигнал сверки не отправлен в брокер")
	return nil
}

func (p *LogPublisher) Close() {}
