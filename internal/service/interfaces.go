package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bankly-api/internal/events"
	"bankly-api/internal/model"
	"bankly-api/internal/money"
)

// AccountStore хранилище счетов. UpdateBalance пишет баланс только при совпадении
// версии и возвращает новую версию либо repository.ErrVersionConflict.
type AccountStore interface {
	GetAccount(ctx context.Context, id, ownerID uuid.UUID) (*model.Account, error)
	UpdateBalance(ctx context.Context, id, ownerID uuid.UUID, newBalance money.Amount, expectedVersion int64) (int64, error)
	ListByUser(ctx context.Context, ownerID uuid.UUID) ([]model.Account, error)
}

// LedgerWriter журнал операций, только добавление
type LedgerWriter interface {
	AppendTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, ownerID uuid.UUID, filter model.TransactionFilter) ([]model.Transaction, error)
}

type BeneficiaryStore interface {
	Create(ctx context.Context, b *model.Beneficiary) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*model.Beneficiary, error)
	FindByRecipient(ctx context.Context, userID uuid.UUID, phone, alias *string) (*model.Beneficiary, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Beneficiary, error)
}

type OTPStore interface {
	Create(ctx context.Context, otp *model.OTPVerification) error
	FindActive(ctx context.Context, userID uuid.UUID, email string, purpose model.OTPPurpose, now time.Time) ([]model.OTPVerification, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CardStore interface {
	Create(ctx context.Context, card *model.Card) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Card, error)
	SetActive(ctx context.Context, cardID, userID uuid.UUID, active bool) (*model.Card, error)
}

// MessageSender доставляет сообщение по адресу (e-mail)
type MessageSender interface {
	SendMessage(ctx context.Context, address, subject, body string) error
}

// PayloadSealer шифрует данные, которые хранятся до подтверждения OTP
type PayloadSealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

type AlertPublisher interface {
	PublishReconciliationAlert(ctx context.Context, alert events.ReconciliationAlert) error
}

type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, time.Duration, error)
}

// CardProvisioner проверяет данные карты при выпуске OTP и создает карту после подтверждения
type CardProvisioner interface {
	Prepare(ctx context.Context, userID uuid.UUID, details model.CardDetails) (*model.PendingCard, error)
	Provision(ctx context.Context, userID uuid.UUID, pending model.PendingCard) (*model.Card, error)
}
