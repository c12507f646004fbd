package model

import (
	"time"

	"github.com/google/uuid"

	"bankly-api/internal/money"
)

type TransactionType string

const (
	TransactionTypeInternalTransfer TransactionType = "internal_transfer" // перевод между своими счетами
	TransactionTypeExternalTransfer TransactionType = "external_transfer" // перевод внешнему получателю
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction неизменяемая запись журнала операций
type Transaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	UserID          uuid.UUID         `json:"user_id" db:"user_id"`
	FromAccountID   uuid.UUID         `json:"from_account_id" db:"from_account_id"`
	ToAccountID     uuid.UUID         `json:"to_account_id" db:"to_account_id"` // для внешних переводов равен FromAccountID
	Amount          money.Amount      `json:"amount" db:"amount"`
	TransactionType TransactionType   `json:"transaction_type" db:"transaction_type"`
	Status          TransactionStatus `json:"status" db:"status"`
	Description     *string           `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// TransactionFilter параметры выборки журнала
type TransactionFilter struct {
	AccountID *uuid.UUID // счет списания или зачисления
	Type      TransactionType
	Status    TransactionStatus
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 200
)

// EffectiveLimit возвращает лимит выборки с учетом значений по умолчанию
func (f TransactionFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultTransactionLimit
	case f.Limit > MaxTransactionLimit:
		return MaxTransactionLimit
	default:
		return f.Limit
	}
}

type TransferRequest struct {
	FromAccountID uuid.UUID  `json:"from_account_id"`
	ToAccountID   uuid.UUID  `json:"to_account_id"`
	Amount        money.Text `json:"amount"`
	Description   string     `json:"description,omitempty"`
}

type ExternalTransferRequest struct {
	FromAccountID uuid.UUID  `json:"from_account_id"`
	Amount        money.Text `json:"amount"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	Alias         string     `json:"alias,omitempty"`
	BeneficiaryID *uuid.UUID `json:"beneficiary_id,omitempty"`
	Description   string     `json:"description,omitempty"`
}

// TransferResult ответ механизма переводов
type TransferResult struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	TransactionID uuid.UUID    `json:"transaction_id"`
	FromAccount   *Account     `json:"from_account"`
	ToAccount     *Account     `json:"to_account,omitempty"`
	Beneficiary   *Beneficiary `json:"beneficiary,omitempty"`
}
