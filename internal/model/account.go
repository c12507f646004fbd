package model

import (
	"time"

	"github.com/google/uuid"

	"bankly-api/internal/money"
)

// CurrencyJOD единственная поддерживаемая валюта
const CurrencyJOD = "JOD"

type Account struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	UserID    uuid.UUID    `json:"user_id" db:"user_id"`
	BankName  string       `json:"bank_name" db:"bank_name"`
	Balance   money.Amount `json:"balance" db:"balance"`
	Currency  string       `json:"currency" db:"currency"`
	Version   int64        `json:"-" db:"version"` // счетчик оптимистичной блокировки
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
