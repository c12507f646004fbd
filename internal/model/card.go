package model

import (
	"time"

	"github.com/google/uuid"
)

// Card хранит только маскированный номер: полный номер и CVV не сохраняются
type Card struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	AccountID      *uuid.UUID `json:"account_id,omitempty" db:"account_id"`
	MaskedNumber   string     `json:"masked_number" db:"masked_number"`
	LastFour       string     `json:"last_four" db:"last_four"`
	CardHolderName string     `json:"card_holder_name" db:"card_holder_name"`
	BankName       string     `json:"bank_name" db:"bank_name"`
	ExpiryMonth    int        `json:"expiry_month" db:"expiry_month"`
	ExpiryYear     int        `json:"expiry_year" db:"expiry_year"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	Token          string     `json:"-" db:"card_token"` // HMAC, необратим
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// CardDetails данные карты, введенные пользователем при запросе OTP.
// Живут только в памяти запроса.
type CardDetails struct {
	CardNumber     string     `json:"card_number"`
	CardHolderName string     `json:"card_holder_name"`
	BankName       string     `json:"bank_name"`
	ExpiryMonth    int        `json:"expiry_month"`
	ExpiryYear     int        `json:"expiry_year"`
	CVV            string     `json:"cvv"`
	AccountID      *uuid.UUID `json:"account_id,omitempty"`
}

// PendingCard карта, ожидающая подтверждения OTP (без номера и CVV)
type PendingCard struct {
	AccountID      *uuid.UUID `json:"account_id,omitempty"`
	LastFour       string     `json:"last_four"`
	Token          string     `json:"token"`
	CardHolderName string     `json:"card_holder_name"`
	BankName       string     `json:"bank_name"`
	ExpiryMonth    int        `json:"expiry_month"`
	ExpiryYear     int        `json:"expiry_year"`
}

type SetCardActiveRequest struct {
	IsActive *bool `json:"is_active"`
}
