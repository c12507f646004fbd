package model

import (
	"time"

	"github.com/google/uuid"
)

// OTPPurpose назначение одноразового кода
type OTPPurpose string

const (
	OTPPurposeAddCard     OTPPurpose = "add_card"     // добавление карты, несет PendingCard
	OTPPurposeVerifyEmail OTPPurpose = "verify_email" // подтверждение адреса, без данных
)

// RequiresPayload сообщает, должна ли к коду прилагаться ожидающая операция
func (p OTPPurpose) RequiresPayload() bool {
	return p == OTPPurposeAddCard
}

func (p OTPPurpose) Known() bool {
	switch p {
	case OTPPurposeAddCard, OTPPurposeVerifyEmail:
		return true
	}
	return false
}

// OTPVerification запись о выпущенном коде. Сам код хранится только в виде bcrypt хеша,
// Metadata - запечатанный PGP JSON с данными ожидающей операции.
type OTPVerification struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Email     string     `json:"email" db:"email"`
	Purpose   OTPPurpose `json:"purpose" db:"purpose"`
	CodeHash  string     `json:"-" db:"code_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Verified  bool       `json:"verified" db:"verified"`
	Metadata  *string    `json:"-" db:"metadata"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// OTPPayload варианты данных, привязанных к коду по назначению
type OTPPayload struct {
	Card *PendingCard `json:"card,omitempty"`
}

type SendOTPRequest struct {
	Email       string       `json:"email"`
	Purpose     OTPPurpose   `json:"purpose"`
	CardDetails *CardDetails `json:"card_details,omitempty"`
}

type VerifyOTPRequest struct {
	Email   string     `json:"email"`
	OTPCode string     `json:"otp_code"`
	Purpose OTPPurpose `json:"purpose"`
}

type SendOTPResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VerifyOTPResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Card    *Card  `json:"card,omitempty"`
}
