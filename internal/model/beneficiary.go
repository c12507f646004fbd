package model

import (
	"time"

	"github.com/google/uuid"
)

// Beneficiary сохраненный внешний получатель (телефон и/или псевдоним)
type Beneficiary struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	PhoneNumber *string   `json:"phone_number,omitempty" db:"phone_number"`
	Alias       *string   `json:"alias,omitempty" db:"alias"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DisplayName псевдоним, а если его нет - телефон
func (b *Beneficiary) DisplayName() string {
	if b.Alias != nil && *b.Alias != "" {
		return *b.Alias
	}
	if b.PhoneNumber != nil {
		return *b.PhoneNumber
	}
	return ""
}
