package service

import (
	"fmt"
	"time"
)

// Kind класс ошибки, по которому транспорт выбирает код ответа
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindRateLimited       Kind = "rate_limited"
	KindPersistence       Kind = "persistence"
	KindCompensation      Kind = "compensation"
	KindDispatch          Kind = "dispatch"
	KindInternal          Kind = "internal"
)

// Error ошибка бизнес-операции. Code стабилен и уходит клиенту,
// Message короткий текст для пользователя, Err внутренняя причина (в ответ не попадает).
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по Code, чтобы errors.Is(err, ErrInsufficientFunds)
// срабатывал для ошибок с уточненным сообщением.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidAmount       = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "Amount must be a positive number with at most two decimal places"}
	ErrSameAccount         = &Error{Kind: KindValidation, Code: "same_account", Message: "Cannot transfer to the same account"}
	ErrAccountNotFound     = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "Account not found"}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds, Code: "insufficient_funds", Message: "Insufficient funds"}
	ErrRecipientRequired   = &Error{Kind: KindValidation, Code: "recipient_required", Message: "Phone number or alias is required"}
	ErrBeneficiaryNotFound = &Error{Kind: KindNotFound, Code: "beneficiary_not_found", Message: "Beneficiary not found"}
	ErrPersistence         = &Error{Kind: KindPersistence, Code: "persistence_failure", Message: "Transfer could not be completed"}
	ErrCompensation        = &Error{Kind: KindCompensation, Code: "compensation_failure", Message: "Transfer failed and requires manual reconciliation"}

	ErrInvalidEmail         = &Error{Kind: KindValidation, Code: "invalid_email", Message: "Invalid email address"}
	ErrInvalidPurpose       = &Error{Kind: KindValidation, Code: "invalid_purpose", Message: "Unknown OTP purpose"}
	ErrInvalidCardDetails   = &Error{Kind: KindValidation, Code: "invalid_card_details", Message: "Invalid card details"}
	ErrOTPRateLimited       = &Error{Kind: KindRateLimited, Code: "otp_rate_limited", Message: "Too many verification codes requested"}
	ErrOTPVerifyRateLimited = &Error{Kind: KindRateLimited, Code: "otp_verify_rate_limited", Message: "Too many verification attempts"}
	ErrOTPDispatch          = &Error{Kind: KindDispatch, Code: "otp_dispatch_failed", Message: "Failed to send verification code"}
	ErrOTPInvalidOrExpired  = &Error{Kind: KindValidation, Code: "otp_invalid_or_expired", Message: "Invalid or expired OTP"}
	ErrOTPAlreadyConsumed   = &Error{Kind: KindConflict, Code: "otp_already_consumed", Message: "OTP has already been used"}
	ErrCardProvisioning     = &Error{Kind: KindInternal, Code: "card_provisioning_failed", Message: "Failed to add card"}
	ErrCardNotFound         = &Error{Kind: KindNotFound, Code: "card_not_found", Message: "Card not found"}

	ErrInternal = &Error{Kind: KindInternal, Code: "internal_error", Message: "Internal error"}
)

// wrap возвращает копию sentinel с причиной
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// withMessage возвращает копию sentinel с уточненным сообщением
func withMessage(sentinel *Error, message string) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: message}
}
