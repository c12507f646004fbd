package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrAlreadyVerified = errors.New("otp already verified")
	ErrConstraint      = errors.New("constraint violation")
	ErrDuplicate       = errors.New("record already exists")
)

// mapPQError переводит коды PostgreSQL в ошибки репозитория
func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "unique_violation":
		return ErrDuplicate
	case "check_violation", "foreign_key_violation", "not_null_violation":
		return ErrConstraint
	}
	return err
}
