package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

type OTPRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewOTPRepository(db *sql.DB, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{db: db, logger: logger}
}

func (r *OTPRepository) Create(ctx context.Context, otp *model.OTPVerification) error {
	query := `
		INSERT INTO otp_verifications (id, user_id, email, purpose, code_hash, expires_at, verified, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		otp.ID,
		otp.UserID,
		otp.Email,
		otp.Purpose,
		otp.CodeHash,
		otp.ExpiresAt,
		otp.Verified,
		otp.Metadata,
		otp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", mapPQError(err))
	}
	return nil
}

// FindActive возвращает неподтвержденные и непросроченные коды на момент now, новые первыми
func (r *OTPRepository) FindActive(
	ctx context.Context,
	userID uuid.UUID,
	email string,
	purpose model.OTPPurpose,
	now time.Time,
) ([]model.OTPVerification, error) {
	query := `
		SELECT id, user_id, email, purpose, code_hash, expires_at, verified, metadata, created_at
		FROM otp_verifications
		WHERE user_id = $1 AND email = $2 AND purpose = $3
		  AND verified = FALSE AND expires_at > $4
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, email, purpose, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query otp: %w", err)
	}
	defer rows.Close()

	var result []model.OTPVerification
	for rows.Next() {
		var otp model.OTPVerification
		if err := rows.Scan(
			&otp.ID,
			&otp.UserID,
			&otp.Email,
			&otp.Purpose,
			&otp.CodeHash,
			&otp.ExpiresAt,
			&otp.Verified,
			&otp.Metadata,
			&otp.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan otp: %w", err)
		}
		result = append(result, otp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return result, nil
}

// MarkVerified однократно переводит код в состояние "подтвержден".
// Если код уже подтвержден другим запросом, возвращает ErrAlreadyVerified.
func (r *OTPRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE otp_verifications
		SET verified = TRUE
		WHERE id = $1 AND verified = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyVerified
	}
	return nil
}

// DeleteExpired удаляет коды, срок действия которых истек до now
func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_verifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	r.logger.WithField("deleted", n).Debug("Просроченные OTP удалены")
	return n, nil
}
