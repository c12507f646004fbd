package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

type BeneficiaryRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewBeneficiaryRepository(db *sql.DB, logger *logrus.Logger) *BeneficiaryRepository {
	return &BeneficiaryRepository{db: db, logger: logger}
}

func (r *BeneficiaryRepository) Create(ctx context.Context, b *model.Beneficiary) error {
	query := `
		INSERT INTO beneficiaries (id, user_id, phone_number, alias, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, b.ID, b.UserID, b.PhoneNumber, b.Alias, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create beneficiary: %w", mapPQError(err))
	}
	return nil
}

func (r *BeneficiaryRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*model.Beneficiary, error) {
	query := `
		SELECT id, user_id, phone_number, alias, created_at
		FROM beneficiaries
		WHERE id = $1 AND user_id = $2
	`
	var b model.Beneficiary
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&b.ID, &b.UserID, &b.PhoneNumber, &b.Alias, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get beneficiary: %w", err)
	}
	return &b, nil
}

// FindByRecipient ищет получателя с тем же телефоном и псевдонимом (NULL совпадает с NULL)
func (r *BeneficiaryRepository) FindByRecipient(ctx context.Context, userID uuid.UUID, phone, alias *string) (*model.Beneficiary, error) {
	query := `
		SELECT id, user_id, phone_number, alias, created_at
		FROM beneficiaries
		WHERE user_id = $1
		  AND phone_number IS NOT DISTINCT FROM $2
		  AND alias IS NOT DISTINCT FROM $3
		LIMIT 1
	`
	var b model.Beneficiary
	err := r.db.QueryRowContext(ctx, query, userID, phone, alias).Scan(&b.ID, &b.UserID, &b.PhoneNumber, &b.Alias, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find beneficiary: %w", err)
	}
	return &b, nil
}

func (r *BeneficiaryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Beneficiary, error) {
	query := `
		SELECT id, user_id, phone_number, alias, created_at
		FROM beneficiaries
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query beneficiaries: %w", err)
	}
	defer rows.Close()

	beneficiaries := make([]model.Beneficiary, 0)
	for rows.Next() {
		var b model.Beneficiary
		if err := rows.Scan(&b.ID, &b.UserID, &b.PhoneNumber, &b.Alias, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		beneficiaries = append(beneficiaries, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return beneficiaries, nil
}
