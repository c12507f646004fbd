package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
	"bankly-api/internal/money"
)

type AccountRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewAccountRepository(db *sql.DB, logger *logrus.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

// GetAccount возвращает счет, только если он принадлежит ownerID
func (r *AccountRepository) GetAccount(ctx context.Context, id, ownerID uuid.UUID) (*model.Account, error) {
	query := `
        SELECT id, user_id, bank_name, balance, currency, version, created_at, updated_at
        FROM accounts
        WHERE id = $1 AND user_id = $2
    `

	var account model.Account
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&account.ID,
		&account.UserID,
		&account.BankName,
		&account.Balance,
		&account.Currency,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// UpdateBalance записывает новый баланс, если версия счета не изменилась с момента чтения.
// Возвращает новую версию или ErrVersionConflict.
func (r *AccountRepository) UpdateBalance(
	ctx context.Context,
	id, ownerID uuid.UUID,
	newBalance money.Amount,
	expectedVersion int64,
) (int64, error) {
	query := `
        UPDATE accounts
        SET balance = $1,
            version = version + 1,
            updated_at = NOW()
        WHERE id = $2 AND user_id = $3 AND version = $4
        RETURNING version
    `

	var version int64
	err := r.db.QueryRowContext(ctx, query, newBalance, id, ownerID, expectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.WithFields(logrus.Fields{
				"account_id":       id,
				"expected_version": expectedVersion,
			}).Warn("Конфликт версий при обновлении баланса")
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("failed to update balance: %w", mapPQError(err))
	}

	return version, nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, ownerID uuid.UUID) ([]model.Account, error) {
	query := `
		SELECT id, user_id, bank_name, balance, currency, version, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.BankName,
			&account.Balance,
			&account.Currency,
			&account.Version,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return accounts, nil
}
