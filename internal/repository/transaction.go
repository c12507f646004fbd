package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

// TransactionRepository журнал операций. Только добавление и чтение:
// методов изменения или удаления записей нет.
type TransactionRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewTransactionRepository(db *sql.DB, logger *logrus.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

func (r *TransactionRepository) AppendTransaction(ctx context.Context, transaction *model.Transaction) error {
	r.logger.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"from_account":   transaction.FromAccountID,
		"to_account":     transaction.ToAccountID,
		"amount":         transaction.Amount,
		"type":           transaction.TransactionType,
		"status":         transaction.Status,
	}).Info("Создание новой транзакции")

	query := `
        INSERT INTO transactions (id, user_id, from_account_id, to_account_id, amount,
                                  transaction_type, status, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := r.db.ExecContext(
		ctx,
		query,
		transaction.ID,
		transaction.UserID,
		transaction.FromAccountID,
		transaction.ToAccountID,
		transaction.Amount,
		transaction.TransactionType,
		transaction.Status,
		transaction.Description,
		transaction.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Ошибка при создании транзакции")
		return fmt.Errorf("failed to create transaction: %w", mapPQError(err))
	}

	return nil
}

// ListTransactions возвращает транзакции пользователя, новые первыми
func (r *TransactionRepository) ListTransactions(
	ctx context.Context,
	ownerID uuid.UUID,
	filter model.TransactionFilter,
) ([]model.Transaction, error) {
	var (
		conditions = []string{"user_id = $1"}
		args       = []interface{}{ownerID}
	)

	addArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AccountID != nil {
		p := addArg(*filter.AccountID)
		conditions = append(conditions, fmt.Sprintf("(from_account_id = %s OR to_account_id = %s)", p, p))
	}
	if filter.Type != "" {
		conditions = append(conditions, "transaction_type = "+addArg(filter.Type))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+addArg(filter.Status))
	}
	if filter.Since != nil {
		conditions = append(conditions, "created_at >= "+addArg(*filter.Since))
	}
	if filter.Until != nil {
		conditions = append(conditions, "created_at < "+addArg(*filter.Until))
	}

	query := `SELECT id, user_id, from_account_id, to_account_id, amount, transaction_type,
                     status, description, created_at
              FROM transactions
              WHERE ` + strings.Join(conditions, " AND ") + `
              ORDER BY created_at DESC
              LIMIT ` + addArg(filter.EffectiveLimit())

	r.logger.WithFields(logrus.Fields{
		"user_id": ownerID,
		"filters": len(conditions) - 1,
	}).Debug("Запрос транзакций пользователя")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Ошибка запроса транзакций")
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]model.Transaction, 0)
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.FromAccountID,
			&tx.ToAccountID,
			&tx.Amount,
			&tx.TransactionType,
			&tx.Status,
			&tx.Description,
			&tx.CreatedAt,
		); err != nil {
			r.logger.WithError(err).Error("Ошибка чтения строки транзакции")
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	r.logger.WithField("count", len(transactions)).Debug("Транзакции успешно получены")
	return transactions, nil
}
