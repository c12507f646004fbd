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

type CardRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewCardRepository(db *sql.DB, logger *logrus.Logger) *CardRepository {
	return &CardRepository{db: db, logger: logger}
}

const cardColumns = `id, user_id, account_id, masked_number, last_four, card_holder_name, bank_name,
               expiry_month, expiry_year, is_active, card_token, created_at, updated_at`

func (r *CardRepository) Create(ctx context.Context, card *model.Card) error {
	query := `
        INSERT INTO cards (` + cardColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := r.db.ExecContext(ctx, query,
		card.ID,
		card.UserID,
		card.AccountID,
		card.MaskedNumber,
		card.LastFour,
		card.CardHolderName,
		card.BankName,
		card.ExpiryMonth,
		card.ExpiryYear,
		card.IsActive,
		card.Token,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", mapPQError(err))
	}
	return nil
}

func (r *CardRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Card, error) {
	query := `
        SELECT ` + cardColumns + `
        FROM cards
        WHERE user_id = $1
        ORDER BY created_at DESC
    `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user cards: %w", err)
	}
	defer rows.Close()

	cards := make([]model.Card, 0)
	for rows.Next() {
		var card model.Card
		if err := rows.Scan(
			&card.ID,
			&card.UserID,
			&card.AccountID,
			&card.MaskedNumber,
			&card.LastFour,
			&card.CardHolderName,
			&card.BankName,
			&card.ExpiryMonth,
			&card.ExpiryYear,
			&card.IsActive,
			&card.Token,
			&card.CreatedAt,
			&card.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return cards, nil
}

// SetActive включает или блокирует карту пользователя
func (r *CardRepository) SetActive(ctx context.Context, cardID, userID uuid.UUID, active bool) (*model.Card, error) {
	query := `
		UPDATE cards
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING ` + cardColumns

	var card model.Card
	err := r.db.QueryRowContext(ctx, query, active, cardID, userID).Scan(
		&card.ID,
		&card.UserID,
		&card.AccountID,
		&card.MaskedNumber,
		&card.LastFour,
		&card.CardHolderName,
		&card.BankName,
		&card.ExpiryMonth,
		&card.ExpiryYear,
		&card.IsActive,
		&card.Token,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update card status: %w", err)
	}
	return &card, nil
}
