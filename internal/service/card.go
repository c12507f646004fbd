package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
	"bankly-api/internal/repository"
)

// CardService единственный путь создания карт: Prepare вызывается при выпуске OTP,
// Provision после его подтверждения. Полный номер и CVV дальше Prepare не уходят.
type CardService struct {
	cards    CardStore
	accounts AccountStore
	hmacKey  []byte
	logger   *logrus.Logger
	now      func() time.Time
}

func NewCardService(cards CardStore, accounts AccountStore, hmacKey []byte, logger *logrus.Logger) *CardService {
	return &CardService{
		cards:    cards,
		accounts: accounts,
		hmacKey:  hmacKey,
		logger:   logger,
		now:      time.Now,
	}
}

// Prepare проверяет введенные данные карты и оставляет от них только то,
// что можно хранить: последние 4 цифры и необратимый токен.
func (s *CardService) Prepare(ctx context.Context, userID uuid.UUID, details model.CardDetails) (*model.PendingCard, error) {
	number, err := s.validateCardDetails(details)
	if err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("Некорректные данные карты")
		return nil, err
	}

	if details.AccountID != nil {
		if err := s.checkAccount(ctx, *details.AccountID, userID); err != nil {
			return nil, err
		}
	}

	token, err := s.tokenize(number)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при генерации токена карты")
		return nil, wrap(ErrInternal, err)
	}

	return &model.PendingCard{
		AccountID:      details.AccountID,
		LastFour:       number[len(number)-4:],
		Token:          token,
		CardHolderName: strings.TrimSpace(details.CardHolderName),
		BankName:       strings.TrimSpace(details.BankName),
		ExpiryMonth:    details.ExpiryMonth,
		ExpiryYear:     details.ExpiryYear,
	}, nil
}

// Provision сохраняет активную маскированную карту
func (s *CardService) Provision(ctx context.Context, userID uuid.UUID, pending model.PendingCard) (*model.Card, error) {
	if len(pending.LastFour) != 4 || !model.IsDigits(pending.LastFour) || pending.Token == "" {
		return nil, errors.New("pending card is incomplete")
	}
	if pending.AccountID != nil {
		if err := s.checkAccount(ctx, *pending.AccountID, userID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	card := &model.Card{
		ID:             uuid.New(),
		UserID:         userID,
		AccountID:      pending.AccountID,
		MaskedNumber:   maskCardNumber(pending.LastFour),
		LastFour:       pending.LastFour,
		CardHolderName: pending.CardHolderName,
		BankName:       pending.BankName,
		ExpiryMonth:    pending.ExpiryMonth,
		ExpiryYear:     pending.ExpiryYear,
		IsActive:       true,
		Token:          pending.Token,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.cards.Create(ctx, card); err != nil {
		s.logger.WithError(err).Error("Ошибка при сохранении карты")
		return nil, fmt.Errorf("failed to save card: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"card_id": card.ID,
	}).Info("Карта успешно добавлена")
	return card, nil
}

func (s *CardService) ListUserCards(ctx context.Context, userID uuid.UUID) ([]model.Card, error) {
	cards, err := s.cards.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении карт пользователя")
		return nil, wrap(ErrInternal, err)
	}
	return cards, nil
}

// SetCardActive блокирует или разблокирует карту
func (s *CardService) SetCardActive(ctx context.Context, userID, cardID uuid.UUID, active bool) (*model.Card, error) {
	card, err := s.cards.SetActive(ctx, cardID, userID, active)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCardNotFound
		}
		s.logger.WithError(err).Error("Ошибка при изменении статуса карты")
		return nil, wrap(ErrInternal, err)
	}

	s.logger.WithFields(logrus.Fields{
		"card_id":   cardID,
		"is_active": active,
	}).Info("Статус карты изменен")
	return card, nil
}

func (s *CardService) checkAccount(ctx context.Context, accountID, userID uuid.UUID) error {
	if _, err := s.accounts.GetAccount(ctx, accountID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return wrap(ErrInternal, err)
	}
	return nil
}

// validateCardDetails возвращает номер карты без пробелов и дефисов
func (s *CardService) validateCardDetails(d model.CardDetails) (string, error) {
	number := strings.NewReplacer(" ", "", "-", "").Replace(d.CardNumber)

	switch {
	case len(number) != 16 || !model.IsDigits(number):
		return "", withMessage(ErrInvalidCardDetails, "Card number must be 16 digits")
	case len(d.CVV) != 3 || !model.IsDigits(d.CVV):
		return "", withMessage(ErrInvalidCardDetails, "CVV must be 3 digits")
	case strings.TrimSpace(d.CardHolderName) == "":
		return "", withMessage(ErrInvalidCardDetails, "Card holder name is required")
	case strings.TrimSpace(d.BankName) == "":
		return "", withMessage(ErrInvalidCardDetails, "Bank name is required")
	case d.ExpiryMonth < 1 || d.ExpiryMonth > 12:
		return "", withMessage(ErrInvalidCardDetails, "Expiry month must be between 1 and 12")
	}

	now := s.now()
	if d.ExpiryYear < now.Year() || (d.ExpiryYear == now.Year() && d.ExpiryMonth < int(now.Month())) {
		return "", withMessage(ErrInvalidCardDetails, "Card has expired")
	}
	return number, nil
}

// tokenize HMAC-SHA256 номера со случайной солью: "nonce.mac" в hex
func (s *CardService) tokenize(number string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(nonce)
	h.Write([]byte(number))
	return hex.EncodeToString(nonce) + "." + hex.EncodeToString(h.Sum(nil)), nil
}

func maskCardNumber(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}
