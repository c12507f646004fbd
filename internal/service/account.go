package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/model"
)

// AccountService чтение счетов, журнала операций и сохраненных получателей.
// Балансы меняет только TransferService.
type AccountService struct {
	accounts      AccountStore
	ledger        LedgerWriter
	beneficiaries BeneficiaryStore
	logger        *logrus.Logger
}

func NewAccountService(
	accounts AccountStore,
	ledger LedgerWriter,
	beneficiaries BeneficiaryStore,
	logger *logrus.Logger,
) *AccountService {
	return &AccountService{
		accounts:      accounts,
		ledger:        ledger,
		beneficiaries: beneficiaries,
		logger:        logger,
	}
}

func (s *AccountService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]model.Account, error) {
	s.logger.Debugf("Получение списка счетов пользователя %s", userID)
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении счетов пользователя")
		return nil, wrap(ErrInternal, err)
	}
	return accounts, nil
}

// ListTransactions операции пользователя, новые первыми
func (s *AccountService) ListTransactions(ctx context.Context, userID uuid.UUID, filter model.TransactionFilter) ([]model.Transaction, error) {
	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return nil, &Error{Kind: KindValidation, Code: "invalid_filter", Message: "since must be before until"}
	}
	transactions, err := s.ledger.ListTransactions(ctx, userID, filter)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении истории операций")
		return nil, wrap(ErrInternal, err)
	}
	return transactions, nil
}

func (s *AccountService) ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]model.Beneficiary, error) {
	beneficiaries, err := s.beneficiaries.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении получателей")
		return nil, wrap(ErrInternal, err)
	}
	return beneficiaries, nil
}
