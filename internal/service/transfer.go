package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/events"
	"bankly-api/internal/model"
	"bankly-api/internal/money"
	"bankly-api/internal/repository"
)

// maxConflictRetries сколько раз повторяется запись баланса при конфликте версий
const maxConflictRetries = 3

// TransferService перемещает деньги между счетами пользователя и на внешних получателей.
// Списание всегда предшествует зачислению; частичный сбой откатывается компенсацией.
type TransferService struct {
	accounts      AccountStore
	ledger        LedgerWriter
	beneficiaries BeneficiaryStore
	alerts        AlertPublisher
	locker        *accountLocker
	logger        *logrus.Logger
	now           func() time.Time
}

func NewTransferService(
	accounts AccountStore,
	ledger LedgerWriter,
	beneficiaries BeneficiaryStore,
	alerts AlertPublisher,
	logger *logrus.Logger,
) *TransferService {
	return &TransferService{
		accounts:      accounts,
		ledger:        ledger,
		beneficiaries: beneficiaries,
		alerts:        alerts,
		locker:        newAccountLocker(),
		logger:        logger,
		now:           time.Now,
	}
}

// Transfer переводит сумму между двумя счетами пользователя userID
func (s *TransferService) Transfer(ctx context.Context, userID uuid.UUID, req model.TransferRequest) (*model.TransferResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"from_account": req.FromAccountID,
		"to_account":   req.ToAccountID,
	})

	amount, err := parsePositiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}

	unlock := s.locker.Lock(req.FromAccountID, req.ToAccountID)
	defer unlock()

	var from, to *model.Account
	load := func() (*model.Account, error) {
		var err error
		if from, err = s.loadAccount(ctx, req.FromAccountID, userID, "From account not found"); err != nil {
			return nil, err
		}
		if to, err = s.loadAccount(ctx, req.ToAccountID, userID, "To account not found"); err != nil {
			return nil, err
		}
		return from, nil
	}

	debited, original, err := s.debit(ctx, userID, amount, load)
	if err != nil {
		log.WithError(err).Warn("Перевод отклонен")
		return nil, err
	}

	// После списания операция доводится до конца независимо от отмены запроса
	opCtx := context.WithoutCancel(ctx)

	record := &model.Transaction{
		ID:              uuid.New(),
		UserID:          userID,
		FromAccountID:   from.ID,
		ToAccountID:     to.ID,
		Amount:          amount,
		TransactionType: model.TransactionTypeInternalTransfer,
		Status:          model.TransactionStatusCompleted,
		Description:     transferDescription(req.Description, from, to),
		CreatedAt:       s.now(),
	}

	credited, err := s.credit(opCtx, userID, to, amount)
	if err != nil {
		log.WithError(err).Error("Ошибка зачисления, запускаем компенсацию")
		return nil, s.compensate(opCtx, record, debited, original, err)
	}

	s.appendAudit(opCtx, record)

	log.WithFields(logrus.Fields{
		"transaction_id": record.ID,
		"amount":         amount.String(),
	}).Info("Перевод выполнен")

	return &model.TransferResult{
		Success:       true,
		Message:       fmt.Sprintf("Transferred %s %s from %s to %s", amount, model.CurrencyJOD, from.BankName, to.BankName),
		TransactionID: record.ID,
		FromAccount:   debited,
		ToAccount:     credited,
	}, nil
}

// ExternalTransfer списывает сумму со счета пользователя в пользу внешнего получателя
func (s *TransferService) ExternalTransfer(ctx context.Context, userID uuid.UUID, req model.ExternalTransferRequest) (*model.TransferResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"from_account": req.FromAccountID,
	})

	amount, err := parsePositiveAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	recipient, known, err := s.resolveRecipient(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(req.FromAccountID)
	defer unlock()

	var from *model.Account
	load := func() (*model.Account, error) {
		var err error
		from, err = s.loadAccount(ctx, req.FromAccountID, userID, "From account not found")
		return from, err
	}

	debited, _, err := s.debit(ctx, userID, amount, load)
	if err != nil {
		log.WithError(err).Warn("Внешний перевод отклонен")
		return nil, err
	}

	opCtx := context.WithoutCancel(ctx)
	name := recipient.DisplayName()

	description := "External transfer to " + name
	if d := strings.TrimSpace(req.Description); d != "" {
		description += ": " + d
	}

	record := &model.Transaction{
		ID:              uuid.New(),
		UserID:          userID,
		FromAccountID:   from.ID,
		ToAccountID:     from.ID,
		Amount:          amount,
		TransactionType: model.TransactionTypeExternalTransfer,
		Status:          model.TransactionStatusCompleted,
		Description:     &description,
		CreatedAt:       s.now(),
	}
	s.appendAudit(opCtx, record)

	if !known {
		recipient = s.rememberBeneficiary(opCtx, userID, recipient)
	}
	if recipient != nil && recipient.ID == uuid.Nil {
		recipient = nil
	}

	log.WithFields(logrus.Fields{
		"transaction_id": record.ID,
		"amount":         amount.String(),
	}).Info("Внешний перевод выполнен")

	return &model.TransferResult{
		Success:       true,
		Message:       fmt.Sprintf("Sent %s %s to %s", amount, model.CurrencyJOD, name),
		TransactionID: record.ID,
		FromAccount:   debited,
		Beneficiary:   recipient,
	}, nil
}

// debit читает источник через load, проверяет остаток и списывает amount.
// Конфликт версий перезапускает чтение. Возвращает счет после списания и исходный баланс.
func (s *TransferService) debit(
	ctx context.Context,
	userID uuid.UUID,
	amount money.Amount,
	load func() (*model.Account, error),
) (*model.Account, money.Amount, error) {
	for attempt := 0; ; attempt++ {
		src, err := load()
		if err != nil {
			return nil, 0, err
		}
		if src.Balance < amount {
			return nil, 0, withMessage(ErrInsufficientFunds,
				fmt.Sprintf("Insufficient funds in %s. Available: %s %s", src.BankName, src.Balance, model.CurrencyJOD))
		}

		version, err := s.accounts.UpdateBalance(ctx, src.ID, userID, src.Balance-amount, src.Version)
		if err == nil {
			debited := *src
			debited.Balance = src.Balance - amount
			debited.Version = version
			return &debited, src.Balance, nil
		}
		if errors.Is(err, repository.ErrVersionConflict) && attempt < maxConflictRetries {
			s.logger.WithField("account_id", src.ID).Debug("Конфликт версий при списании, повтор")
			continue
		}
		return nil, 0, wrap(ErrPersistence, err)
	}
}

// credit зачисляет amount, перечитывая счет при конфликте версий
func (s *TransferService) credit(ctx context.Context, userID uuid.UUID, dst *model.Account, amount money.Amount) (*model.Account, error) {
	current := dst
	for attempt := 0; ; attempt++ {
		version, err := s.accounts.UpdateBalance(ctx, current.ID, userID, current.Balance+amount, current.Version)
		if err == nil {
			credited := *current
			credited.Balance = current.Balance + amount
			credited.Version = version
			return &credited, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= maxConflictRetries {
			return nil, err
		}
		if current, err = s.accounts.GetAccount(ctx, dst.ID, userID); err != nil {
			return nil, err
		}
	}
}

// compensate возвращает списанную сумму на счет источника.
// Сначала восстанавливается исходный баланс по версии после списания; если счет
// успели изменить, сумма добавляется к перечитанному балансу.
func (s *TransferService) compensate(
	ctx context.Context,
	record *model.Transaction,
	debited *model.Account,
	original money.Amount,
	cause error,
) error {
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": record.ID,
		"account_id":     debited.ID,
		"amount":         record.Amount.String(),
	})

	_, err := s.accounts.UpdateBalance(ctx, debited.ID, record.UserID, original, debited.Version)
	for attempt := 0; err != nil && errors.Is(err, repository.ErrVersionConflict) && attempt < maxConflictRetries; attempt++ {
		var current *model.Account
		if current, err = s.accounts.GetAccount(ctx, debited.ID, record.UserID); err != nil {
			break
		}
		_, err = s.accounts.UpdateBalance(ctx, current.ID, record.UserID, current.Balance+record.Amount, current.Version)
	}

	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"severity": "critical",
			"cause":    cause.Error(),
		}).Error("Компенсация не удалась: списание не возвращено")
		s.publishAlert(ctx, events.AlertCompensationFailure, record, fmt.Sprintf("credit failed: %v; compensation failed: %v", cause, err))
		return wrap(ErrCompensation, cause)
	}

	log.Warn("Списание компенсировано после ошибки зачисления")

	failed := *record
	failed.Status = model.TransactionStatusFailed
	if err := s.ledger.AppendTransaction(ctx, &failed); err != nil {
		log.WithError(err).Warn("Не удалось записать неуспешную операцию в журнал")
	}
	return wrap(ErrPersistence, cause)
}

// appendAudit записывает операцию в журнал. Ошибка не отменяет перевод:
// она логируется и уходит сигналом сверки.
func (s *TransferService) appendAudit(ctx context.Context, record *model.Transaction) {
	err := s.ledger.AppendTransaction(ctx, record)
	if err == nil {
		return
	}
	s.logger.WithError(err).WithFields(logrus.Fields{
		"event":          "AuditWriteFailure",
		"transaction_id": record.ID,
		"from_account":   record.FromAccountID,
		"to_account":     record.ToAccountID,
		"amount":         record.Amount.String(),
	}).Error("Перевод выполнен, но запись в журнал не сохранена")
	s.publishAlert(ctx, events.AlertAuditWriteFailure, record, err.Error())
}

func (s *TransferService) publishAlert(ctx context.Context, kind string, record *model.Transaction, reason string) {
	alert := events.ReconciliationAlert{
		Kind:          kind,
		TransactionID: record.ID,
		UserID:        record.UserID,
		FromAccountID: record.FromAccountID,
		ToAccountID:   record.ToAccountID,
		Amount:        record.Amount,
		Reason:        reason,
		OccurredAt:    s.now(),
	}
	if err := s.alerts.PublishReconciliationAlert(ctx, alert); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Не удалось опубликовать сигнал сверки")
	}
}

func (s *TransferService) loadAccount(ctx context.Context, id, userID uuid.UUID, notFound string) (*model.Account, error) {
	account, err := s.accounts.GetAccount(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, withMessage(ErrAccountNotFound, notFound)
		}
		return nil, wrap(ErrPersistence, err)
	}
	return account, nil
}

// resolveRecipient находит сохраненного получателя или собирает нового из телефона и псевдонима.
// known == true, если получатель уже есть в базе.
func (s *TransferService) resolveRecipient(ctx context.Context, userID uuid.UUID, req model.ExternalTransferRequest) (*model.Beneficiary, bool, error) {
	if req.BeneficiaryID != nil {
		b, err := s.beneficiaries.GetByID(ctx, *req.BeneficiaryID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, false, ErrBeneficiaryNotFound
			}
			return nil, false, wrap(ErrPersistence, err)
		}
		return b, true, nil
	}

	phone := optionalString(req.PhoneNumber)
	alias := optionalString(req.Alias)
	if phone == nil && alias == nil {
		return nil, false, ErrRecipientRequired
	}

	existing, err := s.beneficiaries.FindByRecipient(ctx, userID, phone, alias)
	switch {
	case err == nil:
		return existing, true, nil
	case errors.Is(err, repository.ErrNotFound):
		return &model.Beneficiary{UserID: userID, PhoneNumber: phone, Alias: alias}, false, nil
	default:
		// поиск только для запоминания получателя, перевод от него не зависит
		s.logger.WithError(err).Warn("Не удалось найти сохраненного получателя")
		return &model.Beneficiary{UserID: userID, PhoneNumber: phone, Alias: alias}, true, nil
	}
}

func (s *TransferService) rememberBeneficiary(ctx context.Context, userID uuid.UUID, b *model.Beneficiary) *model.Beneficiary {
	b.ID = uuid.New()
	b.UserID = userID
	b.CreatedAt = s.now()
	if err := s.beneficiaries.Create(ctx, b); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Не удалось сохранить получателя")
		return nil
	}
	return b
}

func parsePositiveAmount(raw money.Text) (money.Amount, error) {
	amount, err := money.Parse(string(raw))
	if err != nil {
		return 0, wrap(ErrInvalidAmount, err)
	}
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

func transferDescription(custom string, from, to *model.Account) *string {
	d := strings.TrimSpace(custom)
	if d == "" {
		d = fmt.Sprintf("Transfer from %s to %s", from.BankName, to.BankName)
	}
	return &d
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
