package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankly-api/internal/events"
	"bankly-api/internal/model"
	"bankly-api/internal/money"
	"bankly-api/internal/repository"
)

type transferFixture struct {
	userID        uuid.UUID
	a, b          model.Account
	accounts      *fakeAccounts
	ledger        *fakeLedger
	beneficiaries *fakeBeneficiaries
	alerts        *fakeAlerts
	svc           *TransferService
	logs          interface{ AllEntries() []*logrus.Entry }
}

func newTransferFixture(t *testing.T, balanceA, balanceB money.Amount) *transferFixture {
	t.Helper()
	userID := uuid.New()
	a := model.Account{ID: uuid.New(), UserID: userID, BankName: "Arab Bank", Balance: balanceA, Currency: model.CurrencyJOD, Version: 1}
	b := model.Account{ID: uuid.New(), UserID: userID, BankName: "Housing Bank", Balance: balanceB, Currency: model.CurrencyJOD, Version: 1}

	logger, hook := newTestLogger()
	f := &transferFixture{
		userID:        userID,
		a:             a,
		b:             b,
		accounts:      newFakeAccounts(a, b),
		ledger:        &fakeLedger{},
		beneficiaries: &fakeBeneficiaries{},
		alerts:        &fakeAlerts{},
		logs:          hook,
	}
	f.svc = NewTransferService(f.accounts, f.ledger, f.beneficiaries, f.alerts, logger)
	f.svc.now = newFakeClock().Now
	return f
}

func (f *transferFixture) transfer(amount string) (*model.TransferResult, error) {
	return f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{
		FromAccountID: f.a.ID,
		ToAccountID:   f.b.ID,
		Amount:        money.Text(amount),
	})
}

func (f *transferFixture) total() money.Amount {
	return f.accounts.balance(f.a.ID) + f.accounts.balance(f.b.ID)
}

func TestTransfer_MovesFundsAndRecordsTransaction(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)

	res, err := f.transfer("30.00")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Transferred 30.00 JOD from Arab Bank to Housing Bank", res.Message)
	assert.Equal(t, money.Amount(7000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(8000), f.accounts.balance(f.b.ID))
	assert.Equal(t, money.Amount(7000), res.FromAccount.Balance)
	assert.Equal(t, money.Amount(8000), res.ToAccount.Balance)

	records := f.ledger.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, res.TransactionID, rec.ID)
	assert.Equal(t, money.Amount(3000), rec.Amount)
	assert.Equal(t, model.TransactionTypeInternalTransfer, rec.TransactionType)
	assert.Equal(t, model.TransactionStatusCompleted, rec.Status)
	assert.Equal(t, f.a.ID, rec.FromAccountID)
	assert.Equal(t, f.b.ID, rec.ToAccountID)
	require.NotNil(t, rec.Description)
	assert.Equal(t, "Transfer from Arab Bank to Housing Bank", *rec.Description)
	assert.Empty(t, f.alerts.alerts)
}

func TestTransfer_CustomDescription(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)

	_, err := f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{
		FromAccountID: f.a.ID,
		ToAccountID:   f.b.ID,
		Amount:        "1",
		Description:   " rent ",
	})
	require.NoError(t, err)
	assert.Equal(t, "rent", *f.ledger.all()[0].Description)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	f := newTransferFixture(t, 1000, 5000)

	res, err := f.transfer("25.00")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Insufficient funds in Arab Bank. Available: 10.00 JOD", svcErr.Message)
	assert.Equal(t, KindInsufficientFunds, svcErr.Kind)

	assert.Equal(t, money.Amount(1000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(5000), f.accounts.balance(f.b.ID))
	assert.Empty(t, f.ledger.all())
}

func TestTransfer_ExactBalanceAllowed(t *testing.T) {
	f := newTransferFixture(t, 1000, 0)

	_, err := f.transfer("10")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(1000), f.accounts.balance(f.b.ID))
}

func TestTransfer_RejectsSameAccount(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)

	_, err := f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{
		FromAccountID: f.a.ID,
		ToAccountID:   f.a.ID,
		Amount:        "5.00",
	})
	assert.ErrorIs(t, err, ErrSameAccount)
	assert.Zero(t, f.accounts.updates[f.a.ID])
	assert.Empty(t, f.ledger.all())
}

func TestTransfer_RejectsInvalidAmounts(t *testing.T) {
	for _, amount := range []string{"", "0", "0.00", "-5", "abc", "1.001", "NaN"} {
		t.Run(amount, func(t *testing.T) {
			f := newTransferFixture(t, 10000, 0)
			_, err := f.transfer(amount)
			assert.ErrorIs(t, err, ErrInvalidAmount)
			assert.Equal(t, money.Amount(10000), f.accounts.balance(f.a.ID))
		})
	}
}

func TestTransfer_AccountNotFound(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	stranger := model.Account{ID: uuid.New(), UserID: uuid.New(), BankName: "Other", Balance: 100, Version: 1}
	f.accounts.accounts[stranger.ID] = stranger

	tests := []struct {
		name    string
		from    uuid.UUID
		to      uuid.UUID
		message string
	}{
		{name: "missing source", from: uuid.New(), to: f.b.ID, message: "From account not found"},
		{name: "missing destination", from: f.a.ID, to: uuid.New(), message: "To account not found"},
		{name: "destination of another user", from: f.a.ID, to: stranger.ID, message: "To account not found"},
		{name: "source of another user", from: stranger.ID, to: f.b.ID, message: "From account not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{
				FromAccountID: tt.from,
				ToAccountID:   tt.to,
				Amount:        "1.00",
			})
			require.ErrorIs(t, err, ErrAccountNotFound)
			var svcErr *Error
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tt.message, svcErr.Message)
		})
	}
	assert.Equal(t, money.Amount(10000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(100), f.accounts.balance(stranger.ID))
}

func TestTransfer_RetriesDebitOnVersionConflict(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, attempt int) error {
		if id == f.a.ID && attempt == 1 {
			f.accounts.bump(id, 500)
			return repository.ErrVersionConflict
		}
		return nil
	}

	_, err := f.transfer("30.00")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(7500), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(3000), f.accounts.balance(f.b.ID))
	assert.Equal(t, 2, f.accounts.updates[f.a.ID])
}

func TestTransfer_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, _ int) error {
		if id == f.a.ID {
			return repository.ErrVersionConflict
		}
		return nil
	}

	_, err := f.transfer("30.00")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, maxConflictRetries+1, f.accounts.updates[f.a.ID])
	assert.Equal(t, money.Amount(10000), f.accounts.balance(f.a.ID))
	assert.Zero(t, f.accounts.updates[f.b.ID])
	assert.Empty(t, f.ledger.all())
}

func TestTransfer_DebitFailureLeavesNothingToUndo(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, _ int) error {
		if id == f.a.ID {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.transfer("30.00")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, f.accounts.updates[f.b.ID])
	assert.Empty(t, f.ledger.all())
	assert.Empty(t, f.alerts.alerts)
}

func TestTransfer_RetriesCreditOnVersionConflict(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, attempt int) error {
		if id == f.b.ID && attempt == 1 {
			f.accounts.bump(id, 100)
			return repository.ErrVersionConflict
		}
		return nil
	}

	res, err := f.transfer("30.00")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(8100), f.accounts.balance(f.b.ID))
	assert.Equal(t, money.Amount(8100), res.ToAccount.Balance)
}

func TestTransfer_CompensatesFailedCredit(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	before := f.total()
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, _ int) error {
		if id == f.b.ID {
			return errors.New("disk full")
		}
		return nil
	}

	res, err := f.transfer("30.00")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrCompensation)

	assert.Equal(t, money.Amount(10000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(5000), f.accounts.balance(f.b.ID))
	assert.Equal(t, before, f.total())

	records := f.ledger.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.TransactionStatusFailed, records[0].Status)
	assert.Empty(t, f.alerts.alerts)
}

func TestTransfer_CompensationReReadsAfterConcurrentWrite(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, attempt int) error {
		switch {
		case id == f.b.ID:
			return errors.New("disk full")
		case id == f.a.ID && attempt == 2:
			// другой процесс зачислил 5.00 между списанием и компенсацией
			f.accounts.bump(id, 500)
			return repository.ErrVersionConflict
		}
		return nil
	}

	_, err := f.transfer("30.00")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, money.Amount(10500), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(5000), f.accounts.balance(f.b.ID))
}

func TestTransfer_CompensationFailureIsCritical(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, attempt int) error {
		switch {
		case id == f.b.ID:
			return errors.New("disk full")
		case id == f.a.ID && attempt > 1:
			return errors.New("database gone")
		}
		return nil
	}

	_, err := f.transfer("30.00")
	require.ErrorIs(t, err, ErrCompensation)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, KindCompensation, svcErr.Kind)
	assert.Equal(t, "compensation_failure", svcErr.Code)

	assert.Equal(t, money.Amount(7000), f.accounts.balance(f.a.ID))
	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, events.AlertCompensationFailure, f.alerts.alerts[0].Kind)
	assert.Equal(t, money.Amount(3000), f.alerts.alerts[0].Amount)

	var critical bool
	for _, e := range f.logs.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["severity"] == "critical" {
			critical = true
		}
	}
	assert.True(t, critical, "compensation failure must be logged as critical")
}

func TestTransfer_AuditFailureKeepsTransferAndAlerts(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	f.ledger.appendErr = errors.New("ledger unavailable")

	res, err := f.transfer("30.00")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, money.Amount(7000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(8000), f.accounts.balance(f.b.ID))

	require.Len(t, f.alerts.alerts, 1)
	alert := f.alerts.alerts[0]
	assert.Equal(t, events.AlertAuditWriteFailure, alert.Kind)
	assert.Equal(t, res.TransactionID, alert.TransactionID)
	assert.Contains(t, alert.Reason, "ledger unavailable")
}

func TestTransfer_AlertPublishFailureDoesNotChangeOutcome(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	f.ledger.appendErr = errors.New("ledger unavailable")
	f.alerts.err = errors.New("broker down")

	_, err := f.transfer("30.00")
	require.NoError(t, err)
}

func TestTransfer_CancellationAfterDebitDoesNotStopCredit(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.accounts.failUpdate = func(id uuid.UUID, _ money.Amount, _ int) error {
		if id == f.a.ID {
			cancel()
		}
		return nil
	}

	_, err := f.svc.Transfer(ctx, f.userID, model.TransferRequest{
		FromAccountID: f.a.ID,
		ToAccountID:   f.b.ID,
		Amount:        "30.00",
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(7000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(8000), f.accounts.balance(f.b.ID))
	assert.Len(t, f.ledger.all(), 1)
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newTransferFixture(t, 10000, 5000)
	before := f.total()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.transfer("10.00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)
	assert.Equal(t, money.Amount(0), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(15000), f.accounts.balance(f.b.ID))
	assert.Equal(t, before, f.total())
	assert.Len(t, f.ledger.all(), 10)
}

func TestTransfer_OppositeDirectionsConserveTotal(t *testing.T) {
	f := newTransferFixture(t, 10000, 10000)
	before := f.total()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{FromAccountID: f.a.ID, ToAccountID: f.b.ID, Amount: "3.00"})
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(context.Background(), f.userID, model.TransferRequest{FromAccountID: f.b.ID, ToAccountID: f.a.ID, Amount: "2.00"})
		}()
	}
	wg.Wait()

	assert.Equal(t, before, f.total())
	assert.GreaterOrEqual(t, int64(f.accounts.balance(f.a.ID)), int64(0))
	assert.GreaterOrEqual(t, int64(f.accounts.balance(f.b.ID)), int64(0))
}

func TestExternalTransfer_NewRecipientIsRemembered(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)

	res, err := f.svc.ExternalTransfer(context.Background(), f.userID, model.ExternalTransferRequest{
		FromAccountID: f.a.ID,
		Amount:        "40.00",
		Alias:         "Mom",
	})
	require.NoError(t, err)

	assert.Equal(t, "Sent 40.00 JOD to Mom", res.Message)
	assert.Equal(t, money.Amount(6000), f.accounts.balance(f.a.ID))
	assert.Equal(t, money.Amount(6000), res.FromAccount.Balance)
	assert.Nil(t, res.ToAccount)

	require.Len(t, f.beneficiaries.items, 1)
	saved := f.beneficiaries.items[0]
	require.NotNil(t, saved.Alias)
	assert.Equal(t, "Mom", *saved.Alias)
	assert.Nil(t, saved.PhoneNumber)
	require.NotNil(t, res.Beneficiary)
	assert.Equal(t, saved.ID, res.Beneficiary.ID)

	records := f.ledger.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, model.TransactionTypeExternalTransfer, rec.TransactionType)
	assert.Equal(t, model.TransactionStatusCompleted, rec.Status)
	assert.Equal(t, rec.FromAccountID, rec.ToAccountID)
	assert.Equal(t, money.Amount(4000), rec.Amount)
	assert.Equal(t, "External transfer to Mom", *rec.Description)
}

func TestExternalTransfer_KnownRecipientIsNotDuplicated(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	phone := "+962790000000"
	existing := model.Beneficiary{ID: uuid.New(), UserID: f.userID, PhoneNumber: &phone}
	f.beneficiaries.items = append(f.beneficiaries.items, existing)

	res, err := f.svc.ExternalTransfer(context.Background(), f.userID, model.ExternalTransferRequest{
		FromAccountID: f.a.ID,
		Amount:        "5",
		PhoneNumber:   phone,
		Description:   "lunch",
	})
	require.NoError(t, err)
	assert.Len(t, f.beneficiaries.items, 1)
	assert.Equal(t, existing.ID, res.Beneficiary.ID)
	assert.Equal(t, "External transfer to +962790000000: lunch", *f.ledger.all()[0].Description)

	res, err = f.svc.ExternalTransfer(context.Background(), f.userID, model.ExternalTransferRequest{
		FromAccountID: f.a.ID,
		Amount:        "5",
		BeneficiaryID: &existing.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sent 5.00 JOD to +962790000000", res.Message)
	assert.Len(t, f.beneficiaries.items, 1)
	assert.Equal(t, money.Amount(9000), f.accounts.balance(f.a.ID))
}

func TestExternalTransfer_Validation(t *testing.T) {
	f := newTransferFixture(t, 1000, 0)
	unknown := uuid.New()

	tests := []struct {
		name string
		req  model.ExternalTransferRequest
		want error
	}{
		{name: "bad amount", req: model.ExternalTransferRequest{FromAccountID: f.a.ID, Amount: "1.234", Alias: "Mom"}, want: ErrInvalidAmount},
		{name: "no recipient", req: model.ExternalTransferRequest{FromAccountID: f.a.ID, Amount: "1", Alias: "  "}, want: ErrRecipientRequired},
		{name: "unknown beneficiary", req: model.ExternalTransferRequest{FromAccountID: f.a.ID, Amount: "1", BeneficiaryID: &unknown}, want: ErrBeneficiaryNotFound},
		{name: "unknown account", req: model.ExternalTransferRequest{FromAccountID: uuid.New(), Amount: "1", Alias: "Mom"}, want: ErrAccountNotFound},
		{name: "insufficient", req: model.ExternalTransferRequest{FromAccountID: f.a.ID, Amount: "10.01", Alias: "Mom"}, want: ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ExternalTransfer(context.Background(), f.userID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, money.Amount(1000), f.accounts.balance(f.a.ID))
	assert.Empty(t, f.ledger.all())
	assert.Empty(t, f.beneficiaries.items)
}

func TestExternalTransfer_BeneficiaryFailureDoesNotChangeOutcome(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	f.beneficiaries.createErr = errors.New("unique violation")

	res, err := f.svc.ExternalTransfer(context.Background(), f.userID, model.ExternalTransferRequest{
		FromAccountID: f.a.ID,
		Amount:        "40.00",
		Alias:         "Mom",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Beneficiary)
	assert.Equal(t, money.Amount(6000), f.accounts.balance(f.a.ID))
	assert.Len(t, f.ledger.all(), 1)
}

func TestExternalTransfer_AuditFailureAlerts(t *testing.T) {
	f := newTransferFixture(t, 10000, 0)
	f.ledger.appendErr = errors.New("ledger unavailable")

	_, err := f.svc.ExternalTransfer(context.Background(), f.userID, model.ExternalTransferRequest{
		FromAccountID: f.a.ID,
		Amount:        "40.00",
		Alias:         "Mom",
	})
	require.NoError(t, err)
	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, f.a.ID, f.alerts.alerts[0].ToAccountID)
}
