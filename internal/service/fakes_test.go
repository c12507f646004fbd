package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"bankly-api/internal/events"
	"bankly-api/internal/model"
	"bankly-api/internal/money"
	"bankly-api/internal/repository"
)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeAccounts хранилище счетов в памяти с проверкой версии.
// failUpdate вызывается под блокировкой перед записью; attempt - номер вызова для счета.
type fakeAccounts struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]model.Account
	updates    map[uuid.UUID]int
	failUpdate func(id uuid.UUID, newBalance money.Amount, attempt int) error
	getErr     error
}

func newFakeAccounts(accounts ...model.Account) *fakeAccounts {
	f := &fakeAccounts{
		accounts: make(map[uuid.UUID]model.Account),
		updates:  make(map[uuid.UUID]int),
	}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetAccount(ctx context.Context, id, ownerID uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.accounts[id]
	if !ok || a.UserID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAccounts) UpdateBalance(ctx context.Context, id, ownerID uuid.UUID, newBalance money.Amount, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id]++
	if f.failUpdate != nil {
		if err := f.failUpdate(id, newBalance, f.updates[id]); err != nil {
			return 0, err
		}
	}
	a, ok := f.accounts[id]
	if !ok || a.UserID != ownerID || a.Version != expectedVersion {
		return 0, repository.ErrVersionConflict
	}
	if newBalance < 0 {
		return 0, repository.ErrConstraint
	}
	a.Balance = newBalance
	a.Version++
	f.accounts[id] = a
	return a.Version, nil
}

func (f *fakeAccounts) ListByUser(ctx context.Context, ownerID uuid.UUID) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Account
	for _, a := range f.accounts {
		if a.UserID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) balance(id uuid.UUID) money.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id].Balance
}

// bump имитирует запись другого процесса; вызывать только из failUpdate
func (f *fakeAccounts) bump(id uuid.UUID, delta money.Amount) {
	a := f.accounts[id]
	a.Balance += delta
	a.Version++
	f.accounts[id] = a
}

type fakeLedger struct {
	mu        sync.Mutex
	records   []model.Transaction
	appendErr error
	listErr   error
	lastQuery model.TransactionFilter
}

func (f *fakeLedger) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, *tx)
	return nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, ownerID uuid.UUID, filter model.TransactionFilter) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Transaction
	for _, r := range f.records {
		if r.UserID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) all() []model.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Transaction(nil), f.records...)
}

type fakeBeneficiaries struct {
	mu        sync.Mutex
	items     []model.Beneficiary
	createErr error
	findErr   error
}

func (f *fakeBeneficiaries) Create(ctx context.Context, b *model.Beneficiary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.items = append(f.items, *b)
	return nil
}

func (f *fakeBeneficiaries) GetByID(ctx context.Context, id, userID uuid.UUID) (*model.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.items {
		if b.ID == id && b.UserID == userID {
			b := b
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBeneficiaries) FindByRecipient(ctx context.Context, userID uuid.UUID, phone, alias *string) (*model.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, b := range f.items {
		if b.UserID == userID && equalPtr(b.PhoneNumber, phone) && equalPtr(b.Alias, alias) {
			b := b
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBeneficiaries) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Beneficiary
	for _, b := range f.items {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []events.ReconciliationAlert
	err    error
}

func (f *fakeAlerts) PublishReconciliationAlert(ctx context.Context, alert events.ReconciliationAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return f.err
}

type fakeOTPStore struct {
	mu        sync.Mutex
	records   []model.OTPVerification
	createErr error
	markErr   error
}

func (f *fakeOTPStore) Create(ctx context.Context, otp *model.OTPVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, *otp)
	return nil
}

func (f *fakeOTPStore) FindActive(ctx context.Context, userID uuid.UUID, email string, purpose model.OTPPurpose, now time.Time) ([]model.OTPVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OTPVerification
	for _, r := range f.records {
		if r.UserID == userID && r.Email == email && r.Purpose == purpose && !r.Verified && r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOTPStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.records {
		if f.records[i].ID == id {
			if f.records[i].Verified {
				return repository.ErrAlreadyVerified
			}
			f.records[i].Verified = true
			return nil
		}
	}
	return repository.ErrAlreadyVerified
}

func (f *fakeOTPStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.records[:0]
	var n int64
	for _, r := range f.records {
		if r.ExpiresAt.After(now) {
			kept = append(kept, r)
			continue
		}
		n++
	}
	f.records = kept
	return n, nil
}

func (f *fakeOTPStore) all() []model.OTPVerification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.OTPVerification(nil), f.records...)
}

type fakeCards struct {
	mu        sync.Mutex
	cards     []model.Card
	createErr error
}

func (f *fakeCards) Create(ctx context.Context, card *model.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.cards = append(f.cards, *card)
	return nil
}

func (f *fakeCards) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Card
	for _, c := range f.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCards) SetActive(ctx context.Context, cardID, userID uuid.UUID, active bool) (*model.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == cardID && f.cards[i].UserID == userID {
			f.cards[i].IsActive = active
			c := f.cards[i]
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

type sentMessage struct {
	address, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, address, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{address: address, subject: subject, body: body})
	return nil
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// fakeSealer обратимая обертка; plain хранит последние запечатанные данные
type fakeSealer struct {
	plain   [][]byte
	sealErr error
	openErr error
}

const fakeSealPrefix = "sealed:"

func (f *fakeSealer) Seal(plaintext []byte) (string, error) {
	if f.sealErr != nil {
		return "", f.sealErr
	}
	f.plain = append(f.plain, plaintext)
	return fakeSealPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (f *fakeSealer) Open(sealed string) ([]byte, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if !strings.HasPrefix(sealed, fakeSealPrefix) {
		return nil, errors.New("not sealed")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, fakeSealPrefix))
}

type fakeLimiter struct {
	mu         sync.Mutex
	allowed    bool
	retryAfter time.Duration
	err        error
	calls      []string
}

func (f *fakeLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scope+"|"+subject)
	return f.allowed, f.retryAfter, f.err
}

// zeroReader дает код 000000
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
