package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/models"
)

type accountKey struct {
	userID   int64
	currency models.Currency
}

// Store is an in-memory implementation of interfaces.AccountStore, used in
// tests and local runs without Postgres.
type Store struct {
	mu       sync.Mutex
	accounts map[accountKey]models.Account
	nextID   int64
}

func NewStore() *Store {
	return &Store{accounts: make(map[accountKey]models.Account)}
}

// CreateAccount provisions an account with an opening balance. Provisioning
// is otherwise out of scope; this exists for seeding and tests.
func (s *Store) CreateAccount(userID int64, currency models.Currency, balance decimal.Decimal) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	account := models.Account{
		ID:       s.nextID,
		UserID:   userID,
		Currency: currency,
		Balance:  balance,
	}
	s.accounts[accountKey{userID, currency}] = account
	return account
}

// Seed provisions users consecutive user ids starting at firstUserID, one
// account per supported currency, each with the given opening balance.
func (s *Store) Seed(firstUserID int64, users int, balance decimal.Decimal) {
	for i := 0; i < users; i++ {
		for _, currency := range models.Currencies {
			s.CreateAccount(firstUserID+int64(i), currency, balance)
		}
	}
}

func (s *Store) GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(userID, currency)
}

func (s *Store) UpdateBalance(ctx context.Context, account models.Account, newBalance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBalanceLocked(account, newBalance)
}

// Transact holds the store lock for the duration of fn and restores the
// previous state when fn fails, so multi-account mutations are atomic.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[accountKey]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		snapshot[k] = v
	}

	if err := fn(ctx, &txView{s: s}); err != nil {
		s.accounts = snapshot
		return err
	}
	return nil
}

func (s *Store) getAccountLocked(userID int64, currency models.Currency) (models.Account, error) {
	account, ok := s.accounts[accountKey{userID, currency}]
	if !ok {
		return models.Account{}, ledger.NotFoundError(userID, currency)
	}
	return account, nil
}

func (s *Store) updateBalanceLocked(account models.Account, newBalance decimal.Decimal) error {
	key := accountKey{account.UserID, account.Currency}
	stored, ok := s.accounts[key]
	if !ok {
		return ledger.NotFoundError(account.UserID, account.Currency)
	}
	stored.Balance = newBalance
	s.accounts[key] = stored
	return nil
}

// txView accesses the store while Transact holds the lock.
type txView struct {
	s *Store
}

func (v *txView) GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error) {
	return v.s.getAccountLocked(userID, currency)
}

func (v *txView) UpdateBalance(ctx context.Context, account models.Account, newBalance decimal.Decimal) error {
	return v.s.updateBalanceLocked(account, newBalance)
}

func (v *txView) Transact(ctx context.Context, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	return fn(ctx, v)
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.AccountStore = (*txView)(nil)
)
