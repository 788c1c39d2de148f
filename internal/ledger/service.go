package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/models"
)

// Service applies balance mutations against the account store. It is the
// single write path for balances: the queue consumer drives deposits and
// withdrawals through it, and exchange runs through it synchronously.
type Service struct {
	store interfaces.AccountStore
	rates interfaces.RateResolver
	log   *slog.Logger
}

func NewService(store interfaces.AccountStore, rates interfaces.RateResolver, log *slog.Logger) *Service {
	return &Service{store: store, rates: rates, log: log}
}

// GetAccount looks up the (user, currency) account.
func (s *Service) GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error) {
	return s.store.GetAccount(ctx, userID, currency)
}

// GetBalance returns the user's USD account, the default balance view.
func (s *Service) GetBalance(ctx context.Context, userID int64) (models.Account, error) {
	return s.store.GetAccount(ctx, userID, models.USD)
}

// Deposit credits amount to the user's account inside one store transaction.
func (s *Service) Deposit(ctx context.Context, userID int64, currency models.Currency, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return s.store.Transact(ctx, func(ctx context.Context, store interfaces.AccountStore) error {
		account, err := store.GetAccount(ctx, userID, currency)
		if err != nil {
			return err
		}
		return updateBalance(ctx, store, account, account.Balance.Add(amount))
	})
}

// Withdraw debits amount from the user's account inside one store
// transaction, rejecting the mutation when funds are insufficient.
func (s *Service) Withdraw(ctx context.Context, userID int64, currency models.Currency, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return s.store.Transact(ctx, func(ctx context.Context, store interfaces.AccountStore) error {
		account, err := store.GetAccount(ctx, userID, currency)
		if err != nil {
			return err
		}
		if err := ValidateSufficientBalance(account, amount); err != nil {
			return err
		}
		return updateBalance(ctx, store, account, account.Balance.Sub(amount))
	})
}

// Exchange converts amount from one user's account into another user's
// account at the resolved rate. Both updates commit or roll back together.
func (s *Service) Exchange(ctx context.Context, fromUserID, toUserID int64, from, to models.Currency, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if from == to {
		return ErrSameCurrency
	}
	return s.store.Transact(ctx, func(ctx context.Context, store interfaces.AccountStore) error {
		fromAccount, err := store.GetAccount(ctx, fromUserID, from)
		if err != nil {
			return err
		}
		toAccount, err := store.GetAccount(ctx, toUserID, to)
		if err != nil {
			return err
		}
		if err := ValidateSufficientBalance(fromAccount, amount); err != nil {
			return err
		}

		rate, err := s.rates.GetRate(ctx, from, to)
		if err != nil {
			return err
		}
		target := amount.Mul(rate)

		if err := updateBalance(ctx, store, fromAccount, fromAccount.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := updateBalance(ctx, store, toAccount, toAccount.Balance.Add(target)); err != nil {
			return err
		}
		s.log.Info("exchange applied",
			"from_user", fromUserID, "to_user", toUserID,
			"from", from, "to", to,
			"amount", amount, "rate", rate)
		return nil
	})
}

// ValidateSufficientBalance fails when the account cannot cover amount.
func ValidateSufficientBalance(account models.Account, amount decimal.Decimal) error {
	if account.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// updateBalance is the only place a new balance is written. A negative
// result is rejected regardless of how it was computed.
func updateBalance(ctx context.Context, store interfaces.AccountStore, account models.Account, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return ErrInvalidBalance
	}
	return store.UpdateBalance(ctx, account, newBalance)
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

// NotFoundError wraps ErrNotFound with the missing pair for log and status
// messages.
func NotFoundError(userID int64, currency models.Currency) error {
	return fmt.Errorf("%w for user %d and currency %s", ErrNotFound, userID, currency)
}
