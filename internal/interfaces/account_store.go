package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/models"
)

// AccountStore persists account balances keyed by (user, currency).
type AccountStore interface {
	GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error)
	UpdateBalance(ctx context.Context, account models.Account, newBalance decimal.Decimal) error

	// Transact runs fn against a store view bound to a single transaction.
	// The read-modify-write of a mutation either fully commits or fully
	// rolls back.
	Transact(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
}
