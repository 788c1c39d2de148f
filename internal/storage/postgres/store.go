package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/models"
)

// Store is the Postgres implementation of interfaces.AccountStore. See
// schema.sql for the expected tables.
type Store struct {
	db *sql.DB
}

func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error) {
	return getAccount(ctx, s.db, userID, currency, false)
}

func (s *Store) UpdateBalance(ctx context.Context, account models.Account, newBalance decimal.Decimal) error {
	return updateBalance(ctx, s.db, account.ID, newBalance)
}

// Transact runs fn inside one database transaction. Reads inside the
// transaction take row locks so concurrent mutations of different accounts
// cannot interleave into a lost update.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// txStore serves store calls inside an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetAccount(ctx context.Context, userID int64, currency models.Currency) (models.Account, error) {
	return getAccount(ctx, t.tx, userID, currency, true)
}

func (t *txStore) UpdateBalance(ctx context.Context, account models.Account, newBalance decimal.Decimal) error {
	return updateBalance(ctx, t.tx, account.ID, newBalance)
}

func (t *txStore) Transact(ctx context.Context, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	// Already transactional; nested calls reuse the open transaction.
	return fn(ctx, t)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getAccount(ctx context.Context, q querier, userID int64, currency models.Currency, forUpdate bool) (models.Account, error) {
	query := `SELECT id, user_id, currency, balance FROM accounts WHERE user_id = $1 AND currency = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var account models.Account
	err := q.QueryRowContext(ctx, query, userID, string(currency)).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Balance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ledger.NotFoundError(userID, currency)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func updateBalance(ctx context.Context, q querier, accountID int64, newBalance decimal.Decimal) error {
	result, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`,
		newBalance, accountID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("%w: account id %d", ledger.ErrNotFound, accountID)
	}
	return nil
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.AccountStore = (*txStore)(nil)
)
