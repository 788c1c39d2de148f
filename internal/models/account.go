package models

import "github.com/shopspring/decimal"

// User owns one account per currency.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Account holds the balance of one (user, currency) pair. Balances are
// mutated only through the ledger service, which rejects negative results.
type Account struct {
	ID       int64           `json:"id"`
	UserID   int64           `json:"user_id"`
	Currency Currency        `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}
