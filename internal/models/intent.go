package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// OperationType tags a TransactionIntent. Consumers dispatch on it
// exhaustively; anything else is logged and dropped.
type OperationType string

const (
	OperationDeposit  OperationType = "DEPOSIT"
	OperationWithdraw OperationType = "WITHDRAW"
)

// TransactionIntent is the message published to the transaction queue. The
// operation id, not the payload, is the correctness key for retries and
// status lookups.
type TransactionIntent struct {
	OperationID string          `json:"operation_id"`
	Operation   OperationType   `json:"operation"`
	UserID      int64           `json:"user_id"`
	Currency    Currency        `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
}

// PartitionKey keys queue messages by user so that two intents for the same
// user are never concurrently in flight.
func (i TransactionIntent) PartitionKey() []byte {
	return []byte(strconv.FormatInt(i.UserID, 10))
}
