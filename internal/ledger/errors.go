package ledger

import "errors"

// Sentinel errors for the ledger mutation paths. The consumer records the
// full error text of a business failure in the status cache, so the messages
// here are part of the observable contract.
var (
	ErrNotFound          = errors.New("Account not found")
	ErrInsufficientFunds = errors.New("Insufficient balance in account")
	ErrInvalidBalance    = errors.New("Balance cannot be negative")
	ErrInvalidAmount     = errors.New("Amount must be greater than zero")
	ErrSameCurrency      = errors.New("Source and target currencies must be different")
)
