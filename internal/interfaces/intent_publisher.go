package interfaces

import (
	"context"

	"github.com/zad/exchange-api/internal/models"
)

// IntentPublisher publishes transaction intents onto the ordered queue. All
// three paths share one channel partitioned by user identity.
type IntentPublisher interface {
	SendDeposit(ctx context.Context, intent models.TransactionIntent) error
	SendWithdraw(ctx context.Context, intent models.TransactionIntent) error

	// Retry re-publishes a stuck intent verbatim under its original
	// operation id.
	Retry(ctx context.Context, intent models.TransactionIntent, operationID string) error
}
