package retry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/models"
	"github.com/zad/exchange-api/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePublisher records retried intents.
type fakePublisher struct {
	retried []models.TransactionIntent
}

func (f *fakePublisher) SendDeposit(ctx context.Context, intent models.TransactionIntent) error {
	return nil
}

func (f *fakePublisher) SendWithdraw(ctx context.Context, intent models.TransactionIntent) error {
	return nil
}

func (f *fakePublisher) Retry(ctx context.Context, intent models.TransactionIntent, operationID string) error {
	f.retried = append(f.retried, intent)
	return nil
}

func TestRetryPending(t *testing.T) {
	statusCache := status.NewCache(cache.NewMemoryStore())
	publisher := &fakePublisher{}
	scheduler := NewScheduler(statusCache, publisher, time.Minute, testLogger())
	ctx := context.Background()

	stuck := models.TransactionIntent{
		OperationID: "op-stuck",
		Operation:   models.OperationWithdraw,
		UserID:      7,
		Currency:    models.TRY,
		Amount:      decimal.NewFromInt(40),
	}
	settled := models.TransactionIntent{
		OperationID: "op-done",
		Operation:   models.OperationDeposit,
		UserID:      8,
		Currency:    models.USD,
		Amount:      decimal.NewFromInt(10),
	}
	statusCache.MarkPending(ctx, stuck)
	statusCache.MarkPending(ctx, settled)
	statusCache.MarkSuccess(ctx, settled.OperationID)

	scheduler.RetryPending(ctx)

	if len(publisher.retried) != 1 {
		t.Fatalf("retried = %d intents, want 1", len(publisher.retried))
	}
	got := publisher.retried[0]
	if got.OperationID != "op-stuck" {
		t.Fatalf("retried operation = %q, want op-stuck", got.OperationID)
	}
	if got.Operation != models.OperationWithdraw || got.UserID != 7 || !got.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("retried intent not verbatim: %+v", got)
	}
}

func TestRetryPendingEmptyScan(t *testing.T) {
	statusCache := status.NewCache(cache.NewMemoryStore())
	publisher := &fakePublisher{}
	scheduler := NewScheduler(statusCache, publisher, time.Minute, testLogger())

	scheduler.RetryPending(context.Background())

	if len(publisher.retried) != 0 {
		t.Fatalf("retried = %d intents, want 0", len(publisher.retried))
	}
}
