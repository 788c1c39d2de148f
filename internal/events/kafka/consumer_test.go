package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/models"
	"github.com/zad/exchange-api/internal/status"
	"github.com/zad/exchange-api/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturedDLQ struct {
	messages []kafkago.Message
}

func (d *capturedDLQ) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	d.messages = append(d.messages, msgs...)
	return nil
}

type noRates struct{}

func (noRates) GetRate(ctx context.Context, from, to models.Currency) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func newTestConsumer(t *testing.T) (*Consumer, *memory.Store, *status.Cache, *capturedDLQ) {
	t.Helper()
	store := memory.NewStore()
	statusCache := status.NewCache(cache.NewMemoryStore())
	dlq := &capturedDLQ{}
	consumer := &Consumer{
		dlq:    dlq,
		ledger: ledger.NewService(store, noRates{}, testLogger()),
		status: statusCache,
		log:    testLogger(),
	}
	return consumer, store, statusCache, dlq
}

func intent(op models.OperationType, operationID string, amount int64) models.TransactionIntent {
	return models.TransactionIntent{
		OperationID: operationID,
		Operation:   op,
		UserID:      1,
		Currency:    models.USD,
		Amount:      decimal.NewFromInt(amount),
	}
}

func TestHandleDepositSuccess(t *testing.T) {
	consumer, store, statusCache, _ := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(200))
	ctx := context.Background()

	consumer.Handle(ctx, intent(models.OperationDeposit, "op-123", 100))

	account, err := store.GetAccount(ctx, 1, models.USD)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance = %s, want 300", account.Balance)
	}
	if got, _ := statusCache.Get(ctx, "op-123"); got != status.Success {
		t.Fatalf("status = %q, want SUCCESS", got)
	}
}

func TestHandleWithdrawInsufficientFunds(t *testing.T) {
	consumer, store, statusCache, _ := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(100))
	ctx := context.Background()

	consumer.Handle(ctx, intent(models.OperationWithdraw, "op-9", 150))

	account, _ := store.GetAccount(ctx, 1, models.USD)
	if !account.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, want unchanged 100", account.Balance)
	}
	got, _ := statusCache.Get(ctx, "op-9")
	if got != "FAILURE: Insufficient balance in account" {
		t.Fatalf("status = %q", got)
	}
}

func TestHandleUnknownAccountRecordsFailure(t *testing.T) {
	consumer, _, statusCache, _ := newTestConsumer(t)
	ctx := context.Background()

	consumer.Handle(ctx, intent(models.OperationDeposit, "op-404", 10))

	got, _ := statusCache.Get(ctx, "op-404")
	if got != "FAILURE: Account not found for user 1 and currency USD" {
		t.Fatalf("status = %q", got)
	}
}

func TestHandleUnknownOperationDropped(t *testing.T) {
	consumer, store, statusCache, dlq := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(100))
	ctx := context.Background()

	consumer.Handle(ctx, models.TransactionIntent{
		OperationID: "op-weird",
		Operation:   "TRANSFER",
		UserID:      1,
		Currency:    models.USD,
		Amount:      decimal.NewFromInt(10),
	})

	if got, _ := statusCache.Get(ctx, "op-weird"); got != status.DefaultMessage {
		t.Fatalf("unknown kind must not write a status, got %q", got)
	}
	if len(dlq.messages) != 0 {
		t.Fatal("unknown kind is not a poison message")
	}
	account, _ := store.GetAccount(ctx, 1, models.USD)
	if !account.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, want unchanged 100", account.Balance)
	}
}

func TestHandleSkipsSettledOperation(t *testing.T) {
	consumer, store, statusCache, _ := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(200))
	ctx := context.Background()

	// First delivery applies, second is a retry that must not double-apply.
	msg := intent(models.OperationDeposit, "op-dup", 100)
	consumer.Handle(ctx, msg)
	consumer.Handle(ctx, msg)

	account, _ := store.GetAccount(ctx, 1, models.USD)
	if !account.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance = %s, want 300 after duplicate delivery", account.Balance)
	}
	if got, _ := statusCache.Get(ctx, "op-dup"); got != status.Success {
		t.Fatalf("status = %q, want SUCCESS", got)
	}
}

func TestRetryRaceCannotDoubleApply(t *testing.T) {
	consumer, store, statusCache, _ := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(200))
	ctx := context.Background()

	// The scheduler scans while the operation is still PENDING...
	msg := intent(models.OperationDeposit, "op-race", 100)
	statusCache.MarkPending(ctx, msg)
	pending, _ := statusCache.PendingIntents(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d intents, want 1", len(pending))
	}

	// ...the consumer settles the original delivery first...
	consumer.Handle(ctx, msg)
	if got, _ := statusCache.Get(ctx, "op-race"); got != status.Success {
		t.Fatalf("status = %q, want SUCCESS", got)
	}

	// ...and the losing retry re-marks and redelivers. The terminal status
	// must survive and the mutation must not run twice.
	statusCache.MarkPending(ctx, pending[0])
	if got, _ := statusCache.Get(ctx, "op-race"); got != status.Success {
		t.Fatalf("status = %q, retry must not resurrect a settled operation", got)
	}
	consumer.Handle(ctx, pending[0])

	account, _ := store.GetAccount(ctx, 1, models.USD)
	if !account.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance = %s, want 300 applied exactly once", account.Balance)
	}
}

func TestProcessPoisonMessageDeadLettered(t *testing.T) {
	consumer, _, _, dlq := newTestConsumer(t)

	consumer.Process(context.Background(), []byte("{not json"))

	if len(dlq.messages) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.messages))
	}
	if string(dlq.messages[0].Value) != "{not json" {
		t.Fatalf("dead letter payload = %q", dlq.messages[0].Value)
	}
}

func TestProcessValidPayload(t *testing.T) {
	consumer, store, statusCache, dlq := newTestConsumer(t)
	store.CreateAccount(1, models.USD, decimal.NewFromInt(0))
	ctx := context.Background()

	payload := []byte(`{"operation_id":"op-raw","operation":"DEPOSIT","user_id":1,"currency":"USD","amount":"25"}`)
	consumer.Process(ctx, payload)

	account, _ := store.GetAccount(ctx, 1, models.USD)
	if !account.Balance.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("balance = %s, want 25", account.Balance)
	}
	if got, _ := statusCache.Get(ctx, "op-raw"); got != status.Success {
		t.Fatalf("status = %q, want SUCCESS", got)
	}
	if len(dlq.messages) != 0 {
		t.Fatal("valid payload must not be dead-lettered")
	}
}

// flakyReader serves a record, fails once, serves another record, then ends
// the loop by cancelling the context.
type flakyReader struct {
	calls  int
	cancel context.CancelFunc
}

func (r *flakyReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	r.calls++
	switch r.calls {
	case 1:
		return kafkago.Message{Value: []byte("poison-1")}, nil
	case 2:
		return kafkago.Message{}, errors.New("broker hiccup")
	case 3:
		return kafkago.Message{Value: []byte("poison-2")}, nil
	default:
		r.cancel()
		return kafkago.Message{}, context.Canceled
	}
}

func TestDrainDeadLettersSurvivesReadError(t *testing.T) {
	consumer, _, _, _ := newTestConsumer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &flakyReader{cancel: cancel}
	consumer.drainDeadLetters(ctx, reader)

	if reader.calls < 3 {
		t.Fatalf("reads = %d, drain loop must keep reading past a transient error", reader.calls)
	}
}
