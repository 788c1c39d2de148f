package status

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/models"
)

func testIntent(operationID string) models.TransactionIntent {
	return models.TransactionIntent{
		OperationID: operationID,
		Operation:   models.OperationDeposit,
		UserID:      1,
		Currency:    models.USD,
		Amount:      decimal.NewFromInt(100),
	}
}

func TestGetDefaultMessage(t *testing.T) {
	c := NewCache(cache.NewMemoryStore())

	got, err := c.Get(context.Background(), "op-unknown")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != DefaultMessage {
		t.Fatalf("Get = %q, want %q", got, DefaultMessage)
	}
}

func TestMarkPendingThenSuccess(t *testing.T) {
	store := cache.NewMemoryStore()
	c := NewCache(store)
	ctx := context.Background()

	if err := c.MarkPending(ctx, testIntent("op-123")); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if got, _ := c.Get(ctx, "op-123"); got != Pending {
		t.Fatalf("status = %q, want PENDING", got)
	}
	if terminal, _ := c.IsTerminal(ctx, "op-123"); terminal {
		t.Fatal("PENDING must not be terminal")
	}

	if err := c.MarkSuccess(ctx, "op-123"); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if got, _ := store.Get(ctx, "result:op-123"); got != "SUCCESS" {
		t.Fatalf("result key = %q, want SUCCESS", got)
	}
	if terminal, _ := c.IsTerminal(ctx, "op-123"); !terminal {
		t.Fatal("SUCCESS must be terminal")
	}

	// The stashed intent is cleared with the terminal status.
	if _, err := store.Get(ctx, "pending:op-123"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("pending payload should be deleted, got %v", err)
	}
}

func TestMarkFailureRecordsReason(t *testing.T) {
	store := cache.NewMemoryStore()
	c := NewCache(store)
	ctx := context.Background()

	if err := c.MarkFailure(ctx, "op-9", errors.New("Insufficient balance in account")); err != nil {
		t.Fatalf("MarkFailure: %v", err)
	}
	got, _ := store.Get(ctx, "result:op-9")
	if got != "FAILURE: Insufficient balance in account" {
		t.Fatalf("result key = %q", got)
	}
	if terminal, _ := c.IsTerminal(ctx, "op-9"); !terminal {
		t.Fatal("FAILURE must be terminal")
	}
}

func TestMarkPendingDoesNotOverwriteTerminal(t *testing.T) {
	store := cache.NewMemoryStore()
	c := NewCache(store)
	ctx := context.Background()

	c.MarkPending(ctx, testIntent("op-123"))
	c.MarkFailure(ctx, "op-123", errors.New("Insufficient balance in account"))

	if err := c.MarkPending(ctx, testIntent("op-123")); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	got, _ := c.Get(ctx, "op-123")
	if got != "FAILURE: Insufficient balance in account" {
		t.Fatalf("status = %q, terminal outcome must survive a re-mark", got)
	}
	if _, err := store.Get(ctx, "pending:op-123"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("pending payload must not be resurrected, got %v", err)
	}
}

func TestClearDropsEveryTrace(t *testing.T) {
	c := NewCache(cache.NewMemoryStore())
	ctx := context.Background()

	c.MarkPending(ctx, testIntent("op-gone"))
	if err := c.Clear(ctx, "op-gone"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if got, _ := c.Get(ctx, "op-gone"); got != DefaultMessage {
		t.Fatalf("status = %q, want no record", got)
	}
	intents, _ := c.PendingIntents(ctx)
	if len(intents) != 0 {
		t.Fatalf("pending = %d intents, want none", len(intents))
	}
}

func TestPendingIntents(t *testing.T) {
	c := NewCache(cache.NewMemoryStore())
	ctx := context.Background()

	c.MarkPending(ctx, testIntent("op-a"))
	c.MarkPending(ctx, testIntent("op-b"))
	c.MarkSuccess(ctx, "op-b")

	intents, err := c.PendingIntents(ctx)
	if err != nil {
		t.Fatalf("PendingIntents: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("PendingIntents = %d entries, want 1", len(intents))
	}
	if intents[0].OperationID != "op-a" {
		t.Fatalf("pending intent = %q, want op-a", intents[0].OperationID)
	}
	if !intents[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("pending amount = %s, want 100", intents[0].Amount)
	}
}
