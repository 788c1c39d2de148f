package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/models"
)

const (
	resultPrefix  = "result:"
	pendingPrefix = "pending:"
	ttl           = 10 * time.Minute

	Pending = "PENDING"
	Success = "SUCCESS"

	failurePrefix = "FAILURE: "

	// DefaultMessage is returned for operations with no recorded outcome:
	// either still processing or already evicted.
	DefaultMessage = "Processing or no record"
)

// Cache maps operation ids to their outcome. Entries live under
// "result:<operationId>" for ten minutes; a companion "pending:<operationId>"
// key stashes the serialized intent so the retry scheduler can re-publish it.
type Cache struct {
	store cache.Store
}

func NewCache(store cache.Store) *Cache {
	return &Cache{store: store}
}

// MarkPending records the intent as in flight. Called at publish time so a
// consumer crash leaves a visible, retryable trace. A terminal outcome is
// never overwritten: a re-publish racing the consumer must not resurrect a
// settled operation.
func (c *Cache) MarkPending(ctx context.Context, intent models.TransactionIntent) error {
	current, err := c.store.Get(ctx, resultPrefix+intent.OperationID)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	if err == nil && isTerminal(current) {
		return nil
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	if err := c.store.Set(ctx, resultPrefix+intent.OperationID, Pending, ttl); err != nil {
		return err
	}
	return c.store.Set(ctx, pendingPrefix+intent.OperationID, string(payload), ttl)
}

func (c *Cache) MarkSuccess(ctx context.Context, operationID string) error {
	if err := c.store.Set(ctx, resultPrefix+operationID, Success, ttl); err != nil {
		return err
	}
	return c.store.Del(ctx, pendingPrefix+operationID)
}

// MarkFailure records a terminal business failure. The reason text becomes
// part of the status value the caller polls.
func (c *Cache) MarkFailure(ctx context.Context, operationID string, reason error) error {
	if err := c.store.Set(ctx, resultPrefix+operationID, failurePrefix+reason.Error(), ttl); err != nil {
		return err
	}
	return c.store.Del(ctx, pendingPrefix+operationID)
}

// Get returns the recorded outcome, or DefaultMessage when none exists.
func (c *Cache) Get(ctx context.Context, operationID string) (string, error) {
	value, err := c.store.Get(ctx, resultPrefix+operationID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return DefaultMessage, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// IsTerminal reports whether the operation already reached SUCCESS or
// FAILURE. The consumer uses it to keep retried intents idempotent.
func (c *Cache) IsTerminal(ctx context.Context, operationID string) (bool, error) {
	value, err := c.store.Get(ctx, resultPrefix+operationID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isTerminal(value), nil
}

func isTerminal(value string) bool {
	return value == Success || strings.HasPrefix(value, failurePrefix)
}

// Clear drops every trace of the operation. The producer uses it when a
// publish fails after the operation was marked pending, so a request answered
// with an error cannot be replayed by the retry scheduler.
func (c *Cache) Clear(ctx context.Context, operationID string) error {
	return c.store.Del(ctx, resultPrefix+operationID, pendingPrefix+operationID)
}

// PendingIntents returns the stashed intent for every operation still marked
// PENDING. Entries whose companion payload is missing or unreadable are
// skipped; they will age out with their TTL.
func (c *Cache) PendingIntents(ctx context.Context) ([]models.TransactionIntent, error) {
	keys, err := c.store.Keys(ctx, resultPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan status keys: %w", err)
	}

	var intents []models.TransactionIntent
	for _, key := range keys {
		value, err := c.store.Get(ctx, key)
		if err != nil || value != Pending {
			continue
		}
		operationID := strings.TrimPrefix(key, resultPrefix)
		payload, err := c.store.Get(ctx, pendingPrefix+operationID)
		if err != nil {
			continue
		}
		var intent models.TransactionIntent
		if err := json.Unmarshal([]byte(payload), &intent); err != nil {
			continue
		}
		intents = append(intents, intent)
	}
	return intents, nil
}
