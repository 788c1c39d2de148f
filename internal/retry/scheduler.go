package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/status"
)

// Scheduler periodically re-submits operations stuck in PENDING: entries
// whose consumer never ran to completion, typically after a crash
// mid-flight. Terminal entries are left untouched.
type Scheduler struct {
	status   *status.Cache
	producer interfaces.IntentPublisher
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(statusCache *status.Cache, producer interfaces.IntentPublisher, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		status:   statusCache,
		producer: producer,
		interval: interval,
		log:      log,
	}
}

// Run scans on a fixed interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RetryPending(ctx)
		}
	}
}

// RetryPending performs one scan of the status cache. Re-publishing is safe
// even when the original intent is still in flight: the consumer skips any
// operation that already reached a terminal state.
func (s *Scheduler) RetryPending(ctx context.Context) {
	intents, err := s.status.PendingIntents(ctx)
	if err != nil {
		s.log.Error("pending scan failed", "error", err)
		return
	}

	for _, intent := range intents {
		if err := s.producer.Retry(ctx, intent, intent.OperationID); err != nil {
			s.log.Error("retry publish failed", "operation_id", intent.OperationID, "error", err)
		}
	}
	if len(intents) > 0 {
		s.log.Info("re-published pending transactions", "count", len(intents))
	}
}
