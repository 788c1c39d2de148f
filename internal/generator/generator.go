package generator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/models"
)

// Generator pushes batches of random deposit and withdraw intents through
// the producer on a fixed interval. It exists to exercise the pipeline under
// load; it holds no state beyond the producer.
type Generator struct {
	producer interfaces.IntentPublisher
	interval time.Duration
	batch    int
	workers  int
	users    int
	baseUser int64
	log      *slog.Logger
}

func New(producer interfaces.IntentPublisher, interval time.Duration, batch, workers, users int, baseUser int64, log *slog.Logger) *Generator {
	return &Generator{
		producer: producer,
		interval: interval,
		batch:    batch,
		workers:  workers,
		users:    users,
		baseUser: baseUser,
		log:      log,
	}
}

// Run emits one batch per interval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Generate(ctx)
		}
	}
}

// Generate submits one batch through a bounded worker pool.
func (g *Generator) Generate(ctx context.Context) {
	g.log.Info("starting bulk request generation", "batch", g.batch, "workers", g.workers)

	jobs := make(chan models.TransactionIntent)
	var wg sync.WaitGroup
	for i := 0; i < g.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for intent := range jobs {
				var err error
				if intent.Operation == models.OperationDeposit {
					err = g.producer.SendDeposit(ctx, intent)
				} else {
					err = g.producer.SendWithdraw(ctx, intent)
				}
				if err != nil {
					g.log.Error("generated intent publish failed", "operation_id", intent.OperationID, "error", err)
				}
			}
		}()
	}

feed:
	for i := 0; i < g.batch; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- g.randomIntent(i):
		}
	}
	close(jobs)
	wg.Wait()

	g.log.Info("bulk request generation complete", "batch", g.batch)
}

func (g *Generator) randomIntent(i int) models.TransactionIntent {
	operation := models.OperationWithdraw
	if i%3 == 0 {
		operation = models.OperationDeposit
	}
	currency := models.USD
	if rand.Intn(2) == 1 {
		currency = models.TRY
	}
	amount := decimal.NewFromFloat(1 + rand.Float64()*499).Round(2)

	return models.TransactionIntent{
		OperationID: uuid.NewString(),
		Operation:   operation,
		UserID:      g.baseUser + int64(i%g.users),
		Currency:    currency,
		Amount:      amount,
	}
}
