package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/models"
	"github.com/zad/exchange-api/internal/status"
)

// deadLetterWriter is the part of kafka.Writer the consumer needs to route
// poison messages.
type deadLetterWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer drives the mutation state machine: it consumes intents, applies
// them through the ledger service and records the outcome in the status
// cache. Business failures are terminal and recorded, never redelivered;
// only undeserializable payloads go to the dead-letter topic.
type Consumer struct {
	brokers []string
	reader  *kafka.Reader
	dlq     deadLetterWriter
	ledger  *ledger.Service
	status  *status.Cache
	log     *slog.Logger
}

func NewConsumer(brokers []string, ledgerService *ledger.Service, statusCache *status.Cache, log *slog.Logger) *Consumer {
	return &Consumer{
		brokers: brokers,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: ConsumerGroup,
			Topic:   TransactionTopic,
		}),
		dlq: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    DeadLetterTopic,
			Balancer: &kafka.LeastBytes{},
		},
		ledger: ledgerService,
		status: statusCache,
		log:    log,
	}
}

// Run consumes intents until ctx is cancelled. Messages are committed after
// processing: a crash mid-flight leaves the intent uncommitted and PENDING,
// where redelivery or the retry scheduler picks it up.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		c.Process(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Process applies one raw queue message.
func (c *Consumer) Process(ctx context.Context, raw []byte) {
	var intent models.TransactionIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		c.log.Error("undeserializable transaction message", "error", err)
		c.deadLetter(ctx, raw)
		return
	}
	c.Handle(ctx, intent)
}

// Handle runs one intent through the state machine.
func (c *Consumer) Handle(ctx context.Context, intent models.TransactionIntent) {
	terminal, err := c.status.IsTerminal(ctx, intent.OperationID)
	if err != nil {
		c.log.Warn("status lookup failed, processing anyway", "operation_id", intent.OperationID, "error", err)
	}
	if terminal {
		c.log.Info("skipping already settled operation", "operation_id", intent.OperationID)
		return
	}

	switch intent.Operation {
	case models.OperationDeposit:
		c.settle(ctx, intent, c.applyDeposit)
	case models.OperationWithdraw:
		c.settle(ctx, intent, c.applyWithdraw)
	default:
		// Structurally sound but unrecognized: drop, don't retry.
		c.log.Warn("unknown operation kind, dropping message",
			"operation", intent.Operation,
			"operation_id", intent.OperationID)
	}
}

// settle applies the mutation and records the outcome. Errors from apply are
// business failures by construction and must not escape to the transport
// layer, where they would trigger redelivery of a deterministic failure.
func (c *Consumer) settle(ctx context.Context, intent models.TransactionIntent, apply func(context.Context, models.TransactionIntent) error) {
	if err := apply(ctx, intent); err != nil {
		c.log.Error("transaction failed",
			"operation", intent.Operation,
			"operation_id", intent.OperationID,
			"user_id", intent.UserID,
			"error", err)
		if serr := c.status.MarkFailure(ctx, intent.OperationID, err); serr != nil {
			c.log.Error("failure status write failed", "operation_id", intent.OperationID, "error", serr)
		}
		return
	}

	if serr := c.status.MarkSuccess(ctx, intent.OperationID); serr != nil {
		c.log.Error("success status write failed", "operation_id", intent.OperationID, "error", serr)
	}
	c.log.Info("transaction applied",
		"operation", intent.Operation,
		"operation_id", intent.OperationID,
		"user_id", intent.UserID)
}

func (c *Consumer) applyDeposit(ctx context.Context, intent models.TransactionIntent) error {
	return c.ledger.Deposit(ctx, intent.UserID, intent.Currency, intent.Amount)
}

func (c *Consumer) applyWithdraw(ctx context.Context, intent models.TransactionIntent) error {
	return c.ledger.Withdraw(ctx, intent.UserID, intent.Currency, intent.Amount)
}

func (c *Consumer) deadLetter(ctx context.Context, raw []byte) {
	if err := c.dlq.WriteMessages(ctx, kafka.Message{Value: raw}); err != nil {
		c.log.Error("dead-letter publish failed", "error", err)
	}
}

// deadLetterReader is the part of kafka.Reader the drain loop needs.
type deadLetterReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// DrainDeadLetters logs poisoned records so they stay visible in operations
// tooling. Runs until ctx is cancelled.
func (c *Consumer) DrainDeadLetters(ctx context.Context) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.brokers,
		GroupID: ConsumerGroup + "-dlq",
		Topic:   DeadLetterTopic,
	})
	defer reader.Close()

	c.drainDeadLetters(ctx, reader)
}

// drainDeadLetters survives transient read failures: a broker hiccup must
// not end dead-letter visibility for the process lifetime.
func (c *Consumer) drainDeadLetters(ctx context.Context, reader deadLetterReader) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("dead-letter read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.log.Error("dead-letter message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value", string(msg.Value))
	}
}
