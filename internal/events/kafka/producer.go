package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/models"
	"github.com/zad/exchange-api/internal/status"
)

const (
	// TransactionTopic carries every deposit and withdraw intent. Messages
	// are keyed by user id so one user's intents land on one partition in
	// submission order.
	TransactionTopic = "transaction-queue"

	// DeadLetterTopic receives payloads the consumer could not deserialize.
	DeadLetterTopic = "dlq-topic"

	// ConsumerGroup is the transaction consumer group id.
	ConsumerGroup = "transaction-group"
)

// intentWriter is the part of kafka.Writer the producer needs.
type intentWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes transaction intents. Publishing also marks the
// operation PENDING in the status cache, so an intent that never reaches a
// consumer stays visible to the retry scheduler.
type Producer struct {
	writer intentWriter
	status *status.Cache
	log    *slog.Logger
}

func NewProducer(brokers []string, statusCache *status.Cache, log *slog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    TransactionTopic,
			Balancer: &kafka.Hash{},
		},
		status: statusCache,
		log:    log,
	}
}

func (p *Producer) SendDeposit(ctx context.Context, intent models.TransactionIntent) error {
	return p.publish(ctx, intent)
}

func (p *Producer) SendWithdraw(ctx context.Context, intent models.TransactionIntent) error {
	return p.publish(ctx, intent)
}

// Retry re-publishes a stuck intent verbatim under its original operation id.
// The operation is already PENDING, so the status is left untouched: a
// consumer settling the original delivery concurrently must not be clobbered
// back to PENDING.
func (p *Producer) Retry(ctx context.Context, intent models.TransactionIntent, operationID string) error {
	p.log.Warn("retrying transaction",
		"operation_id", operationID,
		"operation", intent.Operation,
		"user_id", intent.UserID)
	return p.write(ctx, intent)
}

func (p *Producer) publish(ctx context.Context, intent models.TransactionIntent) error {
	if err := p.status.MarkPending(ctx, intent); err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}

	if err := p.write(ctx, intent); err != nil {
		// The caller is told the request failed, so the operation must not
		// stay visible to the retry scheduler.
		if cerr := p.status.Clear(ctx, intent.OperationID); cerr != nil {
			p.log.Error("pending cleanup failed", "operation_id", intent.OperationID, "error", cerr)
		}
		return err
	}
	return nil
}

func (p *Producer) write(ctx context.Context, intent models.TransactionIntent) error {
	value, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   intent.PartitionKey(),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish intent %s: %w", intent.OperationID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

var _ interfaces.IntentPublisher = (*Producer)(nil)
