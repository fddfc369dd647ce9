package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusUpdater applies a fulfillment status to an order.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
}

// StatusConsumer applies fulfillment updates from the order.fulfillment topic.
type StatusConsumer struct {
	r       messageReader
	updater StatusUpdater
}

func NewFulfillmentReader(brokers []string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          TopicOrderFulfillment,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

func NewStatusConsumer(r messageReader, updater StatusUpdater) *StatusConsumer {
	return &StatusConsumer{r: r, updater: updater}
}

const retryBackoff = 200 * time.Millisecond

// Run blocks until ctx is cancelled. Messages that can never apply (bad JSON,
// unknown order, illegal transition) are committed and skipped. Any other
// failure retries the same message, so its offset is never committed past.
func (c *StatusConsumer) Run(ctx context.Context) error {
	defer c.r.Close()

	telemetry.Logger.Info("Started consuming fulfillment updates", zap.String("topic", TopicOrderFulfillment))

	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			return err
		}

		if !c.apply(ctx, msg) {
			return nil
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			telemetry.Logger.Error("Error committing offset", zap.Error(err))
		}
	}
}

// apply handles msg until it succeeds. It returns false if ctx ends first.
func (c *StatusConsumer) apply(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		telemetry.Logger.Error("Error applying fulfillment update",
			zap.ByteString("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBackoff):
		}
	}
}

// handle returns an error only when the message should be retried.
func (c *StatusConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		telemetry.Logger.Warn("Skipping malformed fulfillment message", zap.Error(err))
		return nil
	}
	if env.EventType != EventFulfillmentUpdate {
		return nil
	}

	var payload FulfillmentUpdatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		telemetry.Logger.Warn("Skipping malformed fulfillment payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	status, ok := models.ParseOrderStatus(payload.Status)
	if !ok {
		telemetry.Logger.Warn("Skipping unknown order status",
			zap.String("order_id", payload.OrderID),
			zap.String("status", payload.Status),
		)
		return nil
	}

	_, err := c.updater.UpdateStatus(ctx, payload.OrderID, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrInvalidTransition):
		telemetry.Logger.Warn("Skipping fulfillment update",
			zap.String("order_id", payload.OrderID),
			zap.String("status", payload.Status),
			zap.Error(err),
		)
		return nil
	default:
		return fmt.Errorf("update order %s: %w", payload.OrderID, err)
	}
}
