package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes order events keyed by order id so one order's events
// stay ordered within a partition.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaWriter returns a writer with no fixed topic; each message names its own.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) OrderFinalized(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, TopicOrderFinalized, EventOrderFinalized, order.ID, OrderFinalizedPayload{
		OrderID:      order.ID,
		SessionID:    order.SessionID,
		UserID:       order.UserID,
		TotalMinor:   order.TotalMinor,
		Currency:     order.Currency,
		Verification: order.Metadata["verification"],
	})
}

func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	return p.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, order.ID, OrderStatusChangedPayload{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, eventType, orderID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: orderID,
		Payload:       raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(orderID),
		Value: value,
	}); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}

	telemetry.Logger.Info("Order event published",
		zap.String("event_type", eventType),
		zap.String("order_id", orderID),
		zap.String("topic", topic),
	)
	return nil
}
