// Package events carries order lifecycle events over Kafka.
package events

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderFinalized     = "order.finalized"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderFulfillment   = "order.fulfillment"
)

const (
	EventOrderFinalized     = "OrderFinalized"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventFulfillmentUpdate  = "FulfillmentUpdate"
)

const producerName = "checkout-orchestrator"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderFinalizedPayload struct {
	OrderID      string `json:"order_id"`
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	TotalMinor   int64  `json:"total_minor"`
	Currency     string `json:"currency"`
	Verification string `json:"verification"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

// FulfillmentUpdatePayload is sent by the fulfillment side to move an order along.
type FulfillmentUpdatePayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
