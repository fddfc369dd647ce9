package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// Identity is the authenticated customer behind a session token.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	OrderFinalized(ctx context.Context, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
}
