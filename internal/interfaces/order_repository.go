package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// OrderRepository defines the contract for order data access.
type OrderRepository interface {
	// CreateOrder inserts the order unless one already exists for its session id.
	// created is false when the existing order was returned instead.
	CreateOrder(ctx context.Context, order *models.Order) (stored *models.Order, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
}
