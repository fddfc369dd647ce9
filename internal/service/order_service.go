package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

// OrderService serves finalized orders to their owners and applies
// fulfillment status changes.
type OrderService struct {
	orders    interfaces.OrderRepository
	publisher interfaces.EventPublisher
}

func NewOrderService(orders interfaces.OrderRepository, publisher interfaces.EventPublisher) *OrderService {
	return &OrderService{orders: orders, publisher: publisher}
}

// Get hides orders owned by someone else behind ErrOrderNotFound.
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, userID string) ([]*models.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	current, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Order status transition",
		zap.String("order_id", orderID),
		zap.String("from_state", string(current.Status)),
		zap.String("to_state", string(updated.Status)),
	)

	if s.publisher != nil {
		if err := s.publisher.OrderStatusChanged(ctx, updated, current.Status); err != nil {
			telemetry.Logger.Error("Failed to publish status change", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return updated, nil
}
