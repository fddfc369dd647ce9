package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

type OrderService interface {
	Get(ctx context.Context, userID, orderID string) (*models.Order, error)
	List(ctx context.Context, userID string) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
}

type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), identityFrom(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus lets a customer cancel their own order. Every other transition
// arrives from fulfillment over Kafka.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	status, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown order status"})
		return
	}
	if status != models.OrderStatusCancelled {
		c.JSON(http.StatusForbidden, gin.H{"error": "orders can only be cancelled here"})
		return
	}

	ctx := c.Request.Context()
	order, err := h.orders.Get(ctx, identityFrom(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	updated, err := h.orders.UpdateStatus(ctx, order.ID, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
