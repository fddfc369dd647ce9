package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

func statusFor(err error) int {
	var (
		cartErr     *models.InvalidCartError
		unavailable *models.GatewayUnavailableError
		request     *models.GatewayRequestError
		redirect    *models.RedirectOpenError
	)
	switch {
	case errors.As(err, &cartErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &request), errors.As(err, &redirect):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrAttemptNotFound), errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		return "Order not found."
	case errors.Is(err, models.ErrInvalidTransition):
		return "The order can no longer be changed that way."
	default:
		return models.UserMessage(err)
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":     messageFor(err),
		"retryable": models.Retryable(err),
	})
}
