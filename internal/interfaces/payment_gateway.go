package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// PaymentGateway wraps the hosted-checkout provider. It keeps no local state.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req models.CheckoutSessionRequest, successURL, cancelURL string) (*models.PaymentSession, error)
	GetStatus(ctx context.Context, sessionID string) (*models.PaymentStatusReport, error)
}
