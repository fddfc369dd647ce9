package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// AttemptStore keeps an in-flight checkout attempt until it is reconciled or expires.
type AttemptStore interface {
	Save(ctx context.Context, attempt *models.CheckoutAttempt) error
	Get(ctx context.Context, sessionID string) (*models.CheckoutAttempt, error)
	Delete(ctx context.Context, sessionID string) error
}

// CartStore is the customer's live cart.
type CartStore interface {
	Get(ctx context.Context, userID string) ([]models.CartItem, error)
	Set(ctx context.Context, userID string, items []models.CartItem) error
	Clear(ctx context.Context, userID string) error
}

// Locker serializes work across processes for one key.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
