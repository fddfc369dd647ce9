package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/repository"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

const (
	defaultEstimatedDelivery = "3-5 business days"
	defaultFinalizeLockTTL   = 30 * time.Second
)

// FinalizeRequest is everything needed to turn a paid session into an order.
type FinalizeRequest struct {
	SessionID     string
	UserID        string
	Cart          models.CartSnapshot
	Address       models.Address
	PaymentMethod string
	TotalMinor    int64
	Currency      string
	Verification  models.Verification
	Metadata      map[string]string
}

// Finalizer creates at most one order per checkout session.
type Finalizer struct {
	orders    interfaces.OrderRepository
	carts     interfaces.CartStore
	locker    interfaces.Locker
	publisher interfaces.EventPublisher
	lockTTL   time.Duration
	timeout   time.Duration
	group     singleflight.Group
	now       func() time.Time
}

func NewFinalizer(
	orders interfaces.OrderRepository,
	carts interfaces.CartStore,
	locker interfaces.Locker,
	publisher interfaces.EventPublisher,
	lockTTL time.Duration,
) *Finalizer {
	if lockTTL <= 0 {
		lockTTL = defaultFinalizeLockTTL
	}
	return &Finalizer{
		orders:    orders,
		carts:     carts,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		timeout:   2 * lockTTL,
		now:       time.Now,
	}
}

// Finalize persists the order, clears the live cart and announces the order.
// Repeated or concurrent calls for the same session return the same order.
// The shared work is detached from any single caller's cancellation and bounded
// by twice the lock TTL; a caller whose ctx ends stops waiting for it.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (*models.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "finalizer.Finalize", req.SessionID)
	defer span.End()

	ch := f.group.DoChan(req.SessionID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.finalize(shared, req)
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			telemetry.Finalizes.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		if res.Shared {
			telemetry.Logger.Debug("Finalize shared with a concurrent caller", zap.String("session_id", req.SessionID))
		}
		return res.Val.(*models.Order), nil
	}
}

func (f *Finalizer) finalize(ctx context.Context, req FinalizeRequest) (*models.Order, error) {
	if existing, err := f.existing(ctx, req); existing != nil || err != nil {
		return existing, err
	}

	release, err := f.locker.Acquire(ctx, repository.FinalizeLockKey(req.SessionID), f.lockTTL)
	if err != nil {
		return nil, &models.PersistenceError{Op: models.OpAcquireLock, Err: err}
	}
	defer release()

	// Another process may have finished while we waited for the lock.
	if existing, err := f.existing(ctx, req); existing != nil || err != nil {
		return existing, err
	}

	order := f.newOrder(req)
	stored, created, err := f.orders.CreateOrder(ctx, order)
	if err != nil {
		return nil, &models.PersistenceError{Op: models.OpCreateOrder, Err: err}
	}
	if !created {
		telemetry.Finalizes.WithLabelValues("existing").Inc()
		return stored, f.clearCart(ctx, req.UserID, req.SessionID)
	}

	telemetry.Finalizes.WithLabelValues("created").Inc()
	telemetry.Logger.Info("Order finalized",
		zap.String("order_id", stored.ID),
		zap.String("session_id", stored.SessionID),
		zap.String("user_id", stored.UserID),
		zap.Int64("total_minor", stored.TotalMinor),
		zap.String("verification", string(req.Verification)),
	)

	if err := f.clearCart(ctx, req.UserID, req.SessionID); err != nil {
		return nil, err
	}

	if f.publisher != nil {
		if err := f.publisher.OrderFinalized(ctx, stored); err != nil {
			telemetry.Logger.Error("Failed to publish order finalized event",
				zap.String("order_id", stored.ID),
				zap.Error(err),
			)
		}
	}
	return stored, nil
}

// existing returns the order already stored for the session, clearing the cart
// in case an earlier attempt stopped between the insert and the clear.
func (f *Finalizer) existing(ctx context.Context, req FinalizeRequest) (*models.Order, error) {
	order, err := f.orders.GetBySessionID(ctx, req.SessionID)
	if errors.Is(err, models.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: models.OpLoadOrder, Err: err}
	}
	telemetry.Finalizes.WithLabelValues("existing").Inc()
	if err := f.clearCart(ctx, req.UserID, req.SessionID); err != nil {
		return nil, err
	}
	return order, nil
}

func (f *Finalizer) clearCart(ctx context.Context, userID, sessionID string) error {
	if err := f.carts.Clear(ctx, userID); err != nil {
		telemetry.Logger.Error("Order stored but cart was not cleared",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &models.PersistenceError{Op: models.OpClearCart, Err: err}
	}
	return nil
}

func (f *Finalizer) newOrder(req FinalizeRequest) *models.Order {
	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["sessionId"] = req.SessionID
	metadata["verification"] = string(req.Verification)

	return &models.Order{
		ID:                uuid.NewString(),
		SessionID:         req.SessionID,
		UserID:            req.UserID,
		Items:             req.Cart.Items,
		TotalMinor:        req.TotalMinor,
		Total:             models.MinorToDecimal(req.TotalMinor),
		Currency:          req.Currency,
		Address:           req.Address,
		PaymentMethod:     req.PaymentMethod,
		Status:            models.OrderStatusPending,
		EstimatedDelivery: defaultEstimatedDelivery,
		Metadata:          metadata,
		CreatedAt:         f.now(),
	}
}
