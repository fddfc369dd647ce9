package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/redirect"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

const defaultPaymentMethod = "card"

var paymentMethods = map[string]bool{"upi": true, "card": true, "cod": true}

// CheckoutInput is one customer's request to pay for their cart.
type CheckoutInput struct {
	Identity      interfaces.Identity
	Items         []models.CartItem // nil means use the stored cart
	Address       models.Address
	PaymentMethod string
	CustomerEmail string
	Metadata      map[string]string
}

// SessionStatus is the provider's view of a session plus any order it produced.
// Verification is set when an order exists and says how its payment was established.
type SessionStatus struct {
	SessionID     string                `json:"session_id"`
	PaymentStatus models.ProviderStatus `json:"payment_status,omitempty"`
	Outcome       models.PaymentOutcome `json:"outcome"`
	Verification  models.Verification   `json:"verification,omitempty"`
	Order         *models.Order         `json:"order,omitempty"`
}

// StartedCheckout is a created session with the amount the customer will be charged.
type StartedCheckout struct {
	models.PaymentSession
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type Orchestrator struct {
	gateway    interfaces.PaymentGateway
	attempts   interfaces.AttemptStore
	carts      interfaces.CartStore
	orders     interfaces.OrderRepository
	reconciler *Reconciler
	delivery   DeliveryPolicy
	baseURL    string
	currency   string
	now        func() time.Time
}

func NewOrchestrator(
	gateway interfaces.PaymentGateway,
	attempts interfaces.AttemptStore,
	carts interfaces.CartStore,
	orders interfaces.OrderRepository,
	reconciler *Reconciler,
	delivery DeliveryPolicy,
	baseURL, currency string,
) *Orchestrator {
	return &Orchestrator{
		gateway:    gateway,
		attempts:   attempts,
		carts:      carts,
		orders:     orders,
		reconciler: reconciler,
		delivery:   delivery,
		baseURL:    baseURL,
		currency:   currency,
		now:        time.Now,
	}
}

// BuildSession prices the cart, including the delivery charge, without
// contacting the provider.
func (o *Orchestrator) BuildSession(ctx context.Context, in CheckoutInput) (*models.CheckoutSessionRequest, models.CartSnapshot, error) {
	items := in.Items
	if items == nil {
		stored, err := o.carts.Get(ctx, in.Identity.UserID)
		if err != nil {
			return nil, models.CartSnapshot{}, err
		}
		items = stored
	}

	snapshot, err := SnapshotCart(items, o.now())
	if err != nil {
		return nil, models.CartSnapshot{}, err
	}
	if len(snapshot.Items) == 0 {
		return nil, models.CartSnapshot{}, &models.InvalidCartError{Reason: "cart is empty"}
	}

	email := strings.TrimSpace(in.CustomerEmail)
	if email == "" {
		email = in.Identity.Email
	}
	metadata := map[string]string{"userId": in.Identity.UserID}
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	req, err := BuildSession(items, o.delivery.ChargeFor(snapshot), email, metadata)
	if err != nil {
		return nil, models.CartSnapshot{}, err
	}
	return req, snapshot, nil
}

// CreateSession opens a hosted checkout session and remembers the attempt so
// the return from the provider can be reconciled.
func (o *Orchestrator) CreateSession(ctx context.Context, in CheckoutInput) (*StartedCheckout, error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.CreateSession", "")
	defer span.End()

	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = defaultPaymentMethod
	}
	if !paymentMethods[method] {
		return nil, &models.InvalidCartError{Reason: "unsupported payment method " + in.PaymentMethod}
	}

	req, snapshot, err := o.BuildSession(ctx, in)
	if err != nil {
		telemetry.SessionsCreated.WithLabelValues("cart", "invalid").Inc()
		return nil, err
	}

	successURL, cancelURL := gateway.RedirectURLs(o.baseURL)
	sess, err := o.gateway.CreateSession(ctx, *req, successURL, cancelURL)
	if err != nil {
		span.RecordError(err)
		telemetry.SessionsCreated.WithLabelValues("cart", "error").Inc()
		telemetry.Logger.Error("Failed to create checkout session",
			zap.String("user_id", in.Identity.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	attempt := &models.CheckoutAttempt{
		SessionID:     sess.SessionID,
		UserID:        in.Identity.UserID,
		CustomerEmail: req.CustomerEmail,
		Cart:          snapshot,
		Address:       in.Address,
		PaymentMethod: method,
		DeliveryMinor: req.DeliveryChargeMinorUnits,
		TotalMinor:    req.TotalMinorUnits(),
		Currency:      o.currency,
		CreatedAt:     o.now(),
	}
	if err := o.attempts.Save(ctx, attempt); err != nil {
		telemetry.SessionsCreated.WithLabelValues("cart", "error").Inc()
		return nil, &models.PersistenceError{Op: models.OpSaveAttempt, Err: err}
	}

	telemetry.SessionsCreated.WithLabelValues("cart", "ok").Inc()
	telemetry.Logger.Info("Checkout attempt started",
		zap.String("session_id", sess.SessionID),
		zap.String("user_id", attempt.UserID),
		zap.Int64("total_minor", attempt.TotalMinor),
	)
	return &StartedCheckout{PaymentSession: *sess, AmountMinor: attempt.TotalMinor, Currency: attempt.Currency}, nil
}

// CreateBookingSession opens a hosted checkout for a pandit booking. Bookings
// are confirmed by the booking service, so no attempt is stored.
func (o *Orchestrator) CreateBookingSession(ctx context.Context, booking models.BookingPayment) (*StartedCheckout, error) {
	req, err := BuildBookingSession(booking)
	if err != nil {
		telemetry.SessionsCreated.WithLabelValues("booking", "invalid").Inc()
		return nil, err
	}

	successURL, cancelURL := gateway.RedirectURLs(o.baseURL)
	sess, err := o.gateway.CreateSession(ctx, *req, successURL, cancelURL)
	if err != nil {
		telemetry.SessionsCreated.WithLabelValues("booking", "error").Inc()
		return nil, err
	}
	telemetry.SessionsCreated.WithLabelValues("booking", "ok").Inc()
	return &StartedCheckout{PaymentSession: *sess, AmountMinor: req.TotalMinorUnits(), Currency: o.currency}, nil
}

// CreateAndRedirect creates the session and only then opens the payment page.
func (o *Orchestrator) CreateAndRedirect(ctx context.Context, in CheckoutInput, browser redirect.Browser) (*StartedCheckout, redirect.Outcome, error) {
	sess, err := o.CreateSession(ctx, in)
	if err != nil {
		return nil, redirect.Outcome{}, err
	}
	outcome, err := redirect.NewCoordinator().Open(ctx, browser, sess.RedirectURL)
	if err != nil {
		return sess, redirect.Outcome{}, err
	}
	return sess, outcome, nil
}

// ReconcileAndFinalize settles a returned redirect. The attempt is dropped
// once the outcome is final either way, so a repeated call for a finalized
// session answers from the stored order.
func (o *Orchestrator) ReconcileAndFinalize(ctx context.Context, userID, sessionID string, outcome redirect.Outcome, prompter Prompter) (Result, error) {
	attempt, err := o.attempt(ctx, userID, sessionID)
	if errors.Is(err, models.ErrAttemptNotFound) {
		if order, lookupErr := o.orders.GetBySessionID(ctx, sessionID); lookupErr == nil && order.UserID == userID {
			return Result{
				State:        ReconcileFinalized,
				Order:        order,
				Verification: models.Verification(order.Metadata["verification"]),
				Message:      "Your order has been placed.",
			}, nil
		}
	}
	if err != nil {
		return Result{}, err
	}

	res := o.reconciler.Reconcile(ctx, attempt, outcome, prompter)

	if res.State == ReconcileFinalized || res.State == ReconcileDeclined {
		if err := o.attempts.Delete(ctx, sessionID); err != nil {
			telemetry.Logger.Warn("Failed to drop checkout attempt", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return res, nil
}

// GetStatus reports the provider status of one of the customer's sessions.
func (o *Orchestrator) GetStatus(ctx context.Context, userID, sessionID string) (*SessionStatus, error) {
	order, err := o.orders.GetBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		if order.UserID != userID {
			return nil, models.ErrAttemptNotFound
		}
		return orderStatus(sessionID, order), nil
	case !errors.Is(err, models.ErrOrderNotFound):
		return nil, err
	}

	if _, err := o.attempt(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	report, err := o.gateway.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		SessionID:     sessionID,
		PaymentStatus: report.Status,
		Outcome:       report.Outcome(),
	}, nil
}

// orderStatus reports a stored order. Only provider-verified orders claim a
// paid status; an order taken on the customer's word stays unknown.
func orderStatus(sessionID string, order *models.Order) *SessionStatus {
	st := &SessionStatus{
		SessionID:    sessionID,
		Outcome:      models.OutcomeUnknown,
		Verification: models.Verification(order.Metadata["verification"]),
		Order:        order,
	}
	if st.Verification == models.VerificationProvider {
		st.PaymentStatus = models.ProviderStatusPaid
		st.Outcome = models.OutcomeConfirmedPaid
	}
	return st
}

// attempt hides other customers' sessions behind ErrAttemptNotFound.
func (o *Orchestrator) attempt(ctx context.Context, userID, sessionID string) (*models.CheckoutAttempt, error) {
	attempt, err := o.attempts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, models.ErrAttemptNotFound
	}
	return attempt, nil
}
