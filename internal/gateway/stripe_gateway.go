package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

// SessionIDPlaceholder is substituted by Stripe with the session id when it
// redirects to the success URL.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// RedirectURLs returns the default success and cancel landing pages under baseURL.
func RedirectURLs(baseURL string) (successURL, cancelURL string) {
	base := strings.TrimRight(baseURL, "/")
	return base + "/payment-success?session_id=" + SessionIDPlaceholder, base + "/payment-cancel"
}

// NewBackends builds Stripe backends that log through zap. baseURL may be empty
// to use the live Stripe API.
func NewBackends(baseURL string, logger *zap.Logger) *stripe.Backends {
	cfg := &stripe.BackendConfig{
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(1),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
}

type StripeGateway struct {
	api      *client.API
	hasKey   bool
	currency string
	breaker  *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewStripeGateway(secretKey, currency string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:      client.New(secretKey, backends),
		hasKey:   strings.TrimSpace(secretKey) != "",
		currency: strings.ToLower(currency),
		breaker: gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
			Name:        "stripe-checkout",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isClientError(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				telemetry.Logger.Warn("Payment provider circuit changed state",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req models.CheckoutSessionRequest, successURL, cancelURL string) (*models.PaymentSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.CreateSession", "")
	defer span.End()

	if !g.hasKey {
		return nil, &models.GatewayUnavailableError{Reason: "STRIPE_SECRET_KEY is not set"}
	}
	if len(req.LineItems) == 0 {
		return nil, &models.InvalidCartError{Reason: "no line items"}
	}
	if err := validateRedirectURLs(successURL, cancelURL); err != nil {
		return nil, err
	}

	params := g.sessionParams(req, successURL, cancelURL)
	params.Context = ctx

	sess, err := g.call("create", func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	telemetry.Logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.Int("line_items", len(req.LineItems)),
		zap.Int64("amount_minor", req.TotalMinorUnits()),
	)

	return &models.PaymentSession{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

func (g *StripeGateway) GetStatus(ctx context.Context, sessionID string) (*models.PaymentStatusReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.GetStatus", sessionID)
	defer span.End()

	if !g.hasKey {
		return nil, &models.GatewayUnavailableError{Reason: "STRIPE_SECRET_KEY is not set"}
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, &models.GatewayRequestError{Op: "status", Message: "session id is required"}
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.call("status", func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.Get(sessionID, params)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &models.PaymentStatusReport{
		SessionID:   sess.ID,
		Status:      models.ProviderStatus(sess.PaymentStatus),
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
	}
	if sess.CustomerDetails != nil {
		report.CustomerEmail = sess.CustomerDetails.Email
	}
	return report, nil
}

func (g *StripeGateway) sessionParams(req models.CheckoutSessionRequest, successURL, cancelURL string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		if len(li.Images) > 0 {
			product.Images = stripe.StringSlice(li.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(li.UnitPriceMinorUnits),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func (g *StripeGateway) call(op string, fn func() (*stripe.CheckoutSession, error)) (*stripe.CheckoutSession, error) {
	start := time.Now()
	sess, err := g.breaker.Execute(fn)
	telemetry.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.GatewayRequests.WithLabelValues(op, "error").Inc()
		return nil, translateError(op, err)
	}
	telemetry.GatewayRequests.WithLabelValues(op, "ok").Inc()
	return sess, nil
}

func translateError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden {
			return &models.GatewayUnavailableError{Reason: stripeErr.Msg}
		}
		return &models.GatewayRequestError{
			Op:         op,
			StatusCode: stripeErr.HTTPStatusCode,
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &models.GatewayRequestError{Op: op, Message: "payment provider is failing, try again shortly", Err: err}
	}
	return &models.GatewayRequestError{Op: op, Message: err.Error(), Err: err}
}

// isClientError keeps provider 4xx answers (bad request, unknown session) from
// tripping the breaker. Rate limiting still counts.
func isClientError(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 &&
		stripeErr.HTTPStatusCode != http.StatusTooManyRequests
}

func validateRedirectURLs(successURL, cancelURL string) error {
	for name, raw := range map[string]string{"success": successURL, "cancel": cancelURL} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return &models.GatewayRequestError{Op: "create", Message: name + " url must be absolute"}
		}
	}
	if !strings.Contains(successURL, SessionIDPlaceholder) {
		return &models.GatewayRequestError{Op: "create", Message: "success url must contain " + SessionIDPlaceholder}
	}
	return nil
}
