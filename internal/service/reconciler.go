package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/redirect"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

// ConfirmationQuestion is asked when the provider has not confirmed payment.
const ConfirmationQuestion = "Did you complete the payment?"

// ReconcileState is a terminal state of one reconciliation.
type ReconcileState string

const (
	ReconcileFinalized            ReconcileState = "finalized"
	ReconcileDeclined             ReconcileState = "declined"
	ReconcileAwaitingConfirmation ReconcileState = "awaiting_confirmation"
	ReconcileUnconfirmed          ReconcileState = "unconfirmed"
	ReconcileFailed               ReconcileState = "failed"
)

// Confirmation is the customer's answer to ConfirmationQuestion.
type Confirmation string

const (
	ConfirmPaid   Confirmation = "paid"
	ConfirmCancel Confirmation = "cancel"
)

// Prompter asks the customer whether they paid. It returns models.ErrNoAnswer
// when no answer is available yet.
type Prompter interface {
	Confirm(ctx context.Context, sessionID string) (Confirmation, error)
}

// Result is what the customer sees after a redirect returns. Message is always set.
type Result struct {
	State        ReconcileState      `json:"state"`
	Order        *models.Order       `json:"order,omitempty"`
	Verification models.Verification `json:"verification,omitempty"`
	Message      string              `json:"message"`
	Err          error               `json:"-"`
}

type ReconcilerConfig struct {
	// AllowAssertedFinalize creates the order on the customer's word when the
	// provider cannot be reached after they say they paid.
	AllowAssertedFinalize bool
	StatusChecks          int
	StatusCheckInterval   time.Duration
}

// Reconciler decides what a finished redirect means for the order.
type Reconciler struct {
	gateway   interfaces.PaymentGateway
	finalizer *Finalizer
	cfg       ReconcilerConfig
}

func NewReconciler(gateway interfaces.PaymentGateway, finalizer *Finalizer, cfg ReconcilerConfig) *Reconciler {
	if cfg.StatusChecks < 1 {
		cfg.StatusChecks = 1
	}
	return &Reconciler{gateway: gateway, finalizer: finalizer, cfg: cfg}
}

// Reconcile never finalizes on a browser signal alone. A paid status from the
// provider finalizes at once; anything else goes through the customer prompt.
func (r *Reconciler) Reconcile(ctx context.Context, attempt *models.CheckoutAttempt, outcome redirect.Outcome, prompter Prompter) Result {
	ctx, span := telemetry.StartSpan(ctx, "reconciler.Reconcile", attempt.SessionID)
	defer span.End()

	res := r.reconcile(ctx, attempt, outcome, prompter)

	telemetry.ReconcileOutcomes.WithLabelValues(string(res.State), string(res.Verification)).Inc()
	telemetry.Logger.Info("Checkout reconciled",
		zap.String("session_id", attempt.SessionID),
		zap.String("redirect_state", string(outcome.State)),
		zap.String("state", string(res.State)),
		zap.String("verification", string(res.Verification)),
	)
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, attempt *models.CheckoutAttempt, outcome redirect.Outcome, prompter Prompter) Result {
	sid := attempt.SessionID

	if outcome.State == redirect.StateOpenError {
		err := outcome.Err
		if err == nil {
			err = &models.RedirectOpenError{Err: errors.New("payment page could not be opened")}
		}
		return failed(err)
	}

	report, err := r.pollStatus(ctx, sid)
	if err == nil && report.Outcome() == models.OutcomeConfirmedPaid {
		return r.finalize(ctx, attempt, report, models.VerificationProvider)
	}
	if err != nil {
		telemetry.Logger.Warn("Payment status unknown, asking customer",
			zap.String("session_id", sid),
			zap.Error(err),
		)
	}

	if prompter == nil {
		return awaiting()
	}
	answer, err := prompter.Confirm(ctx, sid)
	if err != nil {
		if !errors.Is(err, models.ErrNoAnswer) {
			telemetry.Logger.Warn("Confirmation prompt failed", zap.String("session_id", sid), zap.Error(err))
		}
		return awaiting()
	}

	switch answer {
	case ConfirmPaid:
	case ConfirmCancel:
		return Result{State: ReconcileDeclined, Message: "Payment was cancelled. Your cart has been kept."}
	default:
		return awaiting()
	}

	report, err = r.pollStatus(ctx, sid)
	switch {
	case err == nil && report.Outcome() == models.OutcomeConfirmedPaid:
		return r.finalize(ctx, attempt, report, models.VerificationProvider)
	case err != nil && r.cfg.AllowAssertedFinalize:
		telemetry.Logger.Warn("Finalizing on customer assertion, provider unreachable",
			zap.String("session_id", sid),
			zap.String("user_id", attempt.UserID),
			zap.Error(err),
		)
		return r.finalize(ctx, attempt, nil, models.VerificationAsserted)
	default:
		return Result{
			State:   ReconcileUnconfirmed,
			Message: "We could not confirm your payment yet. Your cart has been kept; check again in a moment.",
		}
	}
}

// pollStatus asks the provider up to StatusChecks times, stopping early on a
// paid status. A single successful answer outranks any failed query.
func (r *Reconciler) pollStatus(ctx context.Context, sessionID string) (*models.PaymentStatusReport, error) {
	var (
		last    *models.PaymentStatusReport
		lastErr error
	)
	for i := 0; i < r.cfg.StatusChecks; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return r.pollResult(last, ctx.Err())
			case <-time.After(r.cfg.StatusCheckInterval):
			}
		}

		report, err := r.gateway.GetStatus(ctx, sessionID)
		if err != nil {
			lastErr = err
			var unavailable *models.GatewayUnavailableError
			if errors.As(err, &unavailable) {
				break
			}
			continue
		}
		last = report
		if report.Outcome() == models.OutcomeConfirmedPaid {
			break
		}
	}
	return r.pollResult(last, lastErr)
}

func (r *Reconciler) pollResult(last *models.PaymentStatusReport, err error) (*models.PaymentStatusReport, error) {
	if last != nil {
		return last, nil
	}
	if err == nil {
		err = errors.New("no status check was made")
	}
	return nil, err
}

func (r *Reconciler) finalize(ctx context.Context, attempt *models.CheckoutAttempt, report *models.PaymentStatusReport, verification models.Verification) Result {
	metadata := map[string]string{}
	if report != nil && report.AmountTotal != 0 && report.AmountTotal != attempt.TotalMinor {
		telemetry.Logger.Warn("Provider amount differs from checkout total",
			zap.String("session_id", attempt.SessionID),
			zap.Int64("provider_amount", report.AmountTotal),
			zap.Int64("checkout_amount", attempt.TotalMinor),
		)
		metadata["amountMismatch"] = fmt.Sprintf("provider=%d checkout=%d", report.AmountTotal, attempt.TotalMinor)
	}

	order, err := r.finalizer.Finalize(ctx, FinalizeRequest{
		SessionID:     attempt.SessionID,
		UserID:        attempt.UserID,
		Cart:          attempt.Cart,
		Address:       attempt.Address,
		PaymentMethod: attempt.PaymentMethod,
		TotalMinor:    attempt.TotalMinor,
		Currency:      attempt.Currency,
		Verification:  verification,
		Metadata:      metadata,
	})
	if err != nil {
		res := failed(err)
		res.Verification = verification
		return res
	}
	return Result{
		State:        ReconcileFinalized,
		Order:        order,
		Verification: verification,
		Message:      "Your order has been placed.",
	}
}

func failed(err error) Result {
	return Result{State: ReconcileFailed, Err: err, Message: models.UserMessage(err)}
}

func awaiting() Result {
	return Result{State: ReconcileAwaitingConfirmation, Message: ConfirmationQuestion}
}
