package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/redirect"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/service"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

// CheckoutService is the part of service.Orchestrator the HTTP layer drives.
type CheckoutService interface {
	CreateSession(ctx context.Context, in service.CheckoutInput) (*service.StartedCheckout, error)
	CreateBookingSession(ctx context.Context, booking models.BookingPayment) (*service.StartedCheckout, error)
	ReconcileAndFinalize(ctx context.Context, userID, sessionID string, outcome redirect.Outcome, prompter service.Prompter) (service.Result, error)
	GetStatus(ctx context.Context, userID, sessionID string) (*service.SessionStatus, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
}

func NewCheckoutHandler(checkout CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type createSessionRequest struct {
	Items         []models.CartItem `json:"items"`
	Address       models.Address    `json:"address"`
	PaymentMethod string            `json:"payment_method"`
	CustomerEmail string            `json:"customer_email"`
}

type returnRequest struct {
	Outcome      string `json:"outcome"`
	Confirmation string `json:"confirmation"`
}

func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Error("Error decoding checkout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !addressComplete(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please add a delivery address"})
		return
	}

	started, err := h.checkout.CreateSession(c.Request.Context(), service.CheckoutInput{
		Identity:      identityFrom(c),
		Items:         req.Items,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, started)
}

// Return reconciles a session after the client's browser context closed.
func (h *CheckoutHandler) Return(c *gin.Context) {
	sessionID := c.Param("id")

	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	answer, err := service.ParseConfirmation(req.Confirmation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := redirect.NewCoordinator().Resolve(req.Outcome)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.checkout.ReconcileAndFinalize(c.Request.Context(), identityFrom(c).UserID, sessionID, outcome,
		service.StaticPrompter{Answer: answer})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"session_id": sessionID,
		"state":      res.State,
		"message":    res.Message,
	}
	if res.Order != nil {
		body["order"] = res.Order
	}
	if res.Verification != "" {
		body["verification"] = res.Verification
	}
	if res.State == service.ReconcileAwaitingConfirmation {
		body["question"] = service.ConfirmationQuestion
		body["options"] = []service.Confirmation{service.ConfirmPaid, service.ConfirmCancel}
	}

	switch res.State {
	case service.ReconcileFinalized, service.ReconcileDeclined:
		c.JSON(http.StatusOK, body)
	case service.ReconcileAwaitingConfirmation, service.ReconcileUnconfirmed:
		c.JSON(http.StatusAccepted, body)
	default:
		body["retryable"] = models.Retryable(res.Err)
		c.JSON(statusFor(res.Err), body)
	}
}

func (h *CheckoutHandler) Status(c *gin.Context) {
	st, err := h.checkout.GetStatus(c.Request.Context(), identityFrom(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *CheckoutHandler) CreateBookingPayment(c *gin.Context) {
	var booking models.BookingPayment
	if err := c.ShouldBindJSON(&booking); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(booking.CustomerEmail) == "" {
		booking.CustomerEmail = identityFrom(c).Email
	}

	started, err := h.checkout.CreateBookingSession(c.Request.Context(), booking)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, started)
}

const landingPage = `<html>
  <head><title>%[1]s</title></head>
  <body style="display:flex;align-items:center;justify-content:center;height:100vh;font-family:system-ui;background:#FAFAF8;">
    <div style="text-align:center;padding:40px;">
      <h1 style="color:#1A1A2E;margin-bottom:8px;">%[1]s</h1>
      <p style="color:#6B7280;">You can close this window and return to the app.</p>
    </div>
  </body>
</html>`

// PaymentSuccessPage is where the provider sends the browser after payment.
// It only tells the customer to go back; the app reconciles the session.
func (h *CheckoutHandler) PaymentSuccessPage(c *gin.Context) {
	telemetry.Logger.Info("Payment success redirect", zap.String("session_id", c.Query("session_id")))
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, landingPage, "Payment Successful!")
}

func (h *CheckoutHandler) PaymentCancelPage(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, landingPage, "Payment Cancelled")
}

func addressComplete(a models.Address) bool {
	for _, f := range []string{a.Name, a.AddressLine1, a.City, a.Pincode} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}
