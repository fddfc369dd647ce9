package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/handlers"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

func NewRouter(checkout handlers.CheckoutService, orders handlers.OrderService, resolver interfaces.IdentityResolver) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "checkout-orchestrator"})
	})

	checkoutHandler := handlers.NewCheckoutHandler(checkout)
	orderHandler := handlers.NewOrderHandler(orders)

	// Provider redirect landing pages
	r.GET("/payment-success", checkoutHandler.PaymentSuccessPage)
	r.GET("/payment-cancel", checkoutHandler.PaymentCancelPage)

	authed := r.Group("/", handlers.RequireIdentity(resolver))

	// Checkout routes
	authed.POST("/checkout/sessions", checkoutHandler.CreateSession)
	authed.POST("/checkout/sessions/:id/return", checkoutHandler.Return)
	authed.GET("/checkout/sessions/:id/status", checkoutHandler.Status)
	authed.POST("/bookings/payments", checkoutHandler.CreateBookingPayment)

	// Order routes
	authed.GET("/orders", orderHandler.ListOrders)
	authed.GET("/orders/:id", orderHandler.GetOrder)
	authed.PATCH("/orders/:id/status", orderHandler.UpdateStatus)

	return r
}
