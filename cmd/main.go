package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/api"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/config"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/events"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/identity"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/repository"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/service"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry(telemetry.Options{
		ServiceName:  "checkout-orchestrator",
		Version:      version,
		OTLPEndpoint: cfg.JaegerEndpoint,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Checkout Orchestrator")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repository
	orderRepo := repository.NewOrderRepository(db)
	if err := orderRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := events.NewKafkaWriter(cfg.KafkaBrokers)
	defer kafkaWriter.Close()
	publisher := events.NewKafkaPublisher(kafkaWriter)

	// Payment provider
	if cfg.StripeSecretKey == "" {
		telemetry.Logger.Warn("STRIPE_SECRET_KEY is not set; checkout sessions will be refused")
	}
	stripeGateway := gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency,
		gateway.NewBackends(cfg.StripeAPIBase, telemetry.Logger))

	// Checkout pipeline
	carts := repository.NewCartStore(redisClient)
	finalizer := service.NewFinalizer(orderRepo, carts, repository.NewRedisLocker(redisClient), publisher, cfg.FinalizeLockTTL)
	reconciler := service.NewReconciler(stripeGateway, finalizer, service.ReconcilerConfig{
		AllowAssertedFinalize: cfg.AllowAssertedFinalize,
		StatusChecks:          cfg.StatusChecks,
		StatusCheckInterval:   cfg.StatusCheckInterval,
	})
	orchestrator := service.NewOrchestrator(
		stripeGateway,
		repository.NewAttemptStore(redisClient, cfg.AttemptTTL),
		carts,
		orderRepo,
		reconciler,
		service.DeliveryPolicy{FreeAbove: cfg.FreeDeliveryAbove, Charge: cfg.DeliveryCharge},
		cfg.PublicBaseURL,
		cfg.Currency,
	)
	orderService := service.NewOrderService(orderRepo, publisher)

	// Start consuming fulfillment updates
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumer := events.NewStatusConsumer(events.NewFulfillmentReader(cfg.KafkaBrokers, "checkout-orchestrator"), orderService)
	go func() {
		if err := consumer.Run(consumerCtx); err != nil {
			telemetry.Logger.Error("Fulfillment consumer stopped", zap.Error(err))
		}
	}()

	resolver := identity.NewNATSResolver(nc, 5*time.Second)
	r := api.NewRouter(orchestrator, orderService, resolver)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Checkout Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopConsumer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
