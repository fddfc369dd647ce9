package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("ALLOW_ASSERTED_FINALIZE", "")
	t.Setenv("STATUS_CHECKS", "")

	cfg := Load()

	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "usd", cfg.Currency)
	assert.True(t, cfg.AllowAssertedFinalize)
	assert.Equal(t, 2, cfg.StatusChecks)
	assert.Equal(t, 24*time.Hour, cfg.AttemptTTL)
	assert.True(t, cfg.DeliveryCharge.Equal(decimal.NewFromInt(99)))
	assert.Empty(t, cfg.StripeSecretKey)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("PUBLIC_BASE_URL", "https://api.pujarisewa.test/")
	t.Setenv("CHECKOUT_CURRENCY", "INR")
	t.Setenv("ALLOW_ASSERTED_FINALIZE", "false")
	t.Setenv("STATUS_CHECK_INTERVAL", "250ms")
	t.Setenv("FREE_DELIVERY_ABOVE", "499.50")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://api.pujarisewa.test", cfg.PublicBaseURL)
	assert.Equal(t, "inr", cfg.Currency)
	assert.False(t, cfg.AllowAssertedFinalize)
	assert.Equal(t, 250*time.Millisecond, cfg.StatusCheckInterval)
	assert.Equal(t, "499.5", cfg.FreeDeliveryAbove.String())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STATUS_CHECKS", "-3")
	t.Setenv("ATTEMPT_TTL", "soon")
	t.Setenv("DELIVERY_CHARGE", "-1")

	cfg := Load()

	assert.Equal(t, 2, cfg.StatusChecks)
	assert.Equal(t, 24*time.Hour, cfg.AttemptTTL)
	assert.True(t, cfg.DeliveryCharge.Equal(decimal.NewFromInt(99)))
}
