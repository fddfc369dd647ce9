package service

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// DeliveryPolicy decides the delivery charge from the cart subtotal so the
// client never supplies its own fee.
type DeliveryPolicy struct {
	FreeAbove decimal.Decimal
	Charge    decimal.Decimal
}

// ChargeFor returns zero for an empty cart or one above the free-delivery threshold.
func (p DeliveryPolicy) ChargeFor(cart models.CartSnapshot) decimal.Decimal {
	subtotal := cart.SubtotalMinor()
	if subtotal == 0 || models.MinorToDecimal(subtotal).GreaterThan(p.FreeAbove) {
		return decimal.Zero
	}
	return p.Charge
}
