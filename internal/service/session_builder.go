package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

const deliveryLineName = "Delivery Charge"

// BuildSession converts cart lines into a provider-agnostic checkout request.
// Prices are converted to integer minor units here and nowhere else.
func BuildSession(items []models.CartItem, deliveryCharge decimal.Decimal, customerEmail string, metadata map[string]string) (*models.CheckoutSessionRequest, error) {
	snapshot, err := SnapshotCart(items, time.Time{})
	if err != nil {
		return nil, err
	}
	if deliveryCharge.IsNegative() {
		return nil, &models.InvalidCartError{Reason: "delivery charge is negative"}
	}
	delivery := toMinorUnits(deliveryCharge)

	lineItems := make([]models.LineItem, 0, len(snapshot.Items)+1)
	for _, it := range snapshot.Items {
		li := models.LineItem{
			Name:                it.Name,
			UnitPriceMinorUnits: it.UnitPriceMinor,
			Quantity:            it.Quantity,
		}
		if it.Image != "" {
			li.Images = []string{it.Image}
		}
		lineItems = append(lineItems, li)
	}

	if snapshot.SubtotalMinor() == 0 && delivery == 0 {
		return nil, &models.InvalidCartError{Reason: "nothing to charge"}
	}
	if delivery > 0 {
		lineItems = append(lineItems, models.LineItem{
			Name:                deliveryLineName,
			UnitPriceMinorUnits: delivery,
			Quantity:            1,
		})
	}

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	return &models.CheckoutSessionRequest{
		LineItems:                lineItems,
		DeliveryChargeMinorUnits: delivery,
		CustomerEmail:            strings.TrimSpace(customerEmail),
		Metadata:                 md,
	}, nil
}

// BuildBookingSession prices a single pandit service booking.
func BuildBookingSession(b models.BookingPayment) (*models.CheckoutSessionRequest, error) {
	if strings.TrimSpace(b.ServiceTitle) == "" {
		return nil, &models.InvalidCartError{Reason: "booking has no service title"}
	}
	price, err := priceToMinorUnits(b.Price)
	if err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, &models.InvalidCartError{Reason: "nothing to charge"}
	}

	return &models.CheckoutSessionRequest{
		LineItems: []models.LineItem{{
			Name:                b.ServiceTitle,
			Description:         fmt.Sprintf("Pandit: %s | Date: %s", b.PanditName, b.Date),
			UnitPriceMinorUnits: price,
			Quantity:            1,
		}},
		CustomerEmail: strings.TrimSpace(b.CustomerEmail),
		Metadata: map[string]string{
			"type":         "booking",
			"bookingId":    b.BookingID,
			"serviceTitle": b.ServiceTitle,
		},
	}, nil
}

// SnapshotCart freezes the cart in minor units.
func SnapshotCart(items []models.CartItem, at time.Time) (models.CartSnapshot, error) {
	snapshot := models.CartSnapshot{
		Items:      make([]models.CartSnapshotItem, 0, len(items)),
		CapturedAt: at,
	}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return models.CartSnapshot{}, &models.InvalidCartError{Reason: fmt.Sprintf("item %d has no name", i)}
		}
		if it.Quantity < 1 {
			return models.CartSnapshot{}, &models.InvalidCartError{Reason: fmt.Sprintf("item %q has quantity %d", it.Name, it.Quantity)}
		}
		unit, err := priceToMinorUnits(it.Price)
		if err != nil {
			return models.CartSnapshot{}, err
		}
		snapshot.Items = append(snapshot.Items, models.CartSnapshotItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			UnitPriceMinor: unit,
			Quantity:       it.Quantity,
			Image:          it.Image,
		})
	}
	return snapshot, nil
}

func priceToMinorUnits(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, &models.InvalidCartError{Reason: "price is not a number"}
	}
	if price < 0 {
		return 0, &models.InvalidCartError{Reason: "price is negative"}
	}
	return toMinorUnits(decimal.NewFromFloat(price)), nil
}

// toMinorUnits rounds half-up on the cent boundary. NewFromFloat keeps the
// shortest decimal form of the float, so 19.99 stays 19.99 rather than 19.98999...
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
