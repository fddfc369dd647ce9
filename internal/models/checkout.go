package models

import "time"

// CartItem is one line of the customer's cart at checkout time. Prices stay
// decimal only until the session builder converts them to minor units.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

// CartSnapshotItem is a cart line frozen in minor units.
type CartSnapshotItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int64  `json:"quantity"`
	Image          string `json:"image,omitempty"`
}

// CartSnapshot is immutable once a session has been created from it.
type CartSnapshot struct {
	Items      []CartSnapshotItem `json:"items"`
	CapturedAt time.Time          `json:"captured_at"`
}

// SubtotalMinor sums the snapshot lines.
func (s CartSnapshot) SubtotalMinor() int64 {
	var total int64
	for _, it := range s.Items {
		total += it.UnitPriceMinor * it.Quantity
	}
	return total
}

// LineItem is a provider-agnostic checkout line.
type LineItem struct {
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	Images              []string `json:"images,omitempty"`
	UnitPriceMinorUnits int64    `json:"unit_price_minor_units"`
	Quantity            int64    `json:"quantity"`
}

// CheckoutSessionRequest is the input to PaymentGateway.CreateSession.
type CheckoutSessionRequest struct {
	LineItems                []LineItem        `json:"line_items"`
	DeliveryChargeMinorUnits int64             `json:"delivery_charge_minor_units"`
	CustomerEmail            string            `json:"customer_email,omitempty"`
	Metadata                 map[string]string `json:"metadata"`
}

// TotalMinorUnits is the amount the provider is expected to charge. The
// delivery line, when present, is already part of LineItems.
func (r CheckoutSessionRequest) TotalMinorUnits() int64 {
	var total int64
	for _, li := range r.LineItems {
		total += li.UnitPriceMinorUnits * li.Quantity
	}
	return total
}

// CheckoutAttempt is what the service remembers about one payment attempt
// between session creation and reconciliation.
type CheckoutAttempt struct {
	SessionID     string       `json:"session_id"`
	UserID        string       `json:"user_id"`
	CustomerEmail string       `json:"customer_email,omitempty"`
	Cart          CartSnapshot `json:"cart"`
	Address       Address      `json:"address"`
	PaymentMethod string       `json:"payment_method"`
	DeliveryMinor int64        `json:"delivery_minor"`
	TotalMinor    int64        `json:"total_minor"`
	Currency      string       `json:"currency"`
	CreatedAt     time.Time    `json:"created_at"`
}

// BookingPayment describes a pandit service booking paid through hosted checkout.
type BookingPayment struct {
	ServiceTitle  string  `json:"service_title"`
	Price         float64 `json:"price"`
	PanditName    string  `json:"pandit_name"`
	Date          string  `json:"date"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	BookingID     string  `json:"booking_id,omitempty"`
}
