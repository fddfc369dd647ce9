package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:    {OrderStatusProcessing: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:    {OrderStatusDelivered: true},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// CanTransition reports whether fulfillment may move an order from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// ParseOrderStatus returns false for anything outside the order status vocabulary.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := validNext[st]
	return st, ok
}

type Address struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

// Order is created exactly once per paid checkout session.
type Order struct {
	ID                string             `json:"id"`
	SessionID         string             `json:"session_id"`
	UserID            string             `json:"user_id"`
	Items             []CartSnapshotItem `json:"items"`
	TotalMinor        int64              `json:"total_minor"`
	Total             decimal.Decimal    `json:"total"`
	Currency          string             `json:"currency"`
	Address           Address            `json:"address"`
	PaymentMethod     string             `json:"payment_method"`
	Status            OrderStatus        `json:"status"`
	EstimatedDelivery string             `json:"estimated_delivery,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// MinorToDecimal converts minor currency units to a two-place decimal amount.
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
