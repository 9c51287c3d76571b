package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPlaced     OrderStatus = "placed"
	OrderDispatched OrderStatus = "dispatched"
	OrderDelivered  OrderStatus = "delivered"
	OrderReturned   OrderStatus = "returned"
	OrderRTO        OrderStatus = "rto"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPlaced, OrderDispatched, OrderDelivered, OrderReturned, OrderRTO, OrderCancelled:
		return true
	}
	return false
}

// IsReversal reports whether the sale was reversed after dispatch.
func (s OrderStatus) IsReversal() bool {
	return s == OrderReturned || s == OrderRTO
}

type Order struct {
	ID           string          `json:"id"`
	PlatformID   string          `json:"platform_id"`
	CategoryID   string          `json:"category_id"`
	SKU          string          `json:"sku"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	OrderDate    time.Time       `json:"order_date"`
	Status       OrderStatus     `json:"status"`
}

// Settlement is the money the marketplace actually paid out for an order.
type Settlement struct {
	OrderID    string                     `json:"order_id"`
	Amount     decimal.Decimal            `json:"amount"`
	PayoutDate time.Time                  `json:"payout_date"`
	UTR        string                     `json:"utr,omitempty"`
	Fees       map[string]decimal.Decimal `json:"fees,omitempty"`
}
