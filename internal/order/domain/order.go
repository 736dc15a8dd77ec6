package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

type OrderItem struct {
	ID            int64            `json:"order_item_id"`
	OrderID       int64            `json:"order_id"`
	ProductID     int64            `json:"product_id"`
	ProductName   string           `json:"product_name"`
	Quantity      int              `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
}

// EffectivePrice is the price the shopper actually paid per unit.
func (it OrderItem) EffectivePrice() decimal.Decimal {
	if it.DiscountPrice != nil {
		return *it.DiscountPrice
	}
	return it.UnitPrice
}

type Order struct {
	ID             int64           `json:"order_id"`
	UserID         int64           `json:"user_id"`
	OrderNumber    string          `json:"order_number"`
	CreatedAt      time.Time       `json:"order_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Status         OrderStatus     `json:"status"`

	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingZipCode string `json:"shipping_zip_code"`

	Items   []OrderItem `json:"items"`
	Payment *Payment    `json:"payment,omitempty"`
}
