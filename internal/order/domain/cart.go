package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64            `json:"product_id"`
	CategoryID    int64            `json:"category_id"`
	Name          string           `json:"product_name"`
	Unit          string           `json:"unit"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	Active        bool             `json:"is_active"`
}

// EffectivePrice returns the discount price when one is set, the list price otherwise.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

type Cart struct {
	ID     int64      `json:"cart_id"`
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
}

func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// Item returns the line with the given id, or nil.
func (c *Cart) Item(id int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// ItemForProduct returns the line referencing productID, or nil.
func (c *Cart) ItemForProduct(productID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

type CartItem struct {
	ID         int64           `json:"cart_item_id"`
	CartID     int64           `json:"cart_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	PriceAtAdd decimal.Decimal `json:"price_at_add"`
	AddedAt    time.Time       `json:"added_at"`
}
