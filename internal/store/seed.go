package store

import (
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discount(s string) *decimal.Decimal {
	d := price(s)
	return &d
}

// DemoCatalog is a small grocery catalog for local runs and the bench runner.
func DemoCatalog() []domain.Product {
	return []domain.Product{
		{ID: 1, CategoryID: 1, Name: "Whole Wheat Atta 5kg", Unit: "kg", Price: price("299"), DiscountPrice: discount("279"), StockQuantity: 150, Active: true},
		{ID: 2, CategoryID: 1, Name: "Basmati Rice 1kg", Unit: "kg", Price: price("599"), DiscountPrice: discount("549"), StockQuantity: 120, Active: true},
		{ID: 3, CategoryID: 2, Name: "Toor Dal 1kg", Unit: "kg", Price: price("189"), StockQuantity: 200, Active: true},
		{ID: 4, CategoryID: 2, Name: "Moong Dal 1kg", Unit: "kg", Price: price("159"), DiscountPrice: discount("149"), StockQuantity: 180, Active: true},
		{ID: 5, CategoryID: 3, Name: "Full Cream Milk 1L", Unit: "ltr", Price: price("68"), StockQuantity: 60, Active: true},
		{ID: 6, CategoryID: 3, Name: "Paneer 200g", Unit: "pcs", Price: price("90"), StockQuantity: 5, Active: true},
	}
}
