// Package pricing computes order totals from a cart snapshot. It does no I/O.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is used when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.05")

type Line struct {
	ListPrice     decimal.Decimal
	DiscountPrice *decimal.Decimal
	Quantity      int
}

func (l Line) EffectivePrice() decimal.Decimal {
	if l.DiscountPrice != nil {
		return *l.DiscountPrice
	}
	return l.ListPrice
}

// Total is the effective price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	FinalAmount    decimal.Decimal
}

type Engine struct {
	taxRate decimal.Decimal
}

func NewEngine(taxRate decimal.Decimal) *Engine {
	return &Engine{taxRate: taxRate}
}

func (e *Engine) Compute(lines []Line) Totals {
	total := decimal.Zero
	discount := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
		if l.DiscountPrice != nil {
			qty := decimal.NewFromInt(int64(l.Quantity))
			discount = discount.Add(l.ListPrice.Sub(*l.DiscountPrice).Mul(qty))
		}
	}
	// Round rounds half away from zero, which is half-up for non-negative amounts.
	tax := total.Mul(e.taxRate).Round(2)
	return Totals{
		TotalAmount:    total,
		DiscountAmount: discount,
		TaxAmount:      tax,
		FinalAmount:    total.Add(tax),
	}
}
