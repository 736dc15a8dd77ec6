package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethod(t *testing.T) {
	for in, want := range map[string]PaymentMethod{
		"CreditCard":  PaymentMethodCreditCard,
		"creditcard":  PaymentMethodCreditCard,
		" DEBITCARD ": PaymentMethodDebitCard,
		"upi":         PaymentMethodUPI,
		"Cash":        PaymentMethodCash,
	} {
		got, err := ParsePaymentMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "Credit Card", "paypal", "1"} {
		_, err := ParsePaymentMethod(bad)
		assert.ErrorIs(t, err, ErrUnknownPaymentMethod, bad)
	}
}

func TestEffectivePrice(t *testing.T) {
	d := decimal.RequireFromString("90")
	p := Product{Price: decimal.RequireFromString("100")}
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("100")))

	p.DiscountPrice = &d
	assert.True(t, p.EffectivePrice().Equal(d))
}

func TestInsufficientStockError(t *testing.T) {
	var err error = fmt.Errorf("checkout: %w", &InsufficientStockError{ProductID: 3, ProductName: "Toor Dal"})

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var target *InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, int64(3), target.ProductID)
	assert.Equal(t, "insufficient stock for product 7", (&InsufficientStockError{ProductID: 7}).Error())
}

func TestCartLookups(t *testing.T) {
	var nilCart *Cart
	assert.True(t, nilCart.Empty())

	c := &Cart{Items: []CartItem{{ID: 1, ProductID: 10}, {ID: 2, ProductID: 20}}}
	assert.False(t, c.Empty())
	assert.Equal(t, int64(20), c.Item(2).ProductID)
	assert.Nil(t, c.Item(3))
	assert.Equal(t, int64(1), c.ItemForProduct(10).ID)
	assert.Nil(t, c.ItemForProduct(30))
}
