package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
)

func TestCardType(t *testing.T) {
	cases := []struct {
		number string
		want   string
	}{
		{"4111111111111111", CardVisa},
		{"4012 8888 8888 1881", CardVisa},
		{"5105105105105100", CardMastercard},
		{"5500000000000004", CardMastercard},
		{"5600000000000000", CardUnknown},
		{"340000000000009", CardAmex},
		{"378282246310005", CardAmex},
		{"6011000000000004", CardDiscover},
		{"6500000000000002", CardDiscover},
		{"3530111333300000", CardUnknown},
		{"4", CardUnknown},
		{"", CardUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.number, func(t *testing.T) {
			assert.Equal(t, tc.want, CardType(tc.number))
		})
	}
}

func TestLastFour(t *testing.T) {
	assert.Equal(t, "1111", LastFour("4111111111111111"))
	assert.Equal(t, "1881", LastFour("4012-8888-8888-1881"))
	assert.Equal(t, "****", LastFour("123"))
	assert.Equal(t, "****", LastFour(""))
}

func TestTransactionIDBounded(t *testing.T) {
	at := time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC)

	a := TransactionID(at)
	b := TransactionID(at)

	assert.LessOrEqual(t, len(a), 50)
	assert.True(t, strings.HasPrefix(a, "TXN-20250101083000-"), a)
	assert.NotEqual(t, a, b)
}

func TestSimulatorAlwaysCompletes(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sim := NewSimulator(func() time.Time { return at })

	res, err := sim.Process(context.Background(), Request{
		Method:     domain.PaymentMethodCreditCard,
		Amount:     decimal.RequireFromString("189.00"),
		CardNumber: "4111111111111111",
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, CardVisa, res.Payment.CardType)
	assert.Equal(t, "1111", res.Payment.CardLastFour)
	assert.Equal(t, at, res.Payment.PaidAt)
	assert.True(t, res.Payment.Amount.Equal(decimal.RequireFromString("189")))
}

func TestSimulatorCashWithoutCard(t *testing.T) {
	res, err := NewSimulator(nil).Process(context.Background(), Request{Method: domain.PaymentMethodCash})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, CardUnknown, res.Payment.CardType)
	assert.Equal(t, "****", res.Payment.CardLastFour)
}
