package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
)

type declineAll struct{}

func (declineAll) Process(_ context.Context, req Request) (Result, error) {
	return Result{Payment: domain.Payment{Method: req.Method, Status: domain.PaymentStatusFailed, Amount: req.Amount}, Reason: "card blocked"}, nil
}

func TestHTTPProcessorRoundTrip(t *testing.T) {
	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ts := httptest.NewServer(Handler(NewSimulator(func() time.Time { return at })))
	defer ts.Close()

	res, err := NewHTTPProcessor(ts.URL, time.Second).Process(context.Background(), Request{
		Method:     domain.PaymentMethodCreditCard,
		Amount:     decimal.RequireFromString("131.99"),
		CardNumber: "5500 0000 0000 0004",
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.True(t, res.Payment.Amount.Equal(decimal.RequireFromString("131.99")))
	assert.Equal(t, CardMastercard, res.Payment.CardType)
	assert.Equal(t, "0004", res.Payment.CardLastFour)
	assert.True(t, strings.HasPrefix(res.Payment.TransactionID, "TXN-20250101090000-"))
	assert.True(t, res.Payment.PaidAt.Equal(at))
}

func TestHTTPProcessorDecline(t *testing.T) {
	ts := httptest.NewServer(Handler(declineAll{}))
	defer ts.Close()

	res, err := NewHTTPProcessor(ts.URL, time.Second).Process(context.Background(), Request{Method: domain.PaymentMethodUPI, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	assert.False(t, res.Succeeded())
	assert.Equal(t, "card blocked", res.Reason)
}

func TestHandlerRejectsUnknownMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"payment_method":"Barter","amount":"1"}`))

	Handler(NewSimulator(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPProcessorServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewHTTPProcessor(ts.URL, time.Second).Process(context.Background(), Request{Method: domain.PaymentMethodCash})
	assert.Error(t, err)
}
