package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CreditCard"
	PaymentMethodDebitCard  PaymentMethod = "DebitCard"
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodCash       PaymentMethod = "Cash"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodDebitCard,
	PaymentMethodUPI,
	PaymentMethodCash,
}

// ParsePaymentMethod matches s against the known methods ignoring case and
// surrounding whitespace.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	for _, m := range paymentMethods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", ErrUnknownPaymentMethod
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID            int64           `json:"payment_id"`
	OrderID       int64           `json:"order_id"`
	Method        PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
	Status        PaymentStatus   `json:"payment_status"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"payment_date"`
	CardLastFour  string          `json:"card_last_four_digits,omitempty"`
	CardType      string          `json:"card_type,omitempty"`
}
