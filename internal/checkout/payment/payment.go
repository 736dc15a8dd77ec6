// Package payment fakes card processing for checkout. The simulator runs
// in-process or behind cmd/payment-service.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
)

const (
	CardVisa       = "Visa"
	CardMastercard = "Mastercard"
	CardAmex       = "American Express"
	CardDiscover   = "Discover"
	CardUnknown    = "Unknown"

	maxTransactionIDLen = 50
	maskedLastFour      = "****"
)

type Request struct {
	Method         domain.PaymentMethod
	Amount         decimal.Decimal
	CardNumber     string
	CardExpiry     string
	CardCVV        string
	CardHolderName string
}

// Result carries the outcome of a payment attempt. Only a COMPLETED status
// lets a checkout commit.
type Result struct {
	Payment domain.Payment
	Reason  string
}

func (r Result) Succeeded() bool {
	return r.Payment.Status == domain.PaymentStatusCompleted
}

type Processor interface {
	Process(ctx context.Context, req Request) (Result, error)
}

// Simulator approves every payment.
type Simulator struct {
	now func() time.Time
}

func NewSimulator(now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{now: now}
}

func (s *Simulator) Process(_ context.Context, req Request) (Result, error) {
	now := s.now().UTC()
	card := normalizeCard(req.CardNumber)
	return Result{Payment: domain.Payment{
		Method:        req.Method,
		TransactionID: TransactionID(now),
		Status:        domain.PaymentStatusCompleted,
		Amount:        req.Amount,
		PaidAt:        now,
		CardLastFour:  LastFour(card),
		CardType:      CardType(card),
	}}, nil
}

// CardType classifies a card number by its network prefix.
func CardType(number string) string {
	number = normalizeCard(number)
	if len(number) < 2 {
		return CardUnknown
	}
	if number[0] == '4' {
		return CardVisa
	}
	switch number[:2] {
	case "51", "52", "53", "54", "55":
		return CardMastercard
	case "34", "37":
		return CardAmex
	case "60", "65":
		return CardDiscover
	}
	return CardUnknown
}

func LastFour(number string) string {
	number = normalizeCard(number)
	if len(number) < 4 {
		return maskedLastFour
	}
	return number[len(number)-4:]
}

// TransactionID combines a UTC timestamp with a random component, bounded to
// the length of the transaction id column.
func TransactionID(at time.Time) string {
	id := "TXN-" + at.UTC().Format("20060102150405") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > maxTransactionIDLen {
		id = id[:maxTransactionIDLen]
	}
	return id
}

func normalizeCard(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(number))
}
