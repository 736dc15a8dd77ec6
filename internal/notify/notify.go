// Package notify turns order events into customer notifications. Each event
// is handled at most once per consumer through the inbox table.
package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
)

type Notification struct {
	EventID     string
	OrderNumber string
	UserID      int64
	Kind        string
	Message     string
}

// Compose builds the notification for evt. ok is false for event types that
// do not notify anyone.
func Compose(evt contracts.Event) (n Notification, ok bool) {
	n = Notification{EventID: evt.EventID, OrderNumber: evt.OrderNumber, UserID: evt.UserID, Kind: evt.Type}
	switch evt.Type {
	case contracts.EventOrderCreated:
		amount, _ := evt.Payload["final_amount"].(string)
		if amount == "" {
			n.Message = fmt.Sprintf("Your order %s has been placed.", evt.OrderNumber)
		} else {
			n.Message = fmt.Sprintf("Your order %s has been placed. Amount paid: %s.", evt.OrderNumber, amount)
		}
		return n, true
	case contracts.EventPaymentCaptured:
		amount, _ := evt.Payload["amount"].(string)
		method, _ := evt.Payload["payment_method"].(string)
		if amount == "" || method == "" {
			n.Message = fmt.Sprintf("Payment for order %s was received.", evt.OrderNumber)
		} else {
			n.Message = fmt.Sprintf("Payment of %s by %s for order %s was received.", amount, method, evt.OrderNumber)
		}
		return n, true
	default:
		return Notification{}, false
	}
}

type Store struct {
	pool     *pgxpool.Pool
	consumer string
}

func NewStore(pool *pgxpool.Pool, consumer string) *Store {
	return &Store{pool: pool, consumer: consumer}
}

// Handle records evt in the inbox and stores its notification in the same
// transaction. duplicate is true when the event was seen before.
func (s *Store) Handle(ctx context.Context, evt contracts.Event) (duplicate bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `INSERT INTO inbox(event_id, consumer) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, s.consumer)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return true, nil
	}

	if n, ok := Compose(evt); ok {
		_, err = tx.Exec(ctx, `INSERT INTO notifications(event_id, order_number, user_id, kind, message)
			VALUES ($1, $2, $3, $4, $5) ON CONFLICT (event_id) DO NOTHING`,
			n.EventID, n.OrderNumber, n.UserID, n.Kind, n.Message)
		if err != nil {
			return false, err
		}
	}
	return false, tx.Commit(ctx)
}
