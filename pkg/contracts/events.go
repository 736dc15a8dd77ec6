package contracts

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID     string         `json:"event_id"`
	OrderID     int64          `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	UserID      int64          `json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
}

const (
	EventOrderCreated        = "order.created"
	EventPaymentCaptured     = "payment.captured"
	EventNotificationEmitted = "notification.emitted"
)

func NewEvent(typ string, orderID int64, orderNumber string, userID int64, payload map[string]any) Event {
	return Event{
		EventID:     uuid.NewString(),
		OrderID:     orderID,
		OrderNumber: orderNumber,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
		Type:        typ,
		Payload:     payload,
	}
}

// Key partitions events of one order onto the same Kafka partition.
func (e Event) Key() string {
	return e.OrderNumber
}
