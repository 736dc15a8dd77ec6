package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service     string `json:"service"`
	RequestID   string `json:"request_id,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	OrderID     int64  `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	Step        string `json:"step,omitempty"`
	Status      string `json:"status,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

func Log(fields Fields) {
	payload := map[string]any{
		"service":   fields.Service,
		"step":      fields.Step,
		"status":    fields.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if fields.RequestID != "" {
		payload["request_id"] = fields.RequestID
	}
	if fields.UserID != 0 {
		payload["user_id"] = fields.UserID
	}
	if fields.OrderID != 0 {
		payload["order_id"] = fields.OrderID
	}
	if fields.OrderNumber != "" {
		payload["order_number"] = fields.OrderNumber
	}
	if fields.EventID != "" {
		payload["event_id"] = fields.EventID
	}
	if fields.DurationMS != 0 {
		payload["duration_ms"] = fields.DurationMS
	}
	if fields.Message != "" {
		payload["message"] = fields.Message
	}
	if fields.Error != "" {
		payload["error"] = fields.Error
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// Since is the elapsed time in milliseconds, for Fields.DurationMS.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
