package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nazeru/quickmart-checkout-go/pkg/outbox"
)

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter returns a writer bound to topic. An empty topic leaves the choice
// to each message.
func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

func PublishJSON(ctx context.Context, writer *kafka.Writer, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}

// OutboxPublisher forwards outbox rows as-is; the row's topic wins over the
// writer's when the writer has none.
type OutboxPublisher struct {
	Writer *kafka.Writer
}

func (p OutboxPublisher) Publish(ctx context.Context, rec outbox.Record) error {
	msg := kafka.Message{Key: []byte(rec.Key), Value: rec.Payload, Time: rec.CreatedAt}
	if p.Writer.Topic == "" {
		msg.Topic = rec.Topic
	}
	return p.Writer.WriteMessages(ctx, msg)
}
