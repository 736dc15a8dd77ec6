package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClientParsesBrokers(t *testing.T) {
	c := NewClient(" kafka-1:9092, ,kafka-2:9092 ")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Brokers)
	assert.True(t, c.Enabled())

	assert.False(t, NewClient("").Enabled())
}

func TestNewWriterWithoutTopic(t *testing.T) {
	w := NewClient("kafka-1:9092").NewWriter("")
	assert.Empty(t, w.Topic)
	assert.NotNil(t, w.Balancer)
}
