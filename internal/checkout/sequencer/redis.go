package sequencer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyTTL keeps yesterday's key around long enough for late checkouts that
// started before midnight.
const keyTTL = 48 * time.Hour

// RedisCounter increments one key per day. Numbers handed out here stay
// consumed even when the surrounding checkout rolls back.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "orderseq"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(day string) string {
	return c.prefix + ":" + day
}

func (c *RedisCounter) Next(ctx context.Context, day string) (int64, error) {
	key := c.key(day)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, keyTTL).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}
