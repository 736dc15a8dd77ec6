package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/nazeru/quickmart-checkout-go/pkg/logging"
)

type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// PgSource reads the outbox table through q.
type PgSource struct {
	Q Querier
}

func (s PgSource) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.Q, limit)
}

func (s PgSource) MarkSent(ctx context.Context, id int64) error {
	return MarkSent(ctx, s.Q, id)
}

// Relay moves committed outbox rows to the broker. Delivery is at least once:
// a row is marked sent only after the publisher accepted it.
type Relay struct {
	Source    Source
	Publisher Publisher
	Interval  time.Duration
	BatchSize int
	Service   string
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Log(logging.Fields{Service: r.Service, Step: "outbox_relay", Status: "error", Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce publishes one batch and returns how many rows were sent. It stops at
// the first publish failure so ordering within the batch is kept.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Source.FetchPending(ctx, batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec); err != nil {
			return sent, err
		}
		if err := r.Source.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
		logging.Log(logging.Fields{Service: r.Service, EventID: rec.EventID, Step: "outbox_relay", Status: "published"})
	}
	return sent, nil
}
