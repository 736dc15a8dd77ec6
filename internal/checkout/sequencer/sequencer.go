// Package sequencer allocates human readable order numbers of the form
// ORD-YYYYMMDD-NNNN. The counter restarts every UTC day and is backed by an
// atomic per-day increment, never by reading the latest existing number.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Prefix     = "ORD"
	dayLayout  = "20060102"
	MaxPerDay  = 9999
	counterLen = 4
)

var (
	ErrSequenceExhausted = errors.New("order sequence exhausted for the day")
	ErrMalformedNumber   = errors.New("malformed order number")
)

// Counter atomically increments and returns the counter for day (YYYYMMDD).
// The first call for a day returns 1.
type Counter interface {
	Next(ctx context.Context, day string) (int64, error)
}

type Sequencer struct {
	counter Counter
	now     func() time.Time
}

func New(counter Counter, now func() time.Time) *Sequencer {
	if now == nil {
		now = time.Now
	}
	return &Sequencer{counter: counter, now: now}
}

func (s *Sequencer) NextOrderNumber(ctx context.Context) (string, error) {
	day := Day(s.now())
	n, err := s.counter.Next(ctx, day)
	if err != nil {
		return "", fmt.Errorf("next order sequence for %s: %w", day, err)
	}
	if n < 1 || n > MaxPerDay {
		return "", ErrSequenceExhausted
	}
	return Format(day, n), nil
}

// Day renders t as the UTC date key used by counters.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func DayPrefix(day string) string {
	return Prefix + "-" + day + "-"
}

func Format(day string, n int64) string {
	return fmt.Sprintf("%s%0*d", DayPrefix(day), counterLen, n)
}

// Parse splits an order number into its day key and counter.
func Parse(number string) (day string, n int64, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != Prefix {
		return "", 0, ErrMalformedNumber
	}
	if _, err := time.Parse(dayLayout, parts[1]); err != nil {
		return "", 0, ErrMalformedNumber
	}
	n, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil || n < 1 {
		return "", 0, ErrMalformedNumber
	}
	return parts[1], n, nil
}
