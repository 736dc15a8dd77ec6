package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCounter struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (c *mapCounter) Next(_ context.Context, day string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.values == nil {
		c.values = map[string]int64{}
	}
	c.values[day]++
	return c.values[day], nil
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestSameDayNumbersIncrement(t *testing.T) {
	seq := New(&mapCounter{}, fixedClock("2025-01-01T10:00:00Z"))

	first, err := seq.NextOrderNumber(context.Background())
	require.NoError(t, err)
	second, err := seq.NextOrderNumber(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ORD-20250101-0001", first)
	assert.Equal(t, "ORD-20250101-0002", second)
	assert.Less(t, first, second)
}

func TestCounterRestartsPerUTCDay(t *testing.T) {
	counter := &mapCounter{}
	ctx := context.Background()

	_, err := New(counter, fixedClock("2025-01-01T23:59:59Z")).NextOrderNumber(ctx)
	require.NoError(t, err)
	// 01:00 in UTC+3 is still the previous day in UTC.
	late, err := New(counter, fixedClock("2025-01-02T01:00:00+03:00")).NextOrderNumber(ctx)
	require.NoError(t, err)
	next, err := New(counter, fixedClock("2025-01-02T00:00:00Z")).NextOrderNumber(ctx)
	require.NoError(t, err)

	assert.Equal(t, "ORD-20250101-0002", late)
	assert.Equal(t, "ORD-20250102-0001", next)
}

func TestExhaustedDay(t *testing.T) {
	counter := &mapCounter{values: map[string]int64{"20250101": MaxPerDay}}
	seq := New(counter, fixedClock("2025-01-01T00:00:00Z"))

	_, err := seq.NextOrderNumber(context.Background())

	assert.ErrorIs(t, err, ErrSequenceExhausted)
}

func TestCounterErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	seq := New(&mapCounter{err: boom}, fixedClock("2025-01-01T00:00:00Z"))

	_, err := seq.NextOrderNumber(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestConcurrentNumbersAreUnique(t *testing.T) {
	seq := New(&mapCounter{}, fixedClock("2025-03-04T12:00:00Z"))

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := seq.NextOrderNumber(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestParse(t *testing.T) {
	day, n, err := Parse("ORD-20250101-0042")
	require.NoError(t, err)
	assert.Equal(t, "20250101", day)
	assert.EqualValues(t, 42, n)

	for _, bad := range []string{"", "ORD-2025-0001", "INV-20250101-0001", "ORD-20250101-abcd", "ORD-20250101-0000", "ORD-20251301-0001"} {
		_, _, err := Parse(bad)
		assert.ErrorIs(t, err, ErrMalformedNumber, bad)
	}
}
