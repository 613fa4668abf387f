package backoff

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff yields doubling delays between startDuration and maxDuration.
// With startDuration == maxDuration it degenerates to a fixed interval,
// which is how the storage poll loop uses it.
type Backoff struct {
	startDuration time.Duration
	maxDuration   time.Duration
	count         int
}

func New(startDuration, maxDuration time.Duration) (*Backoff, error) {
	if startDuration <= 0 {
		return nil, fmt.Errorf("startDuration must be greater than 0")
	}
	if maxDuration < startDuration {
		return nil, fmt.Errorf("maxDuration must be greater than or equal to startDuration")
	}

	return &Backoff{
		startDuration: startDuration,
		maxDuration:   maxDuration,
	}, nil
}

// Constant returns a Backoff that always waits interval.
func Constant(interval time.Duration) (*Backoff, error) {
	return New(interval, interval)
}

func (b *Backoff) Next() time.Duration {
	b.count++

	duration := time.Duration(float64(b.startDuration) * math.Pow(2, float64(b.count-1)))
	if duration > b.maxDuration || duration <= 0 {
		duration = b.maxDuration
	}

	return duration
}

// Wait sleeps for Next() or until ctx is done, whichever comes first.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *Backoff) Reset() {
	b.count = 0
}

func (b *Backoff) Count() int {
	return b.count
}
