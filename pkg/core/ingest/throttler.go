package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
)

// Throttler lets count calls through, then sleeps d before the next one.
// SEC bans clients that go over 10 requests per second.
type Throttler struct {
	mu            sync.Mutex
	clock         clock.Clock
	d             time.Duration
	originalCount int
	remaining     int
}

// NewThrottler returns a throttler allowing count calls per sleep of d.
func NewThrottler(clk clock.Clock, d time.Duration, count int) *Throttler {
	if count < 1 {
		count = 1
	}
	return &Throttler{clock: clk, d: d, originalCount: count, remaining: count}
}

// NewRPSThrottler spaces calls so that at most rps run per second.
func NewRPSThrottler(clk clock.Clock, rps int) *Throttler {
	if rps < 1 {
		rps = 1
	}
	return NewThrottler(clk, time.Second/time.Duration(rps), 1)
}

// Wait blocks when the budget is spent and reports whether it slept. It
// returns ctx.Err() as soon as ctx is done; a cancelled call does not count
// against the budget.
func (t *Throttler) Wait(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// The first call goes through.
	if t.remaining > 0 {
		t.remaining--
		return false, nil
	}
	if ctx.Done() == nil {
		t.clock.Sleep(t.d)
	} else {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.clock.After(t.d):
		}
	}
	// The -1 carries over this call.
	t.remaining = t.originalCount - 1
	return true, nil
}

// ForcedWait sleeps unconditionally and refills the budget.
func (t *Throttler) ForcedWait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock.Sleep(t.d)
	t.remaining = t.originalCount
}

// Remaining returns the calls left before the next sleep.
func (t *Throttler) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Reset refills the budget without sleeping.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = t.originalCount
}
