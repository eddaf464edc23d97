package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Override windows,
// snapshot TTLs and credit expiry all key off Clock.Now, so tests move time
// with Advance instead of sleeping. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock pins the clock to the given instant, normalized to UTC like
// every persisted timestamp in this repo.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward (or backward, with a negative duration).
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
