package state

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock stamps session events with a strictly increasing revision so
// observers can drop stale notifications.
type Clock struct {
	counter atomic.Uint64
}

// Tick increments the clock and returns the new value.
func (c *Clock) Tick() uint64 {
	return c.counter.Add(1)
}

// Now returns the last issued revision.
func (c *Clock) Now() uint64 {
	return c.counter.Load()
}

// NewToken returns a random session-scoped token.
func NewToken() string {
	return uuid.NewString()
}
