package retry

import "sync/atomic"

// Counter is a monotonic count of retries across every operation run by the
// executors that share it. It has no reset; a fresh Counter starts at zero.
type Counter struct {
	n atomic.Int64
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) inc() {
	c.n.Add(1)
}

// Load returns the number of retries recorded so far.
func (c *Counter) Load() int64 {
	return c.n.Load()
}
