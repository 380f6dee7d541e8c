package loop

import "sync/atomic"

// clock is a monotonic logical clock stamping commits.
//
// Every committed event carries a strictly increasing sequence number from
// this clock. Ordering is defined by seq, never by wall-clock time, so a
// replayed run produces an identical commit order.
//
// Thread-safety: safe for concurrent use (atomic operations). In practice
// only the serialized commit path calls next().
type clock struct {
	seq atomic.Int64
}

// next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *clock) next() int64 {
	return c.seq.Add(1)
}

// current returns the current sequence number without incrementing.
func (c *clock) current() int64 {
	return c.seq.Load()
}
