package loop

import (
	"sort"
	"sync"
	"time"
)

// VirtualScheduler is a Scheduler driven entirely by explicit AdvanceBy
// calls. No work ever executes on its own: immediate work is due at the
// current virtual instant and still waits for the next advance (AdvanceBy(0)
// suffices).
//
// During an advance, all work whose due time is at or before the target
// executes in (due time, submission order). Work scheduled while advancing
// joins the same pass if it is due within the target. This is what makes an
// asynchronous effect pipeline behave like a deterministic, replayable
// linear log under test.
//
// Thread-safety: Schedule and ScheduleAfter are safe from any goroutine.
// AdvanceBy must not be called concurrently with itself or from inside
// scheduled work; doing so is a programming error and panics.
type VirtualScheduler struct {
	mu        sync.Mutex
	now       time.Duration
	seq       int64
	queue     []virtualEntry // sorted by (due, seq)
	closed    bool
	advancing bool
}

type virtualEntry struct {
	due time.Duration
	seq int64
	fn  func()
}

// NewVirtualScheduler returns a scheduler at virtual time zero.
func NewVirtualScheduler() *VirtualScheduler {
	return &VirtualScheduler{}
}

// Now returns the current virtual time.
func (v *VirtualScheduler) Now() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Pending returns the number of queued work items, for diagnostics.
func (v *VirtualScheduler) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// Schedule queues fn at the current virtual instant.
func (v *VirtualScheduler) Schedule(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.insert(v.now, fn)
}

// ScheduleAfter queues fn at now+d. A non-positive d is due immediately.
func (v *VirtualScheduler) ScheduleAfter(d time.Duration, fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if d < 0 {
		d = 0
	}
	v.insert(v.now+d, fn)
}

// insert keeps the queue sorted by due time, ties broken by submission
// order. Caller holds v.mu.
func (v *VirtualScheduler) insert(due time.Duration, fn func()) {
	if v.closed {
		return
	}
	v.seq++
	e := virtualEntry{due: due, seq: v.seq, fn: fn}
	i := sort.Search(len(v.queue), func(i int) bool { return v.queue[i].due > due })
	v.queue = append(v.queue, virtualEntry{})
	copy(v.queue[i+1:], v.queue[i:])
	v.queue[i] = e
}

// AdvanceBy moves virtual time forward by d and executes everything due on
// the way, in (due, submission) order. Negative d is a no-op.
func (v *VirtualScheduler) AdvanceBy(d time.Duration) {
	v.mu.Lock()
	if v.closed || d < 0 {
		v.mu.Unlock()
		return
	}
	if v.advancing {
		v.mu.Unlock()
		panic("loop: re-entrant VirtualScheduler.AdvanceBy (called from scheduled work?)")
	}
	v.advancing = true
	target := v.now + d

	for len(v.queue) > 0 && v.queue[0].due <= target {
		e := v.queue[0]
		v.queue[0] = virtualEntry{}
		v.queue = v.queue[1:]
		if e.due > v.now {
			v.now = e.due
		}
		v.mu.Unlock()
		e.fn()
		v.mu.Lock()
	}

	v.now = target
	v.advancing = false
	v.mu.Unlock()
}

// Close drops all pending work and turns further scheduling into a no-op.
func (v *VirtualScheduler) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.queue = nil
}
