package loop

import (
	"sync"
	"time"
)

// Scheduler is a serialized execution context: work submitted with Schedule
// runs strictly after all previously scheduled work and strictly before any
// later-submitted work (FIFO, single-worker semantics).
//
// Scheduling after the scheduler has been closed is a silent no-op, never
// an error. Teardown races between a closing System and late effect
// completions are expected and must not crash the caller.
type Scheduler interface {
	// Schedule submits fn for execution in submission order.
	Schedule(fn func())

	// ScheduleAfter submits fn to run once d has elapsed. Delayed work is
	// ordered by due time; work with the same due time runs in submission
	// order. A non-positive d is equivalent to Schedule.
	ScheduleAfter(d time.Duration, fn func())
}

// SerialScheduler is the live Scheduler: a single dedicated worker
// goroutine draining an unbounded FIFO queue.
//
// The queue is unbounded so that cascading feedback emissions can enqueue
// arbitrarily many commits without ever blocking a dispatcher.
//
// Thread-safety model:
//   - Schedule / ScheduleAfter: safe from any goroutine
//   - all submitted work runs on the one worker goroutine
type SerialScheduler struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{} // signals work availability (buffered, size 1)
	done   chan struct{}
}

// NewSerialScheduler starts the worker goroutine and returns the scheduler.
// Callers must Close it when the owning System is torn down.
func NewSerialScheduler() *SerialScheduler {
	s := &SerialScheduler{
		queue:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule appends fn to the queue. No-op after Close.
func (s *SerialScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, fn)

	// Non-blocking send; the buffer of 1 coalesces multiple signals.
	// Must stay under the mutex: Close closes the channel.
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// ScheduleAfter arms a wall-clock timer that re-enters Schedule, so delayed
// work still serializes through the same worker.
func (s *SerialScheduler) ScheduleAfter(d time.Duration, fn func()) {
	if d <= 0 {
		s.Schedule(fn)
		return
	}
	time.AfterFunc(d, func() { s.Schedule(fn) })
}

// Close stops accepting work. Work already queued is drained before the
// worker exits; timers still pending fire into a closed queue and are
// dropped. Close is idempotent and must not be called from scheduled work.
func (s *SerialScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.signal) // wakes the worker
	s.mu.Unlock()
}

// Done is closed once the worker goroutine has drained and exited.
func (s *SerialScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *SerialScheduler) run() {
	defer close(s.done)
	for {
		fn, ok := s.dequeue()
		if !ok {
			return
		}
		fn()
	}
}

// dequeue blocks until work is available or the queue is closed and empty.
func (s *SerialScheduler) dequeue() (func(), bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			fn := s.queue[0]
			// Nil out the slot so the closure is collectable even while
			// the backing array is retained.
			s.queue[0] = nil
			if len(s.queue) == 1 {
				s.queue = s.queue[:0]
			} else {
				s.queue = s.queue[1:]
			}
			s.mu.Unlock()
			return fn, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, false
		}
		<-s.signal
	}
}
