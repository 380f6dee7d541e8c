package loop

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Reducer is the pure transition function (State, Event) -> State supplied
// by the caller. It must be total over the event union — irrelevant events
// are explicit no-op branches — and must not suspend or perform side
// effects; the engine never mutates state except by invoking it.
type Reducer[S, E any] func(S, E) S

// System is the orchestrator of one feedback loop: it owns the state
// Store, the Reducer, the registered Feedbacks and the Scheduler, and it
// merges externally dispatched events with feedback-produced events into
// one serialized commit stream.
//
// Lifecycle: constructed → running → closed. There is no paused state; a
// System runs for its owning object's lifetime. After Close, dispatches
// and late effect emissions are silently dropped and retained observers
// see no further updates.
//
// INVARIANTS:
//   - at most one commit executes at any instant (scheduler-serialized)
//   - the reducer runs exactly once per admitted event, in admission order
//   - feedback inputs see commits in registration order, which is fixed at
//     construction
type System[S, E any] struct {
	id     string
	name   string
	sched  Scheduler
	reduce Reducer[S, E]
	store  *Store[S]
	clock  clock
	logger *slog.Logger
	obs    Observer[S, E]

	steps []attachedFeedback[S, E]

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[*effectRun]struct{}
}

type attachedFeedback[S, E any] struct {
	name string
	step func(Commit[S, E])
}

// effectRun is one started effect: a cancellation flag checked on the
// serialized commit path plus the run's context cancel.
//
// The flag, not the context, is the correctness mechanism: an event from a
// cancelled run is dropped at commit time even if the producing goroutine
// raced the cancellation.
type effectRun struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// Option configures a System at construction.
type Option[S, E any] func(*System[S, E])

// WithName sets a human-readable name used in logs and traces. Defaults to
// the short system ID.
func WithName[S, E any](name string) Option[S, E] {
	return func(s *System[S, E]) { s.name = name }
}

// WithLogger sets the slog logger. Defaults to a discard logger.
func WithLogger[S, E any](logger *slog.Logger) Option[S, E] {
	return func(s *System[S, E]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the Observer receiving engine callbacks.
func WithObserver[S, E any](obs Observer[S, E]) Option[S, E] {
	return func(s *System[S, E]) {
		if obs != nil {
			s.obs = obs
		}
	}
}

// New constructs a System and starts it.
//
// The feedbacks slice order is the registration order: every commit is
// offered to feedback inputs in exactly this order, and the order cannot
// change at runtime. Pass-through sources begin running immediately.
//
// The scheduler is injected, never ambient: a SerialScheduler for
// production, a VirtualScheduler under test. The caller retains ownership
// of it and closes it after the System.
func New[S, E any](initial S, reduce Reducer[S, E], sched Scheduler, feedbacks []Feedback[S, E], opts ...Option[S, E]) *System[S, E] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &System[S, E]{
		id:     uuid.NewString(),
		sched:  sched,
		reduce: reduce,
		store:  newStore(initial),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		obs:    NoopObserver[S, E]{},
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[*effectRun]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = s.id[:8]
	}
	s.logger = s.logger.With("system", s.name)

	s.steps = make([]attachedFeedback[S, E], 0, len(feedbacks))
	for _, f := range feedbacks {
		rt := &feedbackRuntime[S, E]{sys: s, name: f.name}
		s.steps = append(s.steps, attachedFeedback[S, E]{
			name: f.name,
			step: f.attach(rt),
		})
	}

	// Seeding tick: feedback inputs observe the initial state once before
	// any event is folded, so an initially-true edge predicate or an
	// initially-present lens key triggers without a first dispatch.
	s.sched.Schedule(func() {
		if s.closed.Load() {
			return
		}
		c := Commit[S, E]{Seq: s.clock.current(), State: s.store.Current(), Initial: true}
		for _, f := range s.steps {
			f.step(c)
		}
	})

	return s
}

// ID returns the unique system identity.
func (s *System[S, E]) ID() string { return s.id }

// Name returns the configured name.
func (s *System[S, E]) Name() string { return s.name }

// Current returns the latest committed state.
func (s *System[S, E]) Current() S { return s.store.Current() }

// Subscribe observes the state stream: the current state immediately, then
// every subsequent committed state in commit order.
func (s *System[S, E]) Subscribe(fn func(S)) Subscription {
	return s.store.Subscribe(fn)
}

// Dispatch enqueues an externally produced event. It never blocks and
// always succeeds; after Close it is a silent no-op.
func (s *System[S, E]) Dispatch(e E) {
	s.enqueue(e)
}

// Close cancels every in-flight effect run and stops all processing. After
// Close returns, zero further commits happen regardless of how much real
// or virtual time elapses. Idempotent.
func (s *System[S, E]) Close() {
	if s.closed.Swap(true) {
		return
	}

	s.mu.Lock()
	runs := s.runs
	s.runs = nil
	s.mu.Unlock()

	for run := range runs {
		run.cancelled.Store(true)
		run.cancel()
	}
	s.cancel()

	s.logger.Debug("closed", "commits", s.clock.current())
	s.obs.OnClose()
}

// enqueue admits an event with no producing run (dispatches, imperative
// feedbacks).
func (s *System[S, E]) enqueue(e E) {
	if s.closed.Load() {
		return
	}
	s.sched.Schedule(func() { s.commit(e, nil) })
}

// commit folds one event. Runs only on the scheduler worker.
func (s *System[S, E]) commit(e E, run *effectRun) {
	if s.closed.Load() {
		return
	}
	// Supersession gate: the producing run may have been cancelled between
	// emission and this tick. Dropping here, on the serialized path, is
	// what makes cancellation exact rather than best-effort.
	if run != nil && run.cancelled.Load() {
		s.logger.Debug("dropped stale effect event", "event", e)
		return
	}

	seq := s.clock.next()
	next := s.reduce(s.store.Current(), e)
	s.store.set(next)

	c := Commit[S, E]{Seq: seq, State: next, Event: e}
	s.obs.OnCommit(c)
	s.logger.Debug("commit", "seq", seq)

	for _, f := range s.steps {
		f.step(c)
	}
}

// startRun begins an effect run for the named feedback.
func (s *System[S, E]) startRun(feedback string, src Source[E]) *effectRun {
	s.mu.Lock()
	if s.closed.Load() || s.runs == nil {
		s.mu.Unlock()
		// Inert run: already cancelled, source never started.
		run := &effectRun{cancel: func() {}}
		run.cancelled.Store(true)
		return run
	}
	ctx, cancel := context.WithCancel(s.ctx)
	run := &effectRun{cancel: cancel}
	s.runs[run] = struct{}{}
	s.mu.Unlock()

	s.obs.OnEffectStart(feedback)
	s.logger.Debug("effect start", "feedback", feedback)

	src(ctx, s.sched, func(e E) { s.emit(run, e) })
	return run
}

// cancelRun cancels a run started by startRun. Safe to call with an
// already-cancelled run.
func (s *System[S, E]) cancelRun(feedback string, run *effectRun) {
	if run.cancelled.Swap(true) {
		return
	}
	run.cancel()

	s.mu.Lock()
	if s.runs != nil {
		delete(s.runs, run)
	}
	s.mu.Unlock()

	s.obs.OnEffectCancel(feedback)
	s.logger.Debug("effect cancel", "feedback", feedback)
}

// emit admits an event produced by an effect run.
func (s *System[S, E]) emit(run *effectRun, e E) {
	if run.cancelled.Load() || s.closed.Load() {
		return
	}
	s.sched.Schedule(func() { s.commit(e, run) })
}

// lifetime implements systemHooks.
func (s *System[S, E]) lifetime() context.Context { return s.ctx }
