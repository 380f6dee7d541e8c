package loop

import "context"

// Commit is one reducer invocation plus its resulting state publication:
// the event that was folded, the state it produced, and the logical
// sequence number stamped on it.
type Commit[S, E any] struct {
	// Seq is the monotonic commit sequence number. The seeding tick
	// delivered to feedbacks at startup has Seq 0.
	Seq int64

	// State is the state after folding Event.
	State S

	// Event is the folded event. Zero-valued on the seeding tick.
	Event E

	// Initial marks the seeding tick: no event has been folded yet and
	// State is the System's initial value. Edge-triggered feedbacks use it
	// to honour an initially-true predicate.
	Initial bool
}

// Feedback is a declarative side-effect unit: an input step that decides,
// per commit, whether to admit a trigger, and an effect that turns admitted
// triggers into a lazy, cancellable Source of further events.
//
// Feedbacks hold no state of their own between systems; whatever trigger
// bookkeeping a constructor needs (previous predicate value, previous lens
// key) is created fresh each time the feedback is attached to a System.
type Feedback[S, E any] struct {
	name   string
	attach func(rt *feedbackRuntime[S, E]) func(Commit[S, E])
}

// Name reports the name the feedback was constructed with; it appears in
// logs, observer callbacks and recorded traces.
func (f Feedback[S, E]) Name() string { return f.name }

// feedbackRuntime is the engine-side handle a feedback's step functions use
// to start effect runs and dispatch events into the owning System.
type feedbackRuntime[S, E any] struct {
	sys  systemHooks[E]
	name string
}

// systemHooks is the narrow slice of System the feedback machinery needs.
// It keeps feedback.go free of the orchestrator's internals.
type systemHooks[E any] interface {
	startRun(feedback string, src Source[E]) *effectRun
	cancelRun(feedback string, run *effectRun)
	enqueue(e E)
	lifetime() context.Context
}

func (rt *feedbackRuntime[S, E]) start(src Source[E]) *effectRun {
	return rt.sys.startRun(rt.name, src)
}

func (rt *feedbackRuntime[S, E]) cancel(run *effectRun) {
	if run != nil {
		rt.sys.cancelRun(rt.name, run)
	}
}

// FromSource routes every event produced by src into the system,
// unconditionally. The source is started when the System starts and runs
// until the System closes. This is the pass-through feedback used to bind
// external event or action streams.
func FromSource[S, E any](name string, src Source[E]) Feedback[S, E] {
	return Feedback[S, E]{
		name: name,
		attach: func(rt *feedbackRuntime[S, E]) func(Commit[S, E]) {
			rt.start(src)
			return func(Commit[S, E]) {}
		},
	}
}

// WhenBecomesTrue fires effect on the false→true transition of pred over
// the committed state, including an initially-true predicate on the seeding
// tick. While pred stays true the effect does not re-fire; once pred has
// been false again, the next true commit fires it again. Re-firing cancels
// a still-running previous run, so at most one run is active.
func WhenBecomesTrue[S, E any](name string, pred func(S) bool, effect Source[E]) Feedback[S, E] {
	return Feedback[S, E]{
		name: name,
		attach: func(rt *feedbackRuntime[S, E]) func(Commit[S, E]) {
			prev := false
			var run *effectRun
			return func(c Commit[S, E]) {
				cur := pred(c.State)
				if cur && !prev {
					rt.cancel(run)
					run = rt.start(effect)
				}
				prev = cur
			}
		},
	}
}

// Lensing projects the committed state through lens and triggers effect on
// each new, distinct, present key (distinct-until-changed over the lens;
// absent values never trigger).
//
// This is the engine's principal cancellation mechanism: a newly admitted
// key cancels the previous key's run before starting its own, and a
// transition to absent cancels the run outright. A stale, slow effect
// therefore never delivers events after it has been superseded.
//
// Key equality is Go ==. Lenses projecting float-bearing keys should
// quantise inside the lens rather than rely on bit-exact equality.
func Lensing[S any, K comparable, E any](name string, lens func(S) (K, bool), effect func(K) Source[E]) Feedback[S, E] {
	return Feedback[S, E]{
		name: name,
		attach: func(rt *feedbackRuntime[S, E]) func(Commit[S, E]) {
			var (
				key     K
				present bool
				run     *effectRun
			)
			return func(c Commit[S, E]) {
				k, ok := lens(c.State)
				switch {
				case !ok:
					if present {
						rt.cancel(run)
						run = nil
						present = false
					}
				case !present || k != key:
					rt.cancel(run)
					run = rt.start(effect(k))
					key, present = k, true
				}
			}
		},
	}
}

// Imperative is the escape hatch: step observes every commit directly and
// may dispatch events straight back into the system. The engine makes no
// dedup or cancellation guarantee beyond the base serialization; ctx is the
// System's lifetime and step must stop dispatching once it is done.
func Imperative[S, E any](name string, step func(ctx context.Context, c Commit[S, E], dispatch func(E))) Feedback[S, E] {
	return Feedback[S, E]{
		name: name,
		attach: func(rt *feedbackRuntime[S, E]) func(Commit[S, E]) {
			return func(c Commit[S, E]) {
				step(rt.sys.lifetime(), c, rt.sys.enqueue)
			}
		},
	}
}
