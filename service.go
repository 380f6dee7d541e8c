package loop

// Handle is the narrow capability surface a service exposes to its
// consumers: dispatch an action, read and observe the state. Concrete
// services implement it by composing a System and an action wrapper —
// composition, not subclassing.
type Handle[A, S any] interface {
	Dispatch(a A)
	Current() S
	Subscribe(fn func(S)) Subscription
}

// Service adapts a System to Handle by wrapping externally dispatched
// Actions into the System's event union before they enter the queue.
//
// A Service is a non-owning view: closing the underlying System makes
// every Dispatch a silent no-op, so retained handles degrade gracefully
// after teardown instead of keeping a dead system alive.
type Service[A, S, E any] struct {
	sys  *System[S, E]
	wrap func(A) E
}

// NewService wraps sys. wrap converts an action into the event the reducer
// folds; it must be pure.
func NewService[A, S, E any](sys *System[S, E], wrap func(A) E) *Service[A, S, E] {
	return &Service[A, S, E]{sys: sys, wrap: wrap}
}

// Dispatch wraps a into an event and enqueues it. Never blocks.
func (sv *Service[A, S, E]) Dispatch(a A) {
	sv.sys.Dispatch(sv.wrap(a))
}

// Current returns the latest committed state.
func (sv *Service[A, S, E]) Current() S {
	return sv.sys.Current()
}

// Subscribe observes the state stream.
func (sv *Service[A, S, E]) Subscribe(fn func(S)) Subscription {
	return sv.sys.Subscribe(fn)
}

// System returns the underlying system, for owners that need Close.
func (sv *Service[A, S, E]) System() *System[S, E] {
	return sv.sys
}
