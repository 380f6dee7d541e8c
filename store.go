package loop

import "sync"

// Store is a hot, stateful broadcast of a single current value.
//
// Current always reflects the most recently committed reducer output, never
// an intermediate value. Subscribe delivers the current value first and then
// every subsequent committed value, in commit order, with no coalescing and
// no drops: each observer sees the full, ordered history from its point of
// subscription exactly once.
//
// Mutation is private to the owning System; readers never need a lock of
// their own because every published value is a fully-formed snapshot.
type Store[S any] struct {
	mu    sync.Mutex
	value S
	subs  []*subscriber[S]
}

// Subscription detaches one observer from a Store.
type Subscription interface {
	// Cancel stops delivery. Idempotent. After Cancel returns, the observer
	// callback will not be invoked again.
	Cancel()
}

type subscriber[S any] struct {
	// mu serializes deliveries to this one observer, so the initial value
	// handed out by Subscribe cannot be overtaken by a concurrent commit.
	mu        sync.Mutex
	fn        func(S)
	cancelled bool
}

func (sub *subscriber[S]) deliver(v S) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cancelled {
		return
	}
	sub.fn(v)
}

func newStore[S any](initial S) *Store[S] {
	return &Store[S]{value: initial}
}

// Current returns the latest committed value.
func (st *Store[S]) Current() S {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.value
}

// Subscribe registers fn and synchronously delivers the current value
// before any later commit reaches it. fn runs on the subscribing goroutine
// for the initial value and on the committing worker afterwards; it must
// not block.
func (st *Store[S]) Subscribe(fn func(S)) Subscription {
	sub := &subscriber[S]{fn: fn}

	st.mu.Lock()
	cur := st.value
	// Holding sub.mu across the append and the initial delivery blocks any
	// concurrent commit from reaching this subscriber out of order.
	sub.mu.Lock()
	st.subs = append(st.subs, sub)
	st.mu.Unlock()

	if !sub.cancelled {
		sub.fn(cur)
	}
	sub.mu.Unlock()

	return &storeSubscription[S]{store: st, sub: sub}
}

// set publishes v to every subscriber. Called only from the serialized
// commit path (and once at construction).
func (st *Store[S]) set(v S) {
	st.mu.Lock()
	st.value = v
	subs := make([]*subscriber[S], len(st.subs))
	copy(subs, st.subs)
	st.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(v)
	}
}

type storeSubscription[S any] struct {
	store *Store[S]
	sub   *subscriber[S]
	once  sync.Once
}

func (s *storeSubscription[S]) Cancel() {
	s.once.Do(func() {
		s.sub.mu.Lock()
		s.sub.cancelled = true
		s.sub.mu.Unlock()

		st := s.store
		st.mu.Lock()
		for i, sub := range st.subs {
			if sub == s.sub {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				break
			}
		}
		st.mu.Unlock()
	})
}
