package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The test machine: a counter with a boolean flag, a lens key and an
// append-only log, exercised by a small string-tagged event union.
type testState struct {
	count int
	flag  bool
	key   string
	log   string
}

type testEvent struct {
	kind string
	val  string
}

func testReduce(s testState, e testEvent) testState {
	switch e.kind {
	case "inc":
		s.count++
	case "set-flag":
		s.flag = true
	case "clear-flag":
		s.flag = false
	case "key":
		s.key = e.val
	case "clear-key":
		s.key = ""
	case "loaded":
		s.log += e.val + ";"
	case "noop":
		// Explicit no-op branch: the event still commits.
	}
	return s
}

func newTestSystem(sched Scheduler, feedbacks ...Feedback[testState, testEvent]) *System[testState, testEvent] {
	return New(testState{}, testReduce, sched, feedbacks)
}

func TestSystemSerializesConcurrentDispatches(t *testing.T) {
	sched := NewSerialScheduler()
	defer sched.Close()
	sys := newTestSystem(sched)
	defer sys.Close()

	const dispatchers = 8
	const perDispatcher = 50

	var wg sync.WaitGroup
	for i := 0; i < dispatchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perDispatcher; j++ {
				sys.Dispatch(testEvent{kind: "inc"})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return sys.Current().count == dispatchers*perDispatcher
	}, time.Second, time.Millisecond, "every dispatch commits exactly once")
}

func TestSystemObserverSeesEveryCommitInOrder(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)
	defer sys.Close()

	var counts []int
	sys.Subscribe(func(s testState) { counts = append(counts, s.count) })

	for i := 0; i < 5; i++ {
		sys.Dispatch(testEvent{kind: "inc"})
	}
	sched.AdvanceBy(0)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, counts)
}

func TestSystemRoundTripUnchangedStateStillNotifies(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)
	defer sys.Close()

	notifications := 0
	sys.Subscribe(func(testState) { notifications++ })
	require.Equal(t, 1, notifications, "initial value delivered on subscribe")

	sys.Dispatch(testEvent{kind: "noop"})
	sched.AdvanceBy(0)

	// The commit is not suppressed just because the state is unchanged.
	assert.Equal(t, 2, notifications)
	assert.Equal(t, testState{}, sys.Current())
}

func TestSystemDispatchAfterCloseIsDropped(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)

	sys.Close()
	sys.Dispatch(testEvent{kind: "inc"})
	sched.AdvanceBy(0)

	assert.Equal(t, 0, sys.Current().count)
}

func TestSystemCloseIdempotent(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)
	sys.Close()
	sys.Close()
}

func TestSystemCloseStopsQueuedCommits(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)

	sys.Dispatch(testEvent{kind: "inc"})
	sys.Close()
	sched.AdvanceBy(time.Hour)

	assert.Equal(t, 0, sys.Current().count, "queued event committed after Close")
}

func TestSystemIdentity(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := New(testState{}, testReduce, sched, nil, WithName[testState, testEvent]("loader"))
	defer sys.Close()

	assert.Equal(t, "loader", sys.Name())
	assert.NotEmpty(t, sys.ID())

	other := New(testState{}, testReduce, sched, nil)
	defer other.Close()
	assert.NotEqual(t, sys.ID(), other.ID())
}

func TestServiceWrapsActions(t *testing.T) {
	sched := NewVirtualScheduler()
	sys := newTestSystem(sched)
	defer sys.Close()

	type action struct{ verb string }
	svc := NewService(sys, func(a action) testEvent {
		return testEvent{kind: a.verb}
	})

	var seen []int
	svc.Subscribe(func(s testState) { seen = append(seen, s.count) })

	svc.Dispatch(action{verb: "inc"})
	svc.Dispatch(action{verb: "inc"})
	sched.AdvanceBy(0)

	assert.Equal(t, 2, svc.Current().count)
	assert.Equal(t, []int{0, 1, 2}, seen)

	// A retained handle no-ops gracefully after teardown.
	svc.System().Close()
	svc.Dispatch(action{verb: "inc"})
	sched.AdvanceBy(0)
	assert.Equal(t, 2, svc.Current().count)
}
