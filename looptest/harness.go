package looptest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidefall/loop"
)

// Record is one recorded commit: the virtual instant it happened, its
// sequence number, the folded event and the resulting state.
type Record[S, E any] struct {
	At    time.Duration
	Seq   int64
	Event E
	State S
}

// EffectNote is one entry in the effect log.
type EffectNote struct {
	At       time.Duration
	Feedback string
	Kind     EffectKind
}

// EffectKind distinguishes effect log entries.
type EffectKind string

const (
	EffectStarted   EffectKind = "started"
	EffectCancelled EffectKind = "cancelled"
)

// Harness wires a System under test to a VirtualScheduler and accumulates
// an append-only log of every commit and effect transition.
type Harness[S, E any] struct {
	sched *loop.VirtualScheduler
	sys   *loop.System[S, E]

	mu      sync.Mutex
	records []Record[S, E]
	effects []EffectNote
}

// New constructs the subject under test. The harness installs its own
// recording observer; tests needing additional observation should read the
// harness logs rather than pass WithObserver.
func New[S, E any](initial S, reduce loop.Reducer[S, E], feedbacks []loop.Feedback[S, E], opts ...loop.Option[S, E]) *Harness[S, E] {
	h := &Harness[S, E]{sched: loop.NewVirtualScheduler()}
	opts = append(opts, loop.WithObserver[S, E](recorder[S, E]{h: h}))
	h.sys = loop.New(initial, reduce, h.sched, feedbacks, opts...)
	return h
}

// recorder implements loop.Observer by appending to the harness logs.
type recorder[S, E any] struct {
	h *Harness[S, E]
}

func (r recorder[S, E]) OnCommit(c loop.Commit[S, E]) {
	h := r.h
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, Record[S, E]{
		At:    h.sched.Now(),
		Seq:   c.Seq,
		Event: c.Event,
		State: c.State,
	})
}

func (r recorder[S, E]) OnEffectStart(feedback string) {
	r.note(feedback, EffectStarted)
}

func (r recorder[S, E]) OnEffectCancel(feedback string) {
	r.note(feedback, EffectCancelled)
}

func (r recorder[S, E]) OnClose() {}

func (r recorder[S, E]) note(feedback string, kind EffectKind) {
	h := r.h
	h.mu.Lock()
	defer h.mu.Unlock()
	h.effects = append(h.effects, EffectNote{
		At:       h.sched.Now(),
		Feedback: feedback,
		Kind:     kind,
	})
}

// Dispatch enqueues an event; it commits on the next advance.
func (h *Harness[S, E]) Dispatch(e E) {
	h.sys.Dispatch(e)
}

// AdvanceBy moves virtual time forward, running everything due on the way.
// AdvanceBy(0) processes work due at the current instant.
func (h *Harness[S, E]) AdvanceBy(d time.Duration) {
	h.sched.AdvanceBy(d)
}

// Now returns the current virtual time.
func (h *Harness[S, E]) Now() time.Duration {
	return h.sched.Now()
}

// Current returns the latest committed state.
func (h *Harness[S, E]) Current() S {
	return h.sys.Current()
}

// System exposes the subject under test.
func (h *Harness[S, E]) System() *loop.System[S, E] {
	return h.sys
}

// Scheduler exposes the virtual scheduler.
func (h *Harness[S, E]) Scheduler() *loop.VirtualScheduler {
	return h.sched
}

// Close tears the subject down. Further advances run no commits.
func (h *Harness[S, E]) Close() {
	h.sys.Close()
}

// Records returns a copy of the commit log, in commit order.
func (h *Harness[S, E]) Records() []Record[S, E] {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record[S, E], len(h.records))
	copy(out, h.records)
	return out
}

// Events returns the folded events, in commit order.
func (h *Harness[S, E]) Events() []E {
	records := h.Records()
	out := make([]E, len(records))
	for i, r := range records {
		out[i] = r.Event
	}
	return out
}

// States returns the committed states, in commit order.
func (h *Harness[S, E]) States() []S {
	records := h.Records()
	out := make([]S, len(records))
	for i, r := range records {
		out[i] = r.State
	}
	return out
}

// Effects returns a copy of the effect log.
func (h *Harness[S, E]) Effects() []EffectNote {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EffectNote, len(h.effects))
	copy(out, h.effects)
	return out
}

// EffectStarts counts started runs for one feedback.
func (h *Harness[S, E]) EffectStarts(feedback string) int {
	n := 0
	for _, note := range h.Effects() {
		if note.Feedback == feedback && note.Kind == EffectStarted {
			n++
		}
	}
	return n
}

// RequireEvents asserts the full committed event log equals want.
func (h *Harness[S, E]) RequireEvents(t *testing.T, want ...E) {
	t.Helper()
	require.Equal(t, want, h.Events())
}

// RequireCurrent asserts the latest committed state.
func (h *Harness[S, E]) RequireCurrent(t *testing.T, want S) {
	t.Helper()
	require.Equal(t, want, h.Current())
}

// RequireCommits asserts the total number of commits so far.
func (h *Harness[S, E]) RequireCommits(t *testing.T, want int) {
	t.Helper()
	require.Len(t, h.Records(), want)
}
