package looptest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidefall/loop/internal/demo"
	"github.com/tidefall/loop/looptest"
)

func start() demo.Event { return demo.Event{Kind: demo.EventStart} }
func reset() demo.Event { return demo.Event{Kind: demo.EventReset} }

func TestVirtualTimeExactness(t *testing.T) {
	h := demo.NewHarness(10 * time.Millisecond)
	defer h.Close()

	h.Dispatch(start())
	h.AdvanceBy(5 * time.Millisecond)

	// The load takes 10 units of virtual time; at 5 nothing has completed.
	h.RequireCommits(t, 1)
	h.RequireCurrent(t, demo.State{Status: demo.StatusLoading, Attempts: 1})

	h.AdvanceBy(5 * time.Millisecond)

	// At exactly 10, one done event and one final state.
	h.RequireEvents(t,
		demo.Event{Kind: demo.EventStart},
		demo.Event{Kind: demo.EventDone},
	)
	h.RequireCurrent(t, demo.State{Status: demo.StatusFinished, Attempts: 1})

	records := h.Records()
	require.Len(t, records, 2)
	assert.Equal(t, time.Duration(0), records[0].At)
	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, 10*time.Millisecond, records[1].At)
	assert.Equal(t, int64(2), records[1].Seq)
}

func TestSequentialVerificationsAccumulate(t *testing.T) {
	h := demo.NewHarness(10 * time.Millisecond)
	defer h.Close()

	h.Dispatch(start())
	h.AdvanceBy(10 * time.Millisecond)
	h.RequireCommits(t, 2)

	// Same harness, same clock: the next verification continues at t=10ms.
	h.Dispatch(reset())
	h.AdvanceBy(0)
	h.Dispatch(start())
	h.AdvanceBy(10 * time.Millisecond)

	h.RequireCommits(t, 5)
	h.RequireCurrent(t, demo.State{Status: demo.StatusFinished, Attempts: 2})

	records := h.Records()
	assert.Equal(t, 20*time.Millisecond, records[len(records)-1].At)
}

func TestEffectLogRecordsStartsAndCancels(t *testing.T) {
	h := demo.NewHarness(10 * time.Millisecond)
	defer h.Close()

	h.Dispatch(start())
	h.AdvanceBy(time.Millisecond)
	require.Equal(t, 1, h.EffectStarts("loader"))

	// Reset drops the lens to absent: the in-flight load is cancelled.
	h.Dispatch(reset())
	h.AdvanceBy(time.Hour)

	h.RequireCurrent(t, demo.State{Status: demo.StatusIdle, Attempts: 1})

	effects := h.Effects()
	require.Len(t, effects, 2)
	assert.Equal(t, looptest.EffectStarted, effects[0].Kind)
	assert.Equal(t, looptest.EffectCancelled, effects[1].Kind)
	assert.Equal(t, time.Millisecond, effects[1].At)
}

func TestTeardownStopsAllCommits(t *testing.T) {
	h := demo.NewHarness(10 * time.Millisecond)

	h.Dispatch(start())
	h.AdvanceBy(time.Millisecond)
	h.Close()
	h.AdvanceBy(time.Hour)

	h.RequireCommits(t, 1)
	h.RequireCurrent(t, demo.State{Status: demo.StatusLoading, Attempts: 1})
}

func TestSnapshotShape(t *testing.T) {
	h := demo.NewHarness(10 * time.Millisecond)
	defer h.Close()

	h.Dispatch(start())
	h.AdvanceBy(10 * time.Millisecond)

	snap := h.Snapshot("run", demo.Codec())
	assert.Equal(t, "run", snap["name"])

	records, ok := snap["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 2)

	first, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(0), first["at_ns"])
	assert.Equal(t, map[string]any{"kind": "start"}, first["event"])
}
