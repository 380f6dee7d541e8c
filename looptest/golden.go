package looptest

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/tidefall/loop/internal/canon"
)

// Codec translates between a caller's opaque State/Event types and the
// generic shapes scenario files and golden traces work with. The engine
// itself never inspects domain types; the codec is where tests pin down a
// stable external representation.
type Codec[S, E any] struct {
	// ParseEvent builds an event from a scenario dispatch step.
	ParseEvent func(name string, args map[string]any) (E, error)

	// EventName reports the name a scenario expectation matches against.
	EventName func(E) string

	// EncodeEvent renders an event for traces and golden files.
	EncodeEvent func(E) map[string]any

	// EncodeState renders a state for traces and golden files.
	EncodeState func(S) map[string]any
}

// Snapshot renders the commit log as a canonical-JSON-able map.
func (h *Harness[S, E]) Snapshot(name string, codec Codec[S, E]) map[string]any {
	records := h.Records()
	list := make([]any, len(records))
	for i, r := range records {
		list[i] = map[string]any{
			"at_ns": int64(r.At),
			"seq":   r.Seq,
			"event": anyMap(codec.EncodeEvent(r.Event)),
			"state": anyMap(codec.EncodeState(r.State)),
		}
	}
	return map[string]any{
		"name":    name,
		"records": list,
	}
}

// AssertGolden compares the canonical trace against
// testdata/golden/{name}.golden. Regenerate with go test -update.
func (h *Harness[S, E]) AssertGolden(t *testing.T, name string, codec Codec[S, E]) {
	t.Helper()

	data, err := canon.Marshal(h.Snapshot(name, codec))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// anyMap widens map values so canon sees plain map[string]any.
func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
