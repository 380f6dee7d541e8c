// Package demo defines the loader state machine used by the loopctl CLI,
// the scenario tests and the package examples: a three-state loader whose
// load effect completes after a configurable delay.
package demo

import (
	"fmt"
	"time"

	"github.com/tidefall/loop"
	"github.com/tidefall/loop/looptest"
)

// Status is the loader's phase.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusFinished Status = "finished"
)

// State is the loader snapshot. Attempts counts accepted start events, so
// "what is in progress" is answerable from the state alone.
type State struct {
	Status   Status
	Attempts int
}

// EventKind tags the loader's event union.
type EventKind string

const (
	// EventStart begins a load. Ignored while one is in flight.
	EventStart EventKind = "start"
	// EventDone is emitted by the load effect on completion.
	EventDone EventKind = "done"
	// EventReset returns the loader to idle, cancelling any load.
	EventReset EventKind = "reset"
)

// Event is the loader's event union.
type Event struct {
	Kind EventKind
}

// Initial is the starting state.
func Initial() State {
	return State{Status: StatusIdle}
}

// Reduce folds one event. Total over the union: unknown kinds are explicit
// no-ops.
func Reduce(s State, e Event) State {
	switch e.Kind {
	case EventStart:
		if s.Status == StatusLoading {
			return s
		}
		s.Status = StatusLoading
		s.Attempts++
		return s
	case EventDone:
		if s.Status != StatusLoading {
			return s
		}
		s.Status = StatusFinished
		return s
	case EventReset:
		s.Status = StatusIdle
		return s
	default:
		return s
	}
}

// DefaultLoadDelay is how long the load effect takes unless overridden.
const DefaultLoadDelay = 10 * time.Millisecond

// Feedbacks returns the loader's single feedback: a lensed effect keyed on
// the loading status that emits done after delay. A reset mid-load drops
// the lens to absent, which cancels the in-flight effect.
func Feedbacks(delay time.Duration) []loop.Feedback[State, Event] {
	loader := loop.Lensing[State, Status, Event]("loader",
		func(s State) (Status, bool) {
			return s.Status, s.Status == StatusLoading
		},
		func(Status) loop.Source[Event] {
			return loop.EmitAfter(delay, Event{Kind: EventDone})
		},
	)
	return []loop.Feedback[State, Event]{loader}
}

// NewHarness builds a virtual-time harness around the loader.
func NewHarness(delay time.Duration) *looptest.Harness[State, Event] {
	return looptest.New(Initial(), Reduce, Feedbacks(delay))
}

// Codec translates loader events and states for scenarios and traces.
func Codec() looptest.Codec[State, Event] {
	return looptest.Codec[State, Event]{
		ParseEvent: func(name string, args map[string]any) (Event, error) {
			if len(args) > 0 {
				return Event{}, fmt.Errorf("loader events take no args, got %v", args)
			}
			switch kind := EventKind(name); kind {
			case EventStart, EventDone, EventReset:
				return Event{Kind: kind}, nil
			default:
				return Event{}, fmt.Errorf("unknown loader event %q", name)
			}
		},
		EventName: func(e Event) string {
			return string(e.Kind)
		},
		EncodeEvent: func(e Event) map[string]any {
			return map[string]any{"kind": string(e.Kind)}
		},
		EncodeState: func(s State) map[string]any {
			return map[string]any{
				"status":   string(s.Status),
				"attempts": s.Attempts,
			}
		},
	}
}
