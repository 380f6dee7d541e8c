package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
		want  State
	}{
		{
			name:  "start from idle begins loading",
			state: State{Status: StatusIdle},
			event: Event{Kind: EventStart},
			want:  State{Status: StatusLoading, Attempts: 1},
		},
		{
			name:  "start while loading is a no-op",
			state: State{Status: StatusLoading, Attempts: 1},
			event: Event{Kind: EventStart},
			want:  State{Status: StatusLoading, Attempts: 1},
		},
		{
			name:  "start after finish reloads",
			state: State{Status: StatusFinished, Attempts: 1},
			event: Event{Kind: EventStart},
			want:  State{Status: StatusLoading, Attempts: 2},
		},
		{
			name:  "done while loading finishes",
			state: State{Status: StatusLoading, Attempts: 1},
			event: Event{Kind: EventDone},
			want:  State{Status: StatusFinished, Attempts: 1},
		},
		{
			name:  "stray done is a no-op",
			state: State{Status: StatusIdle},
			event: Event{Kind: EventDone},
			want:  State{Status: StatusIdle},
		},
		{
			name:  "reset returns to idle",
			state: State{Status: StatusLoading, Attempts: 2},
			event: Event{Kind: EventReset},
			want:  State{Status: StatusIdle, Attempts: 2},
		},
		{
			name:  "unknown kind is a no-op",
			state: State{Status: StatusIdle},
			event: Event{Kind: EventKind("bogus")},
			want:  State{Status: StatusIdle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.state, tt.event))
		})
	}
}

func TestCodecParseEvent(t *testing.T) {
	codec := Codec()

	e, err := codec.ParseEvent("start", nil)
	assert.NoError(t, err)
	assert.Equal(t, Event{Kind: EventStart}, e)

	_, err = codec.ParseEvent("explode", nil)
	assert.Error(t, err)

	_, err = codec.ParseEvent("start", map[string]any{"x": 1})
	assert.Error(t, err)
}
