package looptest

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a data-driven verification: a sequence of dispatch and
// advance steps against a fresh subject, followed by expectations over the
// committed trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name when traces are compared.
	Name string `yaml:"name"`

	// Description explains what this scenario verifies.
	Description string `yaml:"description,omitempty"`

	// Steps run in order. Each step is either a dispatch or an advance.
	Steps []Step `yaml:"steps"`

	// Expect validates the run after all steps have executed.
	Expect Expect `yaml:"expect,omitempty"`
}

// Step is one when-clause entry. Exactly one of Dispatch or Advance must
// be set. A dispatch step commits at the current virtual instant (the
// runner advances by zero after enqueueing).
type Step struct {
	// Dispatch names an event, translated by the runner's Codec.
	Dispatch string `yaml:"dispatch,omitempty"`

	// Args carries event arguments for the codec.
	Args map[string]any `yaml:"args,omitempty"`

	// Advance moves virtual time forward, e.g. "10ms".
	Advance Duration `yaml:"advance,omitempty"`
}

// Expect holds scenario expectations.
type Expect struct {
	// Events is the complete expected event-name log, in commit order.
	Events []string `yaml:"events,omitempty"`

	// FinalState is a subset match against the encoded final state: only
	// the listed fields are compared.
	FinalState map[string]any `yaml:"final_state,omitempty"`

	// Commits, when non-nil, is the exact expected commit count.
	Commits *int `yaml:"commits,omitempty"`
}

// Duration parses YAML strings like "10ms" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("advance must be a duration string: %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	if dur < 0 {
		return fmt.Errorf("negative duration %q", s)
	}
	*d = Duration(dur)
	return nil
}

// Load reads and validates a scenario file. Unknown fields are errors.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, st := range s.Steps {
		hasDispatch := st.Dispatch != ""
		hasAdvance := st.Advance != 0
		if hasDispatch == hasAdvance {
			return fmt.Errorf("step %d: exactly one of dispatch or advance required", i)
		}
		if !hasDispatch && len(st.Args) > 0 {
			return fmt.Errorf("step %d: args without dispatch", i)
		}
	}
	return nil
}

// Runner executes scenarios: New builds a fresh harness per run and Codec
// translates between scenario data and the domain types.
type Runner[S, E any] struct {
	New   func() *Harness[S, E]
	Codec Codec[S, E]
}

// ResultRecord is one committed event in encoded form.
type ResultRecord struct {
	AtNS  int64          `json:"at_ns"`
	Seq   int64          `json:"seq"`
	Event map[string]any `json:"event"`
	State map[string]any `json:"state"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string         `json:"scenario"`
	Records  []ResultRecord `json:"records"`
	Final    map[string]any `json:"final_state"`
	Failures []string       `json:"failures,omitempty"`
}

// Pass reports whether every expectation held.
func (r *Result) Pass() bool { return len(r.Failures) == 0 }

// Run executes the scenario against a fresh subject and evaluates its
// expectations. Expectation mismatches are Failures, not errors; errors are
// reserved for malformed scenarios.
func (r *Runner[S, E]) Run(s *Scenario) (*Result, error) {
	h := r.New()
	defer h.Close()

	for i, st := range s.Steps {
		switch {
		case st.Dispatch != "":
			e, err := r.Codec.ParseEvent(st.Dispatch, st.Args)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			h.Dispatch(e)
			h.AdvanceBy(0)
		default:
			h.AdvanceBy(time.Duration(st.Advance))
		}
	}

	result := &Result{
		Scenario: s.Name,
		Final:    r.Codec.EncodeState(h.Current()),
	}
	for _, rec := range h.Records() {
		result.Records = append(result.Records, ResultRecord{
			AtNS:  int64(rec.At),
			Seq:   rec.Seq,
			Event: r.Codec.EncodeEvent(rec.Event),
			State: r.Codec.EncodeState(rec.State),
		})
	}

	r.evaluate(s, h, result)
	return result, nil
}

// RunT executes the scenario and fails the test on any expectation miss.
func (r *Runner[S, E]) RunT(t *testing.T, s *Scenario) *Result {
	t.Helper()
	result, err := r.Run(s)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}
	for _, f := range result.Failures {
		t.Errorf("scenario %s: %s", s.Name, f)
	}
	return result
}

func (r *Runner[S, E]) evaluate(s *Scenario, h *Harness[S, E], result *Result) {
	if s.Expect.Commits != nil && len(result.Records) != *s.Expect.Commits {
		result.Failures = append(result.Failures,
			fmt.Sprintf("expected %d commits, got %d", *s.Expect.Commits, len(result.Records)))
	}

	if s.Expect.Events != nil {
		got := make([]string, 0, len(result.Records))
		for _, e := range h.Events() {
			got = append(got, r.Codec.EventName(e))
		}
		if !equalStrings(s.Expect.Events, got) {
			result.Failures = append(result.Failures,
				fmt.Sprintf("expected events %v, got %v", s.Expect.Events, got))
		}
	}

	for _, miss := range matchSubset(s.Expect.FinalState, result.Final) {
		result.Failures = append(result.Failures, "final_state: "+miss)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// matchSubset checks that every expected field is present and equal in
// got; extra fields in got are ignored. Numbers compare loosely so YAML
// ints match encoded int64s and floats.
func matchSubset(expect, got map[string]any) []string {
	var misses []string
	for k, want := range expect {
		actual, ok := got[k]
		if !ok {
			misses = append(misses, fmt.Sprintf("missing field %q", k))
			continue
		}
		if !looseEqual(want, actual) {
			misses = append(misses, fmt.Sprintf("field %q: expected %v, got %v", k, want, actual))
		}
	}
	return misses
}

func looseEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
