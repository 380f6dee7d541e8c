// Package looptest provides a given/when/then harness for verifying
// feedback-loop systems under virtual time.
//
// Given: construct the subject with New, which wires the reducer and
// feedbacks to a VirtualScheduler and records every commit as an ordered
// (virtual time, seq, event, state) tuple.
//
// When: interleave Dispatch calls with explicit AdvanceBy calls. No work
// runs outside an advance, so the exact virtual instant of every commit is
// under test control.
//
// Then: assert against Records, Events, States and the effect log, or
// compare a canonical trace against a golden file. Sequential verifications
// on one harness keep accumulating from the same state and virtual clock;
// there is no implicit reset.
//
// Scenario files (YAML) drive the same harness data-first; see Runner.
package looptest
