// Package loop implements a unidirectional feedback-loop state engine.
//
// A System owns a single State value that is produced and consumed only
// through typed Events: external callers dispatch events, a caller-supplied
// pure Reducer folds each event into the next state, and declarative
// Feedback units turn committed state changes back into further events by
// running cancellable side effects.
//
// ARCHITECTURE:
//
// Serialized Commit Path:
// All reducer invocations for one System run strictly one at a time, in
// admission order, on an injected Scheduler. This ensures:
//   - Exactly one reducer call per admitted event
//   - Observers see every committed state, in commit order
//   - No data races on state by construction
//
// Event Processing Flow:
//  1. Dispatch or an effect emission enqueues a commit onto the Scheduler
//  2. The Scheduler runs commits FIFO on a single worker
//  3. commit() folds the event through the Reducer and publishes the state
//  4. Each Feedback's input step observes the (state, event) commit, in
//     registration order, and may start, keep, or cancel an effect run
//  5. Effect runs produce events asynchronously; those events re-enter the
//     same serialized queue
//
// The loop has no natural termination; it runs until Close, at which point
// every in-flight effect run is cancelled and no further commits happen.
//
// Schedulers:
// SerialScheduler backs onto a dedicated worker goroutine and is the live,
// production execution context. VirtualScheduler never runs work on its
// own: virtual time advances only through explicit AdvanceBy calls, which
// makes every asynchronous effect pipeline behave like a deterministic,
// replayable linear log. The looptest package builds a given/when/then
// harness on top of it.
//
// Effects are the only sanctioned place for non-deterministic or
// externally visible work. Domain failures are modelled as ordinary events
// carrying a failure payload; the engine has no special error channel.
package loop
