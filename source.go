package loop

import (
	"context"
	"time"
)

// Source is a lazy, cancellable sequence of events: nothing happens until
// the engine starts it, and a cancelled run stops producing events.
//
// A Source is started with the run's context, the owning System's Scheduler
// and an emit function. Starting must not block: immediate work is
// submitted through the scheduler and long-running work belongs on its own
// goroutine (see Go). All timing must go through the scheduler, never
// time.Sleep, so that sources stay virtual-time testable.
//
// Events passed to emit re-enter the System's serialized queue. Once the
// run's context is cancelled, emitted events are dropped before they reach
// the reducer; the ctx.Err checks inside the combinators are resource
// hygiene, not the correctness mechanism.
type Source[E any] func(ctx context.Context, sc Scheduler, emit func(E))

// Emit produces the given events, in order, at the next scheduler tick.
func Emit[E any](events ...E) Source[E] {
	return func(ctx context.Context, sc Scheduler, emit func(E)) {
		sc.Schedule(func() {
			if ctx.Err() != nil {
				return
			}
			for _, e := range events {
				emit(e)
			}
		})
	}
}

// EmitAfter produces e once d has elapsed on the System's scheduler.
func EmitAfter[E any](d time.Duration, e E) Source[E] {
	return func(ctx context.Context, sc Scheduler, emit func(E)) {
		sc.ScheduleAfter(d, func() {
			if ctx.Err() != nil {
				return
			}
			emit(e)
		})
	}
}

// Never produces no events. Useful as an explicit "no effect" branch.
func Never[E any]() Source[E] {
	return func(context.Context, Scheduler, func(E)) {}
}

// Merge starts every source in the same run; their events interleave in
// scheduler admission order and share one cancellation.
func Merge[E any](sources ...Source[E]) Source[E] {
	return func(ctx context.Context, sc Scheduler, emit func(E)) {
		for _, src := range sources {
			src(ctx, sc, emit)
		}
	}
}

// Go runs fn on its own goroutine. This is the bridge to real asynchronous
// work (network calls, OS waits): fn may block, must watch ctx, and should
// encode failures as ordinary events rather than panicking.
//
// Events emitted by fn are serialized like any other; under a
// VirtualScheduler they are admitted at the virtual instant of the next
// advance, so purely virtual-time tests should prefer Emit/EmitAfter.
func Go[E any](fn func(ctx context.Context, emit func(E))) Source[E] {
	return func(ctx context.Context, _ Scheduler, emit func(E)) {
		go fn(ctx, emit)
	}
}
