package loop

import "log/slog"

// Observer receives engine lifecycle callbacks for logging, metrics and
// test instrumentation.
//
// OnCommit and the effect callbacks run on the System's serialized worker;
// implementations must be fast and non-blocking or they will delay every
// subsequent commit.
type Observer[S, E any] interface {
	// OnCommit is called after the reducer has run and the new state has
	// been published, before feedback inputs see the commit.
	OnCommit(c Commit[S, E])

	// OnEffectStart is called when a feedback starts an effect run.
	OnEffectStart(feedback string)

	// OnEffectCancel is called when a run is cancelled by supersession or
	// System teardown. It is not called for runs that simply finish.
	OnEffectCancel(feedback string)

	// OnClose is called once, when the System transitions to closed.
	OnClose()
}

// NoopObserver is the default Observer; it does nothing.
type NoopObserver[S, E any] struct{}

func (NoopObserver[S, E]) OnCommit(Commit[S, E]) {}
func (NoopObserver[S, E]) OnEffectStart(string)  {}
func (NoopObserver[S, E]) OnEffectCancel(string) {}
func (NoopObserver[S, E]) OnClose()              {}

// LoggingObserver logs every callback through slog at debug level, with
// commit sequence numbers and value types for correlation.
type LoggingObserver[S, E any] struct {
	Logger *slog.Logger
}

// NewLoggingObserver returns an observer logging to logger, or the slog
// default when logger is nil.
func NewLoggingObserver[S, E any](logger *slog.Logger) LoggingObserver[S, E] {
	if logger == nil {
		logger = slog.Default()
	}
	return LoggingObserver[S, E]{Logger: logger}
}

func (o LoggingObserver[S, E]) OnCommit(c Commit[S, E]) {
	o.Logger.Debug("commit",
		"seq", c.Seq,
		"event", c.Event,
		"state", c.State,
	)
}

func (o LoggingObserver[S, E]) OnEffectStart(feedback string) {
	o.Logger.Debug("effect start", "feedback", feedback)
}

func (o LoggingObserver[S, E]) OnEffectCancel(feedback string) {
	o.Logger.Debug("effect cancel", "feedback", feedback)
}

func (o LoggingObserver[S, E]) OnClose() {
	o.Logger.Debug("system closed")
}

// CompositeObserver fans callbacks out to several observers, in order.
type CompositeObserver[S, E any] struct {
	observers []Observer[S, E]
}

// NewCompositeObserver forwards to each non-nil observer in obs.
func NewCompositeObserver[S, E any](obs ...Observer[S, E]) CompositeObserver[S, E] {
	filtered := make([]Observer[S, E], 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return CompositeObserver[S, E]{observers: filtered}
}

func (c CompositeObserver[S, E]) OnCommit(commit Commit[S, E]) {
	for _, o := range c.observers {
		o.OnCommit(commit)
	}
}

func (c CompositeObserver[S, E]) OnEffectStart(feedback string) {
	for _, o := range c.observers {
		o.OnEffectStart(feedback)
	}
}

func (c CompositeObserver[S, E]) OnEffectCancel(feedback string) {
	for _, o := range c.observers {
		o.OnEffectCancel(feedback)
	}
}

func (c CompositeObserver[S, E]) OnClose() {
	for _, o := range c.observers {
		o.OnClose()
	}
}
