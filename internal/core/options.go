package core

import (
	"context"
	"time"
)

// Clock abstracts time retrieval so operation timing and audit timestamps can
// be controlled in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// Logger captures the minimal logging contract used by the engine. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus describes the outcome of an engine operation.
type AuditStatus string

const (
	// AuditStatusSuccess indicates the operation completed.
	AuditStatusSuccess AuditStatus = "success"
	// AuditStatusError indicates the operation was rejected.
	AuditStatusError AuditStatus = "error"
)

// AuditEntry captures one learner action for later review.
type AuditEntry struct {
	Operation  string
	Session    string
	Experiment string
	Step       int
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

// AuditRecorder persists or forwards audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// Outcome describes one finished engine operation and where it left the
// session.
type Outcome struct {
	Experiment string
	Session    string
	Operation  string
	Step       int
	Complete   bool
	Err        error
	Duration   time.Duration
}

// Status reports the audit status for the outcome.
func (o Outcome) Status() AuditStatus {
	if o.Err != nil {
		return AuditStatusError
	}
	return AuditStatusSuccess
}

// MetricsRecorder records finished engine operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, outcome Outcome)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, Outcome) {}

// Tracer starts spans around engine operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's outcome.
type TraceSpan interface {
	End(outcome Outcome)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(Outcome) {}

// EngineOption configures optional engine collaborators.
type EngineOption func(*engineOptions)

type engineOptions struct {
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	historyLimit int
	sessionID    string
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithClock overrides the engine clock.
func WithClock(clock Clock) EngineOption {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder injects an audit recorder.
func WithAuditRecorder(recorder AuditRecorder) EngineOption {
	return func(o *engineOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder injects a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) EngineOption {
	return func(o *engineOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer injects a tracer.
func WithTracer(tracer Tracer) EngineOption {
	return func(o *engineOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithHistoryLimit overrides the undo depth. Non-positive values keep the
// experiment's own limit.
func WithHistoryLimit(limit int) EngineOption {
	return func(o *engineOptions) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithSessionID labels audit entries and logs with a session identifier.
func WithSessionID(id string) EngineOption {
	return func(o *engineOptions) {
		o.sessionID = id
	}
}
