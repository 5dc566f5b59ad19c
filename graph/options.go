package graph

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultRecursionLimit is the number of node executions one invocation may
// perform before it fails with ErrRecursionLimit.
const DefaultRecursionLimit = 100

type compileOptions struct {
	checkpointer   Checkpointer
	logger         *zap.Logger
	observer       Observer
	tracer         trace.Tracer
	recursionLimit int
	now            func() time.Time
}

// CompileOption configures a compiled graph.
type CompileOption func(*compileOptions)

// WithCheckpointer attaches a checkpoint store. It is required for interrupts
// and for state inspection.
func WithCheckpointer(cp Checkpointer) CompileOption {
	return func(o *compileOptions) { o.checkpointer = cp }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) CompileOption {
	return func(o *compileOptions) { o.logger = logger }
}

// WithObserver registers an execution observer, e.g. a metrics collector.
func WithObserver(obs Observer) CompileOption {
	return func(o *compileOptions) { o.observer = obs }
}

// WithTracer overrides the OpenTelemetry tracer. The default comes from the
// global tracer provider.
func WithTracer(tracer trace.Tracer) CompileOption {
	return func(o *compileOptions) { o.tracer = tracer }
}

// WithRecursionLimit overrides DefaultRecursionLimit. Values below 1 are ignored.
func WithRecursionLimit(n int) CompileOption {
	return func(o *compileOptions) {
		if n > 0 {
			o.recursionLimit = n
		}
	}
}

// withClock replaces time.Now for cache expiry and checkpoint timestamps.
func withClock(now func() time.Time) CompileOption {
	return func(o *compileOptions) { o.now = now }
}

type runOptions struct {
	threadID  string
	runID     string
	resume    any
	hasResume bool
}

// RunOption configures a single invocation.
type RunOption func(*runOptions)

// WithConfig selects the checkpoint thread.
func WithConfig(cfg CheckpointConfig) RunOption {
	return func(o *runOptions) { o.threadID = cfg.ThreadID }
}

// WithThreadID is shorthand for WithConfig(CheckpointConfig{ThreadID: id}).
func WithThreadID(id string) RunOption {
	return func(o *runOptions) { o.threadID = id }
}

// WithRunID sets the run id used in logs and spans. A uuid is generated otherwise.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithResume delivers value to the node that resumes a paused thread. It is the
// caller side of a Resume command; the node reads it with ResumeValue.
func WithResume(value any) RunOption {
	return func(o *runOptions) {
		o.resume = value
		o.hasResume = true
	}
}

// ResumeCommand returns the Resume command a caller hands back to a paused thread.
func ResumeCommand[S any](value any) Command[S] {
	return Command[S]{Kind: CommandResume, Value: value}
}

// WithCommand applies a caller command to the invocation. Only CommandResume
// is accepted from callers; other kinds are ignored.
func WithCommand[S any](cmd Command[S]) RunOption {
	return func(o *runOptions) {
		if cmd.Kind == CommandResume {
			o.resume = cmd.Value
			o.hasResume = true
		}
	}
}
