package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/ctxkeys"
)

// ResultStatus distinguishes a finished run from a paused one.
type ResultStatus string

const (
	StatusComplete    ResultStatus = "complete"
	StatusInterrupted ResultStatus = "interrupted"
)

// GraphResult is the terminal value of one invocation. An interrupted run is a
// successful outcome, not an error.
type GraphResult[S any] struct {
	Status    ResultStatus
	State     S
	Interrupt *InterruptInfo
	ThreadID  string
	RunID     string
	// Steps is the number of node executions performed by this invocation.
	Steps int
}

// IsInterrupted reports whether the run paused.
func (r *GraphResult[S]) IsInterrupted() bool { return r.Status == StatusInterrupted }

// stepEmitter observes every completed step; before is the state prior to the
// step's merge.
type stepEmitter[S any] func(node string, before, after S, custom []any) error

type runner[S State[S]] struct {
	g        *CompiledGraph[S]
	logger   *zap.Logger
	cfg      CheckpointConfig
	runID    string
	opts     runOptions
	emit     stepEmitter[S]
	arrivals map[string]int

	step       int
	executions int
	skipBefore bool
	hasResume  bool
	delivered  bool
	custom     []any

	// queued holds the fan-out targets still to run after the current step;
	// resumeSends holds the ones restored from a checkpoint.
	queued      []SendTarget[S]
	resumeSends []SendTarget[S]
}

// Invoke runs the graph until it reaches END, pauses on an interrupt or fails.
// With a checkpointer and a thread whose latest checkpoint still has a node
// pending, the run resumes from that checkpoint and input is ignored.
func (g *CompiledGraph[S]) Invoke(ctx context.Context, input S, opts ...RunOption) (*GraphResult[S], error) {
	return g.run(ctx, input, opts, nil)
}

func (g *CompiledGraph[S]) run(ctx context.Context, input S, opts []RunOption, emit stepEmitter[S]) (*GraphResult[S], error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.NewString()
	}
	if ro.threadID == "" && g.checkpointer != nil {
		ro.threadID = uuid.NewString()
	}

	ctx = ctxkeys.WithRunID(ctx, ro.runID)
	fields := []zap.Field{zap.String("run_id", ro.runID)}
	if ro.threadID != "" {
		ctx = ctxkeys.WithThreadID(ctx, ro.threadID)
		fields = append(fields, zap.String("thread_id", ro.threadID))
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	ctx, span := g.tracer.Start(ctx, "graph.invoke", trace.WithAttributes(
		attribute.String("graph.name", g.name),
		attribute.String("graph.run_id", ro.runID),
		attribute.String("graph.thread_id", ro.threadID),
	))
	defer span.End()

	r := &runner[S]{
		g:        g,
		logger:   g.logger.With(fields...),
		cfg:      CheckpointConfig{ThreadID: ro.threadID},
		runID:    ro.runID,
		opts:     ro,
		emit:     emit,
		arrivals: make(map[string]int),
	}

	start := time.Now()
	g.observer.OnRunStart(g.name)
	result, err := r.execute(ctx, input)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.observer.OnRunEnd(g.name, RunStatusError, duration)
		r.logger.Error("graph run failed",
			zap.Int("steps", r.executions),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	status := RunStatusComplete
	if result.IsInterrupted() {
		status = RunStatusInterrupted
	}
	span.SetAttributes(
		attribute.String("graph.status", status),
		attribute.Int("graph.steps", r.executions),
	)
	g.observer.OnRunEnd(g.name, status, duration)
	r.logger.Info("graph run finished",
		zap.String("status", status),
		zap.Int("steps", r.executions),
		zap.Duration("duration", duration),
	)
	return result, nil
}

func (r *runner[S]) execute(ctx context.Context, input S) (*GraphResult[S], error) {
	state, current, err := r.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if sends := r.resumeSends; len(sends) > 0 {
		r.resumeSends = nil
		res, merged, next, err := r.dispatch(ctx, state, sends)
		if res != nil || err != nil {
			return res, err
		}
		state, current = merged, next
	}

	for {
		if current == END {
			return r.result(StatusComplete, state, nil), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := r.g.interruptBefore[current]; ok && !r.skipBefore {
			return r.pause(ctx, state, InterruptInfo{Node: current, Phase: PhaseBefore})
		}
		r.skipBefore = false

		out, err := r.invoke(ctx, current, state)
		if err != nil {
			return nil, err
		}

		cmd, isCmd := out.Command()
		if !isCmd {
			merged := state.Merge(out.State())
			next, err := r.g.route(current, merged)
			if err != nil {
				return nil, err
			}
			if res, err := r.finishStep(ctx, current, state, merged, next); res != nil || err != nil {
				return res, err
			}
			state, current = merged, next
			continue
		}

		switch cmd.Kind {
		case CommandInterrupt:
			if r.g.checkpointer == nil {
				return nil, fmt.Errorf("%w: node %s requested an interrupt", ErrCheckpointerRequired, current)
			}
			return r.pause(ctx, state, InterruptInfo{Node: current, Phase: PhaseNode, Value: cmd.Value})

		case CommandEnd:
			if err := r.commit(ctx, current, state, state, END, nil); err != nil {
				return nil, err
			}
			return r.result(StatusComplete, state, nil), nil

		case CommandGoto, CommandGotoWithUpdate:
			if cmd.Node == "" {
				return nil, fmt.Errorf("%w: node %s returned %s without a target", ErrInvalidCommand, current, cmd.Kind)
			}
			if err := r.g.checkTarget(current, cmd.Node); err != nil {
				return nil, err
			}
			merged := state
			if cmd.Kind == CommandGotoWithUpdate {
				merged = state.Merge(cmd.Update)
			}
			if res, err := r.finishStep(ctx, current, state, merged, cmd.Node); res != nil || err != nil {
				return res, err
			}
			state, current = merged, cmd.Node

		case CommandUpdate:
			merged := state.Merge(cmd.Update)
			next, err := r.g.route(current, merged)
			if err != nil {
				return nil, err
			}
			if res, err := r.finishStep(ctx, current, state, merged, next); res != nil || err != nil {
				return res, err
			}
			state, current = merged, next

		case CommandSend:
			res, merged, next, err := r.send(ctx, current, state, cmd.Targets)
			if res != nil || err != nil {
				return res, err
			}
			state, current = merged, next

		default:
			return nil, fmt.Errorf("%w: node %s returned %s", ErrInvalidCommand, current, cmd.Kind)
		}
	}
}

// prepare decides the starting state and node, resuming from the thread's
// checkpoint when one is pending.
func (r *runner[S]) prepare(ctx context.Context, input S) (S, string, error) {
	g := r.g
	if g.checkpointer == nil || r.cfg.ThreadID == "" {
		return input, g.entry, nil
	}

	latest, err := g.checkpointer.Get(ctx, r.cfg)
	if err != nil {
		return input, "", fmt.Errorf("load checkpoint for thread %s: %w", r.cfg.ThreadID, err)
	}

	if latest != nil && latest.Pending() {
		state, err := decodeState[S](latest.State)
		if err != nil {
			return input, "", fmt.Errorf("checkpoint %s: %w", latest.ID, err)
		}
		sends, err := decodeSends[S](latest.Sends)
		if err != nil {
			return input, "", fmt.Errorf("checkpoint %s: %w", latest.ID, err)
		}
		r.step = latest.Step
		r.resumeSends = sends

		intr := latest.Interrupt
		switch {
		case intr != nil && intr.Phase != PhaseAfter:
			// the paused node has not run yet
			r.skipBefore = true
			r.hasResume = r.opts.hasResume
		case r.opts.hasResume:
			r.logger.Debug("resume value ignored, no node is waiting for it")
		}
		r.logger.Info("resuming thread",
			zap.String("next", latest.NextNode),
			zap.Int("step", latest.Step),
			zap.Bool("interrupted", intr != nil),
			zap.Int("pending_sends", len(sends)),
		)

		if latest.NextNode == "" || latest.NextNode == END {
			// paused after the final node: close the thread without running anything
			if err := r.checkpoint(ctx, state, END, SourceLoop, nil); err != nil {
				return input, "", err
			}
			return state, END, nil
		}
		return state, latest.NextNode, nil
	}

	state := input
	if latest != nil {
		prev, err := decodeState[S](latest.State)
		if err != nil {
			return input, "", fmt.Errorf("checkpoint %s: %w", latest.ID, err)
		}
		state = prev.Merge(input)
		r.step = latest.Step + 1
	}
	if err := r.checkpoint(ctx, state, g.entry, SourceInput, nil); err != nil {
		return input, "", err
	}
	return state, g.entry, nil
}

// invoke runs one node, consulting the cache when the node has a policy.
func (r *runner[S]) invoke(ctx context.Context, name string, input S) (NodeOutput[S], error) {
	spec, ok := r.g.nodes[name]
	if !ok {
		return NodeOutput[S]{}, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	r.executions++
	if r.executions > r.g.recursionLimit {
		return NodeOutput[S]{}, fmt.Errorf("%w: %d steps without reaching %s (next node %s)",
			ErrRecursionLimit, r.g.recursionLimit, END, name)
	}

	nodeCtx := ctxkeys.WithNode(ctx, name)
	nodeCtx, span := r.g.tracer.Start(nodeCtx, "graph.node", trace.WithAttributes(
		attribute.String("graph.name", r.g.name),
		attribute.String("graph.node", name),
		attribute.Int("graph.step", r.step+1),
	))
	defer span.End()

	resuming := r.hasResume && !r.delivered
	if resuming {
		nodeCtx = withResumeValue(nodeCtx, r.opts.resume)
	}
	r.delivered = true

	var sink *customSink
	if r.emit != nil {
		sink = &customSink{}
		nodeCtx = context.WithValue(nodeCtx, customSinkKey{}, sink)
	}

	r.logger.Debug("executing node", zap.String("node", name), zap.Int("step", r.step+1))
	start := time.Now()
	out, cached, err := r.process(nodeCtx, spec, input, resuming)
	duration := time.Since(start)
	r.g.observer.OnNodeEnd(r.g.name, name, duration, err)
	if sink != nil {
		r.custom = sink.drain()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("node execution failed",
			zap.String("node", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return NodeOutput[S]{}, &NodeError{Node: name, Step: r.step + 1, Err: err}
	}

	span.SetAttributes(attribute.Bool("graph.cache_hit", cached))
	r.logger.Debug("node completed",
		zap.String("node", name),
		zap.Duration("duration", duration),
		zap.Bool("cached", cached),
	)
	return out, nil
}

// process runs the node through its cache. A node receiving a resume value
// always runs, since its output depends on that value rather than on input.
func (r *runner[S]) process(ctx context.Context, spec *nodeSpec[S], input S, resuming bool) (NodeOutput[S], bool, error) {
	if spec.cache == nil || resuming {
		out, err := spec.node.Process(ctx, input)
		return out, false, err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return NodeOutput[S]{}, false, fmt.Errorf("encode cache key: %w", err)
	}
	out, hit, err := r.g.cache.do(cacheKey(spec.name, raw), spec.cache.TTL, func() (NodeOutput[S], error) {
		return spec.node.Process(ctx, input)
	})
	if err != nil {
		return out, false, err
	}
	if hit {
		r.g.observer.OnCacheHit(r.g.name, spec.name)
	} else {
		r.g.observer.OnCacheMiss(r.g.name, spec.name)
	}
	return out, hit, nil
}

// send runs fan-out targets in order. Each target receives its payload as
// input and may only return a state or an Update; its delta is merged into the
// accumulated state. Routing continues from the last target's edges.
func (r *runner[S]) send(ctx context.Context, issuer string, state S, targets []SendTarget[S]) (*GraphResult[S], S, string, error) {
	if len(targets) == 0 {
		next, err := r.g.route(issuer, state)
		if err != nil {
			return nil, state, "", err
		}
		res, err := r.finishStep(ctx, issuer, state, state, next)
		return res, state, next, err
	}
	for _, t := range targets {
		if t.Node == END || t.Node == "" {
			return nil, state, "", fmt.Errorf("%w: node %s sent to %q", ErrInvalidCommand, issuer, t.Node)
		}
		if err := r.g.checkTarget(issuer, t.Node); err != nil {
			return nil, state, "", err
		}
	}

	r.queued = targets
	res, err := r.finishStep(ctx, issuer, state, state, targets[0].Node)
	r.queued = nil
	if res != nil || err != nil {
		return res, state, "", err
	}
	return r.dispatch(ctx, state, targets)
}

// dispatch runs the targets of a fan-out. Every step's checkpoint carries the
// targets that remain, so a paused or failed fan-out resumes with the right
// payloads.
func (r *runner[S]) dispatch(ctx context.Context, state S, targets []SendTarget[S]) (*GraphResult[S], S, string, error) {
	defer func() { r.queued = nil }()

	var next string
	for i, t := range targets {
		out, err := r.invoke(ctx, t.Node, t.Payload)
		if err != nil {
			return nil, state, "", err
		}
		delta, err := sendDelta(t.Node, out)
		if err != nil {
			return nil, state, "", err
		}
		merged := state.Merge(delta)
		r.queued = targets[i+1:]
		if len(r.queued) > 0 {
			next = r.queued[0].Node
		} else if next, err = r.g.route(t.Node, merged); err != nil {
			return nil, state, "", err
		}
		res, err := r.finishStep(ctx, t.Node, state, merged, next)
		state = merged
		if res != nil || err != nil {
			return res, state, next, err
		}
	}
	return nil, state, next, nil
}

func sendDelta[S any](node string, out NodeOutput[S]) (S, error) {
	cmd, ok := out.Command()
	if !ok {
		return out.State(), nil
	}
	if cmd.Kind == CommandUpdate {
		return cmd.Update, nil
	}
	var zero S
	return zero, fmt.Errorf("%w: send target %s returned %s", ErrInvalidCommand, node, cmd.Kind)
}

// finishStep commits a completed step and applies interrupt_after. A non-nil
// result means the run paused; the step's checkpoint then records the pause.
func (r *runner[S]) finishStep(ctx context.Context, node string, before, after S, next string) (*GraphResult[S], error) {
	_, pause := r.g.interruptAfter[node]
	var rec *InterruptRecord
	if pause {
		rec = &InterruptRecord{Node: node, Phase: PhaseAfter}
	}
	if err := r.commit(ctx, node, before, after, next, rec); err != nil {
		return nil, err
	}
	if !pause {
		return nil, nil
	}
	r.g.observer.OnInterrupt(r.g.name, node, PhaseAfter)
	r.logger.Info("graph run interrupted",
		zap.String("node", node),
		zap.String("phase", string(PhaseAfter)),
		zap.String("next", next),
	)
	return r.result(StatusInterrupted, after, &InterruptInfo{Node: node, Phase: PhaseAfter}), nil
}

// commit persists the step's checkpoint, then notifies stream subscribers.
func (r *runner[S]) commit(ctx context.Context, node string, before, after S, next string, intr *InterruptRecord) error {
	r.step++
	source := SourceLoop
	if intr != nil {
		source = SourceInterrupt
	}
	if err := r.checkpoint(ctx, after, next, source, intr); err != nil {
		return err
	}
	if spec, ok := r.g.nodes[next]; ok && spec.deferred {
		r.arrivals[next]++
		if r.arrivals[next] >= r.g.IncomingEdgeCount(next) {
			r.logger.Debug("deferred node ready",
				zap.String("node", next),
				zap.Int("arrivals", r.arrivals[next]),
			)
		}
	}
	if r.emit != nil {
		custom := r.custom
		r.custom = nil
		if err := r.emit(node, before, after, custom); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner[S]) checkpoint(ctx context.Context, state S, next string, source CheckpointSource, intr *InterruptRecord) error {
	if r.g.checkpointer == nil || r.cfg.ThreadID == "" {
		return nil
	}
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	sends, err := encodeSends(r.queued)
	if err != nil {
		return err
	}
	cp := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  r.cfg.ThreadID,
		Step:      r.step,
		State:     data,
		NextNode:  next,
		Source:    source,
		Interrupt: intr,
		Sends:     sends,
		CreatedAt: r.g.now(),
		Metadata:  map[string]string{"run_id": r.runID},
	}
	if err := r.g.checkpointer.Put(ctx, r.cfg, cp); err != nil {
		return fmt.Errorf("checkpoint %s: %w", r.cfg.ThreadID, err)
	}
	r.g.observer.OnCheckpoint(r.g.name, source)
	return nil
}

// pause records an interrupt checkpoint whose next node is the paused node, so
// resuming runs it rather than its successor.
func (r *runner[S]) pause(ctx context.Context, state S, intr InterruptInfo) (*GraphResult[S], error) {
	rec := &InterruptRecord{Node: intr.Node, Phase: intr.Phase}
	if intr.Value != nil {
		raw, err := json.Marshal(intr.Value)
		if err != nil {
			return nil, fmt.Errorf("encode interrupt value of %s: %w", intr.Node, err)
		}
		rec.Value = raw
	}
	if err := r.checkpoint(ctx, state, intr.Node, SourceInterrupt, rec); err != nil {
		return nil, err
	}
	r.g.observer.OnInterrupt(r.g.name, intr.Node, intr.Phase)
	r.logger.Info("graph run interrupted",
		zap.String("node", intr.Node),
		zap.String("phase", string(intr.Phase)),
	)
	return r.result(StatusInterrupted, state, &intr), nil
}

func (r *runner[S]) result(status ResultStatus, state S, intr *InterruptInfo) *GraphResult[S] {
	return &GraphResult[S]{
		Status:    status,
		State:     state,
		Interrupt: intr,
		ThreadID:  r.cfg.ThreadID,
		RunID:     r.runID,
		Steps:     r.executions,
	}
}
