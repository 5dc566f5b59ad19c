package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func timeNow() time.Time { return time.Now() }

// CompiledGraph is an immutable, executable graph. It is safe for concurrent
// use; the node cache is shared by every run of the same instance.
type CompiledGraph[S State[S]] struct {
	name            string
	entry           string
	nodes           map[string]*nodeSpec[S]
	order           []string
	edges           []fixedEdge
	fixed           map[string]string
	branches        map[string]*conditionalEdge[S]
	branchOrder     []string
	interruptBefore map[string]struct{}
	interruptAfter  map[string]struct{}

	checkpointer   Checkpointer
	cache          *nodeCache[S]
	logger         *zap.Logger
	observer       Observer
	tracer         trace.Tracer
	recursionLimit int
	now            func() time.Time
}

// Name returns the graph name.
func (g *CompiledGraph[S]) Name() string { return g.name }

// EntryPoint returns the first node.
func (g *CompiledGraph[S]) EntryPoint() string { return g.entry }

// Nodes returns node names in registration order.
func (g *CompiledGraph[S]) Nodes() []string { return append([]string(nil), g.order...) }

// Checkpointer returns the attached checkpoint store, or nil.
func (g *CompiledGraph[S]) Checkpointer() Checkpointer { return g.checkpointer }

// IsDeferred reports whether name was added with AddDeferredNode.
func (g *CompiledGraph[S]) IsDeferred(name string) bool {
	spec, ok := g.nodes[name]
	return ok && spec.deferred
}

// IncomingEdgeCount counts fixed edges and path-map entries targeting name.
func (g *CompiledGraph[S]) IncomingEdgeCount(name string) int {
	return incomingEdgeCount(name, g.edges, g.branches)
}

// route resolves the successor of from: first fixed edge, else the conditional
// router. A node without outgoing edges ends the run.
func (g *CompiledGraph[S]) route(from string, state S) (string, error) {
	if to, ok := g.fixed[from]; ok {
		return to, nil
	}
	if br, ok := g.branches[from]; ok {
		dest := br.resolve(state)
		if err := g.checkTarget(from, dest); err != nil {
			return "", err
		}
		return dest, nil
	}
	return END, nil
}

func (g *CompiledGraph[S]) checkTarget(from, to string) error {
	if to == END {
		return nil
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: %s routed to %q", ErrNodeNotFound, from, to)
	}
	return nil
}

func (g *CompiledGraph[S]) requireCheckpointer() error {
	if g.checkpointer == nil {
		return fmt.Errorf("%w: graph %s was compiled without one", ErrCheckpointerRequired, g.name)
	}
	return nil
}

// GetState returns the latest checkpointed state of a thread.
func (g *CompiledGraph[S]) GetState(ctx context.Context, cfg CheckpointConfig) (*StateSnapshot[S], error) {
	if err := g.requireCheckpointer(); err != nil {
		return nil, err
	}
	cp, err := g.checkpointer.Get(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for thread %s: %w", cfg.ThreadID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, cfg.ThreadID)
	}
	return snapshotFrom[S](cp)
}

// GetStateHistory returns every checkpoint of a thread, oldest first, each
// paired with the node that was scheduled next.
func (g *CompiledGraph[S]) GetStateHistory(ctx context.Context, cfg CheckpointConfig) ([]StateSnapshot[S], error) {
	if err := g.requireCheckpointer(); err != nil {
		return nil, err
	}
	cps, err := g.checkpointer.List(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for thread %s: %w", cfg.ThreadID, err)
	}
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, cfg.ThreadID)
	}
	out := make([]StateSnapshot[S], 0, len(cps))
	for _, cp := range cps {
		snap, err := snapshotFrom[S](cp)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.ID, err)
		}
		out = append(out, *snap)
	}
	return out, nil
}

// UpdateState merges delta into the thread's latest state without running a
// node and records the result as a new checkpoint. The pending next node and
// interrupt are kept, so the next invocation resumes where the thread paused.
// A thread without checkpoints starts from the zero state at the entry point.
func (g *CompiledGraph[S]) UpdateState(ctx context.Context, cfg CheckpointConfig, delta S) (*StateSnapshot[S], error) {
	if err := g.requireCheckpointer(); err != nil {
		return nil, err
	}
	if cfg.ThreadID == "" {
		return nil, ErrInvalidThread
	}
	latest, err := g.checkpointer.Get(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for thread %s: %w", cfg.ThreadID, err)
	}

	var base S
	next := g.entry
	step := 0
	var intr *InterruptRecord
	var sends []PendingSend
	if latest != nil {
		if base, err = decodeState[S](latest.State); err != nil {
			return nil, err
		}
		next = latest.NextNode
		step = latest.Step
		intr = latest.Interrupt
		sends = latest.Sends
	}

	merged := base.Merge(delta)
	data, err := encodeState(merged)
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  cfg.ThreadID,
		Step:      step,
		State:     data,
		NextNode:  next,
		Source:    SourceUpdate,
		Interrupt: intr,
		Sends:     sends,
		CreatedAt: g.now(),
	}
	if err := g.checkpointer.Put(ctx, cfg, cp); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", cfg.ThreadID, err)
	}
	g.observer.OnCheckpoint(g.name, SourceUpdate)
	g.logger.Info("thread state updated",
		zap.String("thread_id", cfg.ThreadID),
		zap.String("next", next),
	)
	return snapshotFrom[S](cp)
}
