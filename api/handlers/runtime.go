package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/BaSui01/agentgraph/api"
	"github.com/BaSui01/agentgraph/graph"
)

// =============================================================================
// 🧩 图运行时适配
// =============================================================================

// Runtime is a compiled graph with its state type erased to JSON, so graphs of
// different state types can be served by one handler.
type Runtime interface {
	Name() string
	Info() api.GraphInfo
	Topology() graph.Topology
	Invoke(ctx context.Context, req *api.InvokeRequest) (*api.RunResponse, error)
	// Stream runs the graph and calls emit once per stream item. The returned
	// response describes the finished run.
	Stream(ctx context.Context, req *api.InvokeRequest, emit func(api.StreamEvent) error) (*api.RunResponse, error)
	State(ctx context.Context, threadID string) (*api.Snapshot, error)
	History(ctx context.Context, threadID string) ([]api.Snapshot, error)
	UpdateState(ctx context.Context, threadID string, delta json.RawMessage) (*api.Snapshot, error)
	Threads(ctx context.Context) ([]string, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// GraphRuntime adapts a CompiledGraph to Runtime.
type GraphRuntime[S graph.State[S]] struct {
	g *graph.CompiledGraph[S]
}

var _ Runtime = (*GraphRuntime[noState])(nil)

type noState struct{}

func (noState) Merge(u noState) noState { return u }

// NewRuntime wraps g.
func NewRuntime[S graph.State[S]](g *graph.CompiledGraph[S]) *GraphRuntime[S] {
	return &GraphRuntime[S]{g: g}
}

func (rt *GraphRuntime[S]) Name() string { return rt.g.Name() }

func (rt *GraphRuntime[S]) Info() api.GraphInfo {
	return api.GraphInfo{
		Name:         rt.g.Name(),
		Entry:        rt.g.EntryPoint(),
		Nodes:        rt.g.Nodes(),
		Checkpointed: rt.g.Checkpointer() != nil,
	}
}

func (rt *GraphRuntime[S]) Topology() graph.Topology { return rt.g.Topology() }

// runOptions decodes the request into the input state and run options.
func (rt *GraphRuntime[S]) runOptions(req *api.InvokeRequest) (S, []graph.RunOption, error) {
	var input S
	if len(req.Input) > 0 {
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return input, nil, api.NewError(api.ErrInvalidRequest, "input does not match the graph state").WithCause(err)
		}
	}

	var opts []graph.RunOption
	if req.ThreadID != "" {
		opts = append(opts, graph.WithThreadID(req.ThreadID))
	}
	if req.HasResume() {
		var value any
		if err := json.Unmarshal(req.Resume, &value); err != nil {
			return input, nil, api.NewError(api.ErrInvalidRequest, "invalid resume value").WithCause(err)
		}
		opts = append(opts, graph.WithCommand(graph.ResumeCommand[S](value)))
	}
	return input, opts, nil
}

func (rt *GraphRuntime[S]) Invoke(ctx context.Context, req *api.InvokeRequest) (*api.RunResponse, error) {
	input, opts, err := rt.runOptions(req)
	if err != nil {
		return nil, err
	}
	res, err := rt.g.Invoke(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	state, err := json.Marshal(res.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	out := &api.RunResponse{
		Status:   string(res.Status),
		ThreadID: res.ThreadID,
		RunID:    res.RunID,
		Steps:    res.Steps,
		State:    state,
	}
	if res.Interrupt != nil {
		out.Interrupt = &api.InterruptView{
			Node:  res.Interrupt.Node,
			Phase: string(res.Interrupt.Phase),
		}
		if res.Interrupt.Value != nil {
			if out.Interrupt.Value, err = json.Marshal(res.Interrupt.Value); err != nil {
				return nil, fmt.Errorf("encode interrupt value: %w", err)
			}
		}
	}
	return out, nil
}

func (rt *GraphRuntime[S]) Stream(ctx context.Context, req *api.InvokeRequest, emit func(api.StreamEvent) error) (*api.RunResponse, error) {
	modes := make([]graph.StreamMode, 0, len(req.Modes))
	for _, m := range req.Modes {
		mode, err := graph.ParseStreamMode(m)
		if err != nil {
			return nil, api.NewError(api.ErrInvalidRequest, err.Error())
		}
		modes = append(modes, mode)
	}
	if len(modes) == 0 {
		modes = []graph.StreamMode{graph.StreamValues}
	}

	input, opts, err := rt.runOptions(req)
	if err != nil {
		return nil, err
	}
	// The thread id is fixed up front so the final snapshot can be read back.
	threadID := req.ThreadID
	if threadID == "" && rt.g.Checkpointer() != nil {
		threadID = uuid.NewString()
		opts = append(opts, graph.WithThreadID(threadID))
	}
	runID := uuid.NewString()
	opts = append(opts, graph.WithRunID(runID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		last  json.RawMessage
		steps int
	)
	for item := range rt.g.StreamModes(ctx, input, modes, opts...) {
		if item.Err != nil {
			return nil, item.Err
		}
		state, err := json.Marshal(item.Event.State)
		if err != nil {
			return nil, fmt.Errorf("encode state: %w", err)
		}
		if item.Mode == modes[0] && item.Mode != graph.StreamCustom {
			steps++
		}
		if item.Mode != graph.StreamUpdates {
			last = state
		}
		if err := emit(api.StreamEvent{
			Type:    api.StreamEventNode,
			Mode:    string(item.Mode),
			Node:    item.Event.Node,
			State:   state,
			Payload: item.Event.Payload,
		}); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &api.RunResponse{
		Status:   string(graph.StatusComplete),
		ThreadID: threadID,
		RunID:    runID,
		Steps:    steps,
		State:    last,
	}
	if threadID == "" {
		return out, nil
	}
	snap, err := rt.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out.State = snap.State
	if snap.Interrupt != nil {
		out.Status = string(graph.StatusInterrupted)
		out.Interrupt = snap.Interrupt
	}
	return out, nil
}

func (rt *GraphRuntime[S]) State(ctx context.Context, threadID string) (*api.Snapshot, error) {
	snap, err := rt.g.GetState(ctx, graph.CheckpointConfig{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	return toSnapshot(*snap)
}

func (rt *GraphRuntime[S]) History(ctx context.Context, threadID string) ([]api.Snapshot, error) {
	snaps, err := rt.g.GetStateHistory(ctx, graph.CheckpointConfig{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	out := make([]api.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		v, err := toSnapshot(s)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (rt *GraphRuntime[S]) UpdateState(ctx context.Context, threadID string, delta json.RawMessage) (*api.Snapshot, error) {
	var d S
	if err := json.Unmarshal(delta, &d); err != nil {
		return nil, api.NewError(api.ErrInvalidRequest, "delta does not match the graph state").WithCause(err)
	}
	snap, err := rt.g.UpdateState(ctx, graph.CheckpointConfig{ThreadID: threadID}, d)
	if err != nil {
		return nil, err
	}
	return toSnapshot(*snap)
}

func (rt *GraphRuntime[S]) threadStore() (graph.ThreadStore, error) {
	cp := rt.g.Checkpointer()
	if cp == nil {
		return nil, fmt.Errorf("%w: graph %s", graph.ErrCheckpointerRequired, rt.g.Name())
	}
	store, ok := cp.(graph.ThreadStore)
	if !ok {
		return nil, fmt.Errorf("%w: checkpointer of %s cannot enumerate threads", graph.ErrCheckpointerRequired, rt.g.Name())
	}
	return store, nil
}

func (rt *GraphRuntime[S]) Threads(ctx context.Context) ([]string, error) {
	store, err := rt.threadStore()
	if err != nil {
		return nil, err
	}
	return store.ListThreads(ctx)
}

func (rt *GraphRuntime[S]) DeleteThread(ctx context.Context, threadID string) error {
	store, err := rt.threadStore()
	if err != nil {
		return err
	}
	latest, err := store.Get(ctx, graph.CheckpointConfig{ThreadID: threadID})
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("%w: %s", graph.ErrThreadNotFound, threadID)
	}
	return store.DeleteThread(ctx, threadID)
}

func toSnapshot[S any](s graph.StateSnapshot[S]) (*api.Snapshot, error) {
	state, err := json.Marshal(s.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	out := &api.Snapshot{
		CheckpointID: s.CheckpointID,
		Step:         s.Step,
		Source:       string(s.Source),
		Next:         s.Next,
		State:        state,
		CreatedAt:    s.CreatedAt,
	}
	if s.Interrupt != nil {
		out.Interrupt = &api.InterruptView{
			Node:  s.Interrupt.Node,
			Phase: string(s.Interrupt.Phase),
			Value: s.Interrupt.Value,
		}
	}
	return out, nil
}
