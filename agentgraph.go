// Package agentgraph is the short import path for the graph engine and the
// checkpoint backends.
//
// Usage:
//
//	import "github.com/BaSui01/agentgraph"
//
//	g, err := agentgraph.NewStateGraph[MyState]("flow").
//		AddNodeFunc("step", step).
//		SetEntryPoint("step").
//		Compile(agentgraph.WithCheckpointer(agentgraph.NewMemorySaver()))
//
// Everything here forwards to the graph package; import graph directly for
// the full API (stream modes, reducers, topology export).
package agentgraph

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/graph/checkpoint/factory"
)

// END is the virtual terminal node.
const END = graph.END

// State is the constraint every graph state type satisfies.
type State[S any] = graph.State[S]

// StateGraph is the fluent builder returned by [NewStateGraph].
type StateGraph[S graph.State[S]] = graph.StateGraph[S]

// CompiledGraph is an immutable, runnable graph.
type CompiledGraph[S graph.State[S]] = graph.CompiledGraph[S]

// NewStateGraph starts a builder for a graph over S.
func NewStateGraph[S graph.State[S]](name string) *graph.StateGraph[S] {
	return graph.NewStateGraph[S](name)
}

// NewMemorySaver returns an in-process checkpointer.
func NewMemorySaver() *graph.MemorySaver {
	return graph.NewMemorySaver()
}

// OpenCheckpointer opens the backend named by cfg.Checkpoint.Backend
// (memory, redis, database or mongo). Close the returned backend when done.
func OpenCheckpointer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*factory.Backend, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return factory.New(ctx, cfg, logger)
}

// Compile options.
var (
	WithCheckpointer   = graph.WithCheckpointer
	WithLogger         = graph.WithLogger
	WithObserver       = graph.WithObserver
	WithTracer         = graph.WithTracer
	WithRecursionLimit = graph.WithRecursionLimit
)

// Run options.
var (
	WithThreadID = graph.WithThreadID
	WithRunID    = graph.WithRunID
	WithResume   = graph.WithResume
)

// Sentinel errors.
var (
	ErrThreadNotFound       = graph.ErrThreadNotFound
	ErrCheckpointerRequired = graph.ErrCheckpointerRequired
	ErrRecursionLimit       = graph.ErrRecursionLimit
)
