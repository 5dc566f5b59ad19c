// Package checkpointtest is a conformance suite shared by Checkpointer
// implementations.
package checkpointtest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/graph"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) graph.ThreadStore

// Run exercises the Checkpointer contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetUnknownThread", func(t *testing.T) {
		s := newStore(t)
		cp, err := s.Get(context.Background(), graph.CheckpointConfig{ThreadID: "missing"})
		require.NoError(t, err)
		assert.Nil(t, cp)

		all, err := s.List(context.Background(), graph.CheckpointConfig{ThreadID: "missing"})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("PutGetList", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		cfg := graph.CheckpointConfig{ThreadID: "thread-a"}
		created := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Put(ctx, cfg, &graph.Checkpoint{
				ID:        fmt.Sprintf("cp-%d", i),
				Step:      i,
				State:     json.RawMessage(fmt.Sprintf(`{"count":%d}`, i)),
				NextNode:  fmt.Sprintf("node-%d", i),
				Source:    graph.SourceLoop,
				CreatedAt: created.Add(time.Duration(i) * time.Second),
				Metadata:  map[string]string{"run_id": "r1"},
			}))
		}

		latest, err := s.Get(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "cp-2", latest.ID)
		assert.Equal(t, "thread-a", latest.ThreadID)
		assert.Equal(t, 2, latest.Step)
		assert.JSONEq(t, `{"count":2}`, string(latest.State))
		assert.Equal(t, "node-2", latest.NextNode)
		assert.Equal(t, graph.SourceLoop, latest.Source)
		assert.Equal(t, "r1", latest.Metadata["run_id"])
		assert.WithinDuration(t, created.Add(2*time.Second), latest.CreatedAt, time.Millisecond)

		all, err := s.List(ctx, cfg)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, cp := range all {
			assert.Equal(t, fmt.Sprintf("cp-%d", i), cp.ID)
		}
	})

	t.Run("InterruptRecord", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		cfg := graph.CheckpointConfig{ThreadID: "thread-i"}

		require.NoError(t, s.Put(ctx, cfg, &graph.Checkpoint{
			ID:       "cp-1",
			State:    json.RawMessage(`{}`),
			NextNode: "approve",
			Source:   graph.SourceInterrupt,
			Interrupt: &graph.InterruptRecord{
				Node:  "approve",
				Phase: graph.PhaseNode,
				Value: json.RawMessage(`{"question":"ok?"}`),
			},
			CreatedAt: time.Now().UTC(),
		}))

		cp, err := s.Get(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, cp.Interrupt)
		assert.Equal(t, "approve", cp.Interrupt.Node)
		assert.Equal(t, graph.PhaseNode, cp.Interrupt.Phase)
		assert.JSONEq(t, `{"question":"ok?"}`, string(cp.Interrupt.Value))
		assert.True(t, cp.Pending())
	})

	t.Run("PendingSends", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		cfg := graph.CheckpointConfig{ThreadID: "thread-s"}

		require.NoError(t, s.Put(ctx, cfg, &graph.Checkpoint{
			ID:       "cp-1",
			State:    json.RawMessage(`{}`),
			NextNode: "work",
			Source:   graph.SourceInterrupt,
			Interrupt: &graph.InterruptRecord{
				Node:  "work",
				Phase: graph.PhaseAfter,
			},
			Sends: []graph.PendingSend{
				{Node: "work", Payload: json.RawMessage(`{"messages":["p2"]}`)},
				{Node: "work", Payload: json.RawMessage(`{"messages":["p3"]}`)},
			},
			CreatedAt: time.Now().UTC(),
		}))

		cp, err := s.Get(ctx, cfg)
		require.NoError(t, err)
		require.Len(t, cp.Sends, 2)
		assert.Equal(t, "work", cp.Sends[0].Node)
		assert.JSONEq(t, `{"messages":["p2"]}`, string(cp.Sends[0].Payload))
		assert.JSONEq(t, `{"messages":["p3"]}`, string(cp.Sends[1].Payload))
		assert.Equal(t, graph.PhaseAfter, cp.Interrupt.Phase)
		assert.True(t, cp.Pending())
	})

	t.Run("ThreadIsolation", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Put(ctx, graph.CheckpointConfig{ThreadID: "x"},
			&graph.Checkpoint{ID: "x-1", State: json.RawMessage(`{}`), NextNode: graph.END, CreatedAt: time.Now()}))
		require.NoError(t, s.Put(ctx, graph.CheckpointConfig{ThreadID: "y"},
			&graph.Checkpoint{ID: "y-1", State: json.RawMessage(`{}`), NextNode: "a", CreatedAt: time.Now()}))

		x, err := s.Get(ctx, graph.CheckpointConfig{ThreadID: "x"})
		require.NoError(t, err)
		assert.Equal(t, "x-1", x.ID)
		assert.False(t, x.Pending())

		threads, err := s.ListThreads(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y"}, threads)

		require.NoError(t, s.DeleteThread(ctx, "x"))
		x, err = s.Get(ctx, graph.CheckpointConfig{ThreadID: "x"})
		require.NoError(t, err)
		assert.Nil(t, x)

		threads, err = s.ListThreads(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"y"}, threads)
	})

	t.Run("InvalidThread", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(context.Background(), graph.CheckpointConfig{}, &graph.Checkpoint{ID: "a"})
		assert.ErrorIs(t, err, graph.ErrInvalidThread)
		_, err = s.Get(context.Background(), graph.CheckpointConfig{})
		assert.ErrorIs(t, err, graph.ErrInvalidThread)
	})

	t.Run("GraphResume", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		g, err := graph.NewStateGraph[counterState]("resume").
			AddNodeFunc("first", add("first")).
			AddNodeFunc("gate", add("gate")).
			AddNodeFunc("last", add("last")).
			AddEdge("first", "gate").
			AddEdge("gate", "last").
			SetEntryPoint("first").
			InterruptBefore("gate").
			Compile(graph.WithCheckpointer(s))
		require.NoError(t, err)

		res, err := g.Invoke(ctx, counterState{}, graph.WithThreadID("durable"))
		require.NoError(t, err)
		require.True(t, res.IsInterrupted())

		res, err = g.Invoke(ctx, counterState{}, graph.WithThreadID("durable"))
		require.NoError(t, err)
		assert.Equal(t, graph.StatusComplete, res.Status)
		assert.Equal(t, []string{"first", "gate", "last"}, res.State.Visited)

		history, err := g.GetStateHistory(ctx, graph.CheckpointConfig{ThreadID: "durable"})
		require.NoError(t, err)
		assert.Len(t, history, 5)
	})
}

type counterState struct {
	Visited []string `json:"visited,omitempty"`
}

func (s counterState) Merge(u counterState) counterState {
	s.Visited = graph.AppendReducer[string]()(s.Visited, u.Visited)
	return s
}

func add(name string) func(context.Context, counterState) (graph.NodeOutput[counterState], error) {
	return func(context.Context, counterState) (graph.NodeOutput[counterState], error) {
		return graph.StateOutput(counterState{Visited: []string{name}}), nil
	}
}
