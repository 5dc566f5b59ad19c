package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Validation(t *testing.T) {
	t.Parallel()

	router := func(testState) string { return "a" }

	tests := []struct {
		name   string
		build  func() *StateGraph[testState]
		opts   []CompileOption
		target error
	}{
		{
			name: "entry point not set",
			build: func() *StateGraph[testState] {
				return NewStateGraph[testState]("g").AddNode("a", visit("a", nil))
			},
		},
		{
			name: "entry point unknown",
			build: func() *StateGraph[testState] {
				return NewStateGraph[testState]("g").AddNode("a", visit("a", nil)).SetEntryPoint("b")
			},
			target: ErrNodeNotFound,
		},
		{
			name: "edge source unknown",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddEdge("ghost", "a")
			},
			target: ErrNodeNotFound,
		},
		{
			name: "edge target unknown",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddEdge("a", "ghost")
			},
			target: ErrNodeNotFound,
		},
		{
			name: "conditional source unknown",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddConditionalEdges("ghost", router)
			},
			target: ErrNodeNotFound,
		},
		{
			name: "path map target unknown",
			build: func() *StateGraph[testState] {
				return NewStateGraph[testState]("g").
					AddNode("a", visit("a", nil)).
					AddConditionalEdgesWithPathMap("a", router, map[string]string{"x": "ghost"}).
					SetEntryPoint("a")
			},
			target: ErrNodeNotFound,
		},
		{
			name: "duplicate router",
			build: func() *StateGraph[testState] {
				return NewStateGraph[testState]("g").
					AddNode("a", visit("a", nil)).
					AddConditionalEdges("a", router).
					AddConditionalEdges("a", router).
					SetEntryPoint("a")
			},
		},
		{
			name: "duplicate node",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddNode("a", visit("a", nil))
			},
			target: ErrDuplicateNode,
		},
		{
			name: "reserved node name",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddNode(END, visit("x", nil))
			},
			target: ErrInvalidNodeName,
		},
		{
			name: "empty node name",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddNode("", visit("x", nil))
			},
			target: ErrInvalidNodeName,
		},
		{
			name: "non-positive cache ttl",
			build: func() *StateGraph[testState] {
				return linearGraph("a").AddNodeWithCache("b", visit("b", nil), CachePolicy{})
			},
		},
		{
			name: "interrupt marker unknown",
			build: func() *StateGraph[testState] {
				return linearGraph("a").InterruptBefore("ghost")
			},
			opts:   []CompileOption{WithCheckpointer(NewMemorySaver())},
			target: ErrNodeNotFound,
		},
		{
			name: "interrupt marker without checkpointer",
			build: func() *StateGraph[testState] {
				return linearGraph("a").InterruptAfter("a")
			},
			target: ErrCheckpointerRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, err := tt.build().Compile(tt.opts...)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.NotEmpty(t, verr.Errs)
		})
	}
}

func TestCompile_CollectsEveryProblem(t *testing.T) {
	t.Parallel()

	_, err := NewStateGraph[testState]("g").
		AddNode("a", visit("a", nil)).
		AddEdge("a", "ghost1").
		AddEdge("ghost2", "a").
		Compile()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errs, 3)
}

func TestCompile_Valid(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("support").
		AddNode("classify", visit("classify", nil)).
		AddNodeWithCache("lookup", visit("lookup", nil), CachePolicy{TTL: time.Minute}).
		AddDeferredNode("join", visit("join", nil)).
		AddEdge("classify", "lookup").
		AddConditionalEdgesWithPathMap("lookup", func(testState) string { return "done" },
			map[string]string{"done": "join", "stop": END}).
		AddEdge("join", END).
		SetEntryPoint("classify").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, "support", g.Name())
	assert.Equal(t, "classify", g.EntryPoint())
	assert.Equal(t, []string{"classify", "lookup", "join"}, g.Nodes())
	assert.True(t, g.IsDeferred("join"))
	assert.False(t, g.IsDeferred("lookup"))
	assert.Nil(t, g.Checkpointer())
}

func TestIncomingEdgeCount(t *testing.T) {
	t.Parallel()

	b := NewStateGraph[testState]("fanin").
		AddNode("a", visit("a", nil)).
		AddNode("b", visit("b", nil)).
		AddDeferredNode("join", visit("join", nil)).
		AddEdge("a", "join").
		AddEdge("b", "join").
		AddConditionalEdgesWithPathMap("join", func(testState) string { return "again" },
			map[string]string{"again": "join", "stop": END}).
		SetEntryPoint("a")

	assert.Equal(t, 3, b.IncomingEdgeCount("join"))
	assert.Equal(t, 0, b.IncomingEdgeCount("a"))

	g, err := b.Compile()
	require.NoError(t, err)
	assert.Equal(t, 3, g.IncomingEdgeCount("join"))
}

func TestAddNodeFunc(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("fn").
		AddNodeFunc("only", func(_ context.Context, s testState) (NodeOutput[testState], error) {
			return StateOutput(testState{Count: s.Count + 1}), nil
		}).
		SetEntryPoint("only").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.State.Count)
}

// Compile never panics and accepts a graph only when every edge names a
// registered node or END.
func TestProperty_CompileRejectsDanglingEdges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("compile succeeds iff all edge endpoints exist", prop.ForAll(
		func(nodeCount int, targets []int) bool {
			b := NewStateGraph[testState]("prop")
			for i := 0; i < nodeCount; i++ {
				name := fmt.Sprintf("n%d", i)
				b.AddNode(name, visit(name, nil))
			}
			b.SetEntryPoint("n0")

			valid := true
			for i, target := range targets {
				from := fmt.Sprintf("n%d", i%nodeCount)
				to := END
				if target >= 0 {
					to = fmt.Sprintf("n%d", target)
					if target >= nodeCount {
						valid = false
					}
				}
				b.AddEdge(from, to)
			}

			g, err := b.Compile()
			if valid {
				return err == nil && g != nil
			}
			return errors.Is(err, ErrNodeNotFound) && g == nil
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.IntRange(-1, 8)),
	))

	properties.TestingRun(t)
}
