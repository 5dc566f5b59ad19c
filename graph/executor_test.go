package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ---------------------------------------------------------------------------
// Basic execution
// ---------------------------------------------------------------------------

func TestInvoke_Linear(t *testing.T) {
	t.Parallel()

	g, err := linearGraph("a", "b", "c").Compile(WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Messages: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.False(t, res.IsInterrupted())
	assert.Equal(t, []string{"a", "b", "c"}, res.State.Trace)
	assert.Equal(t, []string{"hi"}, res.State.Messages)
	assert.Equal(t, 3, res.Steps)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.ThreadID)
}

func TestInvoke_NoOutgoingEdgeEnds(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("g").
		AddNode("a", visit("a", nil)).
		AddNode("b", visit("b", nil)).
		AddEdge("a", "b").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.State.Trace)
}

func TestInvoke_ContextValues(t *testing.T) {
	t.Parallel()

	var gotNode, gotRun string
	g, err := NewStateGraph[testState]("ctx").
		AddNodeFunc("probe", func(ctx context.Context, _ testState) (NodeOutput[testState], error) {
			gotNode, _ = NodeName(ctx)
			gotRun, _ = RunID(ctx)
			_, resumed := ResumeValue(ctx)
			assert.False(t, resumed)
			return StateOutput(testState{}), nil
		}).
		SetEntryPoint("probe").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{}, WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "probe", gotNode)
	assert.Equal(t, "run-1", gotRun)
	assert.Equal(t, "run-1", res.RunID)
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func classifyGraph(counter *callCounter) *StateGraph[testState] {
	return NewStateGraph[testState]("support").
		AddNodeFunc("classify", func(_ context.Context, s testState) (NodeOutput[testState], error) {
			counter.inc("classify")
			category := "normal"
			if n := len(s.Messages); n > 0 && strings.Contains(s.Messages[n-1], "urgent") {
				category = "urgent"
			}
			return StateOutput(testState{Category: category}), nil
		}).
		AddNode("escalate", visit("escalate", counter)).
		AddNode("process", visit("process", counter)).
		AddConditionalEdgesWithPathMap("classify", func(s testState) string { return s.Category },
			map[string]string{"urgent": "escalate", "normal": "process"}).
		AddEdge("escalate", END).
		AddEdge("process", END).
		SetEntryPoint("classify")
}

func TestInvoke_ClassifyUrgent(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := classifyGraph(counter).Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Messages: []string{"hello", "this is urgent"}})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, "urgent", res.State.Category)
	assert.Equal(t, 1, counter.get("escalate"))
	assert.Equal(t, 0, counter.get("process"))
}

func TestInvoke_ClassifyNormal(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := classifyGraph(counter).Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Messages: []string{"where is my order"}})
	require.NoError(t, err)
	assert.Equal(t, "normal", res.State.Category)
	assert.Equal(t, 0, counter.get("escalate"))
	assert.Equal(t, 1, counter.get("process"))
}

func TestInvoke_RouterReturnsNodeName(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("g").
		AddNode("a", visit("a", nil)).
		AddNode("b", visit("b", nil)).
		AddConditionalEdgesWithPathMap("a", func(testState) string { return "b" },
			map[string]string{"finish": END}).
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.State.Trace)
}

func TestInvoke_RouterUnknownTarget(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("g").
		AddNode("a", visit("a", nil)).
		AddConditionalEdges("a", func(testState) string { return "nowhere" }).
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestInvoke_GotoOverridesEdges(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := NewStateGraph[testState]("goto").
		AddNodeFunc("start", func(context.Context, testState) (NodeOutput[testState], error) {
			return Goto[testState]("jump"), nil
		}).
		AddNode("edge", visit("edge", counter)).
		AddNode("jump", visit("jump", counter)).
		AddEdge("start", "edge").
		AddConditionalEdges("start", func(testState) string { return "edge" }).
		SetEntryPoint("start").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, 1, counter.get("jump"))
	assert.Equal(t, 0, counter.get("edge"))
	assert.Equal(t, []string{"jump"}, res.State.Trace)
}

func TestInvoke_GotoWithUpdate(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("goto").
		AddNodeFunc("start", func(context.Context, testState) (NodeOutput[testState], error) {
			return GotoWithUpdate("jump", testState{Count: 5}), nil
		}).
		AddNode("jump", visit("jump", nil)).
		SetEntryPoint("start").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, res.State.Count)
	assert.Equal(t, []string{"jump"}, res.State.Trace)
}

func TestInvoke_GotoUnknownNode(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("goto").
		AddNodeFunc("start", func(context.Context, testState) (NodeOutput[testState], error) {
			return Goto[testState]("ghost"), nil
		}).
		SetEntryPoint("start").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestInvoke_UpdateFollowsEdges(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("update").
		AddNodeFunc("a", func(context.Context, testState) (NodeOutput[testState], error) {
			return Update(testState{Count: 2}), nil
		}).
		AddNode("b", visit("b", nil)).
		AddEdge("a", "b").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.Count)
	assert.Equal(t, []string{"b"}, res.State.Trace)
}

func TestInvoke_EndRun(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := NewStateGraph[testState]("end").
		AddNodeFunc("a", func(context.Context, testState) (NodeOutput[testState], error) {
			return EndRun[testState](), nil
		}).
		AddNode("b", visit("b", counter)).
		AddEdge("a", "b").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{Count: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 3, res.State.Count)
	assert.Equal(t, 0, counter.get("b"))
}

func TestInvoke_NodeReturnedResumeIsInvalid(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("resume").
		AddNodeFunc("a", func(context.Context, testState) (NodeOutput[testState], error) {
			return CommandOutput(ResumeCommand[testState]("x")), nil
		}).
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

// ---------------------------------------------------------------------------
// Send and deferred nodes
// ---------------------------------------------------------------------------

func TestInvoke_SendRunsTargetsInOrder(t *testing.T) {
	t.Parallel()

	var payloads []int
	worker := func(_ context.Context, s testState) (NodeOutput[testState], error) {
		payloads = append(payloads, s.Count)
		return StateOutput(testState{Count: s.Count, Trace: []string{"worker"}}), nil
	}

	g, err := NewStateGraph[testState]("fanout").
		AddNodeFunc("split", func(context.Context, testState) (NodeOutput[testState], error) {
			return Send(
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 1}},
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 2}},
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 3}},
			), nil
		}).
		AddNodeFunc("worker", worker).
		AddDeferredNode("join", visit("join", nil)).
		AddEdge("worker", "join").
		AddEdge("join", END).
		SetEntryPoint("split").
		Compile(WithCheckpointer(NewMemorySaver()))
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{}, WithThreadID("t-send"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, payloads)
	assert.Equal(t, 6, res.State.Count)
	assert.Equal(t, []string{"worker", "worker", "worker", "join"}, res.State.Trace)
	assert.Equal(t, 5, res.Steps)

	history, err := g.GetStateHistory(context.Background(), CheckpointConfig{ThreadID: "t-send"})
	require.NoError(t, err)
	// input + split + three workers + join
	require.Len(t, history, 6)
	assert.Equal(t, "worker", history[1].Next)
	assert.Equal(t, "worker", history[2].Next)
	assert.Equal(t, "join", history[4].Next)
	assert.Equal(t, END, history[5].Next)
}

func TestInvoke_EmptySendUsesIssuerEdges(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("fanout").
		AddNodeFunc("split", func(context.Context, testState) (NodeOutput[testState], error) {
			return Send[testState](), nil
		}).
		AddNode("after", visit("after", nil)).
		AddEdge("split", "after").
		SetEntryPoint("split").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, res.State.Trace)
}

func TestInvoke_SendTargetCommandRejected(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("fanout").
		AddNodeFunc("split", func(context.Context, testState) (NodeOutput[testState], error) {
			return Send(SendTarget[testState]{Node: "worker"}), nil
		}).
		AddNodeFunc("worker", func(context.Context, testState) (NodeOutput[testState], error) {
			return Goto[testState]("split"), nil
		}).
		SetEntryPoint("split").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestInvoke_SendUnknownTarget(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph[testState]("fanout").
		AddNodeFunc("split", func(context.Context, testState) (NodeOutput[testState], error) {
			return Send(SendTarget[testState]{Node: "ghost"}), nil
		}).
		SetEntryPoint("split").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

// ---------------------------------------------------------------------------
// Errors and limits
// ---------------------------------------------------------------------------

func TestInvoke_NodeError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	g, err := NewStateGraph[testState]("err").
		AddNode("a", visit("a", nil)).
		AddNodeFunc("b", func(context.Context, testState) (NodeOutput[testState], error) {
			return NodeOutput[testState]{}, boom
		}).
		AddEdge("a", "b").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)

	var nerr *NodeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "b", nerr.Node)
	assert.Equal(t, 2, nerr.Step)
}

func TestInvoke_RecursionLimitExact(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := NewStateGraph[testState]("loop").
		AddNode("a", visit("a", counter)).
		AddNode("b", visit("b", counter)).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Equal(t, DefaultRecursionLimit, counter.get("a")+counter.get("b"))
}

func TestInvoke_CustomRecursionLimit(t *testing.T) {
	t.Parallel()

	counter := newCallCounter()
	g, err := NewStateGraph[testState]("loop").
		AddNode("a", visit("a", counter)).
		AddEdge("a", "a").
		SetEntryPoint("a").
		Compile(WithRecursionLimit(7))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Equal(t, 7, counter.get("a"))
}

func TestInvoke_RecursionLimitAllowsExactBudget(t *testing.T) {
	t.Parallel()

	g, err := linearGraph("a", "b", "c").Compile(WithRecursionLimit(3))
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
}

func TestInvoke_CancelledContext(t *testing.T) {
	t.Parallel()

	g, err := linearGraph("a").Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Invoke(ctx, testState{})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSaver struct {
	*MemorySaver
	err error
}

func (f *failingSaver) Put(context.Context, CheckpointConfig, *Checkpoint) error { return f.err }

func TestInvoke_CheckpointWriteFailureAborts(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("disk full")
	counter := newCallCounter()
	b := NewStateGraph[testState]("g").
		AddNode("a", visit("a", counter)).
		SetEntryPoint("a")
	g, err := b.Compile(WithCheckpointer(&failingSaver{MemorySaver: NewMemorySaver(), err: writeErr}))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{}, WithThreadID("t"))
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, 0, counter.get("a"))
}

// limitedSaver rejects every Put after the first limit; limit 0 disables it.
type limitedSaver struct {
	*MemorySaver
	puts, limit int
}

func (s *limitedSaver) Put(ctx context.Context, cfg CheckpointConfig, cp *Checkpoint) error {
	s.puts++
	if s.limit > 0 && s.puts > s.limit {
		return errors.New("disk full")
	}
	return s.MemorySaver.Put(ctx, cfg, cp)
}

func TestInvoke_SendResumesRemainingTargetsAfterFailure(t *testing.T) {
	t.Parallel()

	var payloads []int
	saver := &limitedSaver{MemorySaver: NewMemorySaver(), limit: 3}
	g, err := NewStateGraph[testState]("fanout").
		AddNodeFunc("split", func(context.Context, testState) (NodeOutput[testState], error) {
			return Send(
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 1}},
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 2}},
				SendTarget[testState]{Node: "worker", Payload: testState{Count: 3}},
			), nil
		}).
		AddNodeFunc("worker", func(_ context.Context, s testState) (NodeOutput[testState], error) {
			payloads = append(payloads, s.Count)
			return StateOutput(testState{Count: s.Count}), nil
		}).
		AddEdge("worker", END).
		SetEntryPoint("split").
		Compile(WithCheckpointer(saver))
	require.NoError(t, err)

	// input, split and the first worker persist; the second worker's write fails
	_, err = g.Invoke(context.Background(), testState{}, WithThreadID("crash"))
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, payloads)

	saver.limit = 0
	res, err := g.Invoke(context.Background(), testState{}, WithThreadID("crash"))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, []int{1, 2, 2, 3}, payloads)
	assert.Equal(t, 6, res.State.Count)
}
