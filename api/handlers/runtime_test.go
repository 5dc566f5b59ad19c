package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/api"
	"github.com/BaSui01/agentgraph/graph"
)

func TestGraphRuntime_NullResumeStartsFresh(t *testing.T) {
	rt := NewRuntime(ticketGraph(t, graph.NewMemorySaver()))
	ctx := context.Background()

	res, err := rt.Invoke(ctx, &api.InvokeRequest{
		ThreadID: "t",
		Input:    json.RawMessage(`{"text":"hello"}`),
		Resume:   json.RawMessage(`null`),
	})
	require.NoError(t, err)
	assert.Equal(t, "interrupted", res.Status)
	assert.Equal(t, "general", decodeTicket(t, res.State).Route)
}

func TestGraphRuntime_StreamDefaultsToValues(t *testing.T) {
	rt := NewRuntime(echoGraph(t))

	var modes []string
	res, err := rt.Stream(context.Background(), &api.InvokeRequest{Input: json.RawMessage(`{"text":"x"}`)},
		func(ev api.StreamEvent) error {
			modes = append(modes, ev.Mode)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"values"}, modes)
	assert.Equal(t, "complete", res.Status)
	assert.NotEmpty(t, res.RunID)
}

func TestGraphRuntime_StreamGeneratesThread(t *testing.T) {
	rt := NewRuntime(ticketGraph(t, graph.NewMemorySaver()))

	res, err := rt.Stream(context.Background(), &api.InvokeRequest{}, func(api.StreamEvent) error { return nil })
	require.NoError(t, err)
	require.NotEmpty(t, res.ThreadID)
	assert.Equal(t, "interrupted", res.Status)

	threads, err := rt.Threads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{res.ThreadID}, threads)
}

func TestGraphRuntime_EmitErrorStopsStream(t *testing.T) {
	rt := NewRuntime(ticketGraph(t, graph.NewMemorySaver()))
	stop := assert.AnError

	_, err := rt.Stream(context.Background(), &api.InvokeRequest{ThreadID: "t"}, func(api.StreamEvent) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestGraphRuntime_DeleteMissingThread(t *testing.T) {
	rt := NewRuntime(ticketGraph(t, graph.NewMemorySaver()))

	err := rt.DeleteThread(context.Background(), "ghost")
	assert.ErrorIs(t, err, graph.ErrThreadNotFound)
}

func TestGraphRuntime_Info(t *testing.T) {
	info := NewRuntime(echoGraph(t)).Info()
	assert.Equal(t, api.GraphInfo{Name: "echo", Entry: "echo", Nodes: []string{"echo"}}, info)
}

func TestGraphRuntime_StreamReportsPauseAfterLastNode(t *testing.T) {
	g, err := graph.NewStateGraph[ticket]("review").
		AddNodeFunc("classify", func(_ context.Context, _ ticket) (graph.NodeOutput[ticket], error) {
			return graph.StateOutput(ticket{Route: "general", Trace: []string{"classify"}}), nil
		}).
		SetEntryPoint("classify").
		InterruptAfter("classify").
		Compile(graph.WithCheckpointer(graph.NewMemorySaver()))
	require.NoError(t, err)
	rt := NewRuntime(g)
	ctx := context.Background()
	noop := func(api.StreamEvent) error { return nil }

	res, err := rt.Stream(ctx, &api.InvokeRequest{ThreadID: "r"}, noop)
	require.NoError(t, err)
	assert.Equal(t, "interrupted", res.Status)
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, "classify", res.Interrupt.Node)
	assert.Equal(t, string(graph.PhaseAfter), res.Interrupt.Phase)

	res, err = rt.Stream(ctx, &api.InvokeRequest{ThreadID: "r"}, noop)
	require.NoError(t, err)
	assert.Equal(t, "complete", res.Status)
	assert.Equal(t, []string{"classify"}, decodeTicket(t, res.State).Trace)
}
