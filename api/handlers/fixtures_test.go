package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/graph"
)

type ticket struct {
	Text     string   `json:"text,omitempty"`
	Route    string   `json:"route,omitempty"`
	Decision string   `json:"decision,omitempty"`
	Trace    []string `json:"trace,omitempty"`
}

func (t ticket) Merge(u ticket) ticket {
	t.Text = graph.KeepNonZeroReducer[string]()(t.Text, u.Text)
	t.Route = graph.KeepNonZeroReducer[string]()(t.Route, u.Route)
	t.Decision = graph.KeepNonZeroReducer[string]()(t.Decision, u.Decision)
	t.Trace = graph.AppendReducer[string]()(t.Trace, u.Trace)
	return t
}

// ticketGraph: classify -> approve (asks for a decision) -> done.
func ticketGraph(t *testing.T, cp graph.Checkpointer) *graph.CompiledGraph[ticket] {
	t.Helper()

	classify := func(ctx context.Context, s ticket) (graph.NodeOutput[ticket], error) {
		route := "general"
		if s.Text == "refund" {
			route = "billing"
		}
		graph.EmitCustom(ctx, map[string]string{"route": route})
		return graph.StateOutput(ticket{Route: route, Trace: []string{"classify"}}), nil
	}
	approve := func(ctx context.Context, s ticket) (graph.NodeOutput[ticket], error) {
		v, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.Interrupt[ticket](map[string]string{"question": "approve " + s.Route + "?"}), nil
		}
		return graph.StateOutput(ticket{Decision: fmt.Sprint(v), Trace: []string{"approve"}}), nil
	}
	done := func(_ context.Context, _ ticket) (graph.NodeOutput[ticket], error) {
		return graph.StateOutput(ticket{Trace: []string{"done"}}), nil
	}

	opts := []graph.CompileOption{graph.WithLogger(zaptest.NewLogger(t))}
	if cp != nil {
		opts = append(opts, graph.WithCheckpointer(cp))
	}
	g, err := graph.NewStateGraph[ticket]("tickets").
		AddNodeFunc("classify", classify).
		AddNodeFunc("approve", approve).
		AddNodeFunc("done", done).
		AddEdge("classify", "approve").
		AddEdge("approve", "done").
		SetEntryPoint("classify").
		Compile(opts...)
	require.NoError(t, err)
	return g
}

// echoGraph has no checkpointer; its single node fails on "boom".
func echoGraph(t *testing.T) *graph.CompiledGraph[ticket] {
	t.Helper()

	g, err := graph.NewStateGraph[ticket]("echo").
		AddNodeFunc("echo", func(_ context.Context, s ticket) (graph.NodeOutput[ticket], error) {
			if s.Text == "boom" {
				return graph.NodeOutput[ticket]{}, errors.New("exploded")
			}
			return graph.StateOutput(ticket{Trace: []string{"echo:" + s.Text}}), nil
		}).
		SetEntryPoint("echo").
		Compile()
	require.NoError(t, err)
	return g
}

func newTestServer(t *testing.T, opts ...GraphHandlerOption) *httptest.Server {
	t.Helper()

	h := NewGraphHandler(zaptest.NewLogger(t), opts...)
	require.NoError(t, h.Register(NewRuntime(ticketGraph(t, graph.NewMemorySaver()))))
	require.NoError(t, h.Register(NewRuntime(echoGraph(t))))

	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
