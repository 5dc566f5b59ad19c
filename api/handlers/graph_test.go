package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/api"
	"github.com/BaSui01/agentgraph/graph"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func doJSON(t *testing.T, method, url string, body any) (int, envelope) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func decodeTicket(t *testing.T, raw json.RawMessage) ticket {
	t.Helper()
	var s ticket
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

// =============================================================================
// 🎯 图信息
// =============================================================================

func TestGraphHandler_ListAndGet(t *testing.T) {
	srv := newTestServer(t)

	code, env := doJSON(t, http.MethodGet, srv.URL+"/v1/graphs", nil)
	require.Equal(t, http.StatusOK, code)
	infos := decodeData[[]api.GraphInfo](t, env)
	require.Len(t, infos, 2)
	assert.Equal(t, "echo", infos[0].Name)
	assert.False(t, infos[0].Checkpointed)
	assert.Equal(t, "tickets", infos[1].Name)
	assert.Equal(t, "classify", infos[1].Entry)
	assert.Equal(t, []string{"classify", "approve", "done"}, infos[1].Nodes)
	assert.True(t, infos[1].Checkpointed)

	code, env = doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/tickets", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tickets", decodeData[api.GraphInfo](t, env).Name)

	code, env = doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(api.ErrGraphNotFound), env.Error.Code)
}

func TestGraphHandler_RegisterDuplicate(t *testing.T) {
	h := NewGraphHandler(zap.NewNop())
	require.NoError(t, h.Register(NewRuntime(echoGraph(t))))
	assert.Error(t, h.Register(NewRuntime(echoGraph(t))))
}

func TestGraphHandler_Topology(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{format: "mermaid", contentType: "text/plain", contains: "classify"},
		{format: "dot", contentType: "text/vnd.graphviz", contains: "digraph"},
		{format: "yaml", contentType: "application/yaml", contains: "classify"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/v1/graphs/tickets/topology?format=" + tt.format)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), tt.contentType))
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}

	t.Run("json", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/tickets/topology", nil)
		require.Equal(t, http.StatusOK, code)
		topo := decodeData[graph.Topology](t, env)
		assert.Equal(t, "tickets", topo.Name)
	})

	t.Run("unsupported", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/tickets/topology?format=png", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, string(api.ErrInvalidRequest), env.Error.Code)
	})
}

// =============================================================================
// ▶️ 运行与恢复
// =============================================================================

func TestGraphHandler_InvokeWithoutCheckpointer(t *testing.T) {
	srv := newTestServer(t)

	code, env := doJSON(t, http.MethodPost, srv.URL+"/v1/graphs/echo/invoke", map[string]any{
		"input": map[string]string{"text": "hi"},
	})
	require.Equal(t, http.StatusOK, code)
	res := decodeData[api.RunResponse](t, env)
	assert.Equal(t, "complete", res.Status)
	assert.Empty(t, res.ThreadID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, []string{"echo:hi"}, decodeTicket(t, res.State).Trace)
}

func TestGraphHandler_InvokeNodeFailure(t *testing.T) {
	srv := newTestServer(t)

	code, env := doJSON(t, http.MethodPost, srv.URL+"/v1/graphs/echo/invoke", map[string]any{
		"input": map[string]string{"text": "boom"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(api.ErrNodeFailed), env.Error.Code)
	assert.Equal(t, "echo", env.Error.Node)
	assert.Equal(t, "exploded", env.Error.Message)
}

func TestGraphHandler_InvokeBadRequests(t *testing.T) {
	srv := newTestServer(t)

	t.Run("content type", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/v1/graphs/echo/invoke", "text/plain", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/v1/graphs/echo/invoke", map[string]any{"bogus": 1})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, string(api.ErrInvalidRequest), env.Error.Code)
	})

	t.Run("input type mismatch", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/v1/graphs/echo/invoke", map[string]any{"input": []int{1}})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "input does not match the graph state", env.Error.Message)
	})

	t.Run("unknown graph", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/graphs/nope/invoke", map[string]any{})
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestGraphHandler_InterruptResumeLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/v1/graphs/tickets"

	// First call pauses in approve.
	code, env := doJSON(t, http.MethodPost, base+"/invoke", map[string]any{
		"thread_id": "t-1",
		"input":     map[string]string{"text": "refund"},
	})
	require.Equal(t, http.StatusOK, code)
	first := decodeData[api.RunResponse](t, env)
	assert.Equal(t, "interrupted", first.Status)
	assert.Equal(t, "t-1", first.ThreadID)
	require.NotNil(t, first.Interrupt)
	assert.Equal(t, "approve", first.Interrupt.Node)
	assert.Equal(t, "node", first.Interrupt.Phase)
	assert.JSONEq(t, `{"question":"approve billing?"}`, string(first.Interrupt.Value))

	code, env = doJSON(t, http.MethodGet, base+"/threads/t-1/state", nil)
	require.Equal(t, http.StatusOK, code)
	paused := decodeData[api.Snapshot](t, env)
	assert.Equal(t, "approve", paused.Next)
	assert.Equal(t, "interrupt", paused.Source)
	require.NotNil(t, paused.Interrupt)

	// Resume delivers the decision to approve.
	code, env = doJSON(t, http.MethodPost, base+"/invoke", map[string]any{
		"thread_id": "t-1",
		"resume":    "yes",
	})
	require.Equal(t, http.StatusOK, code)
	second := decodeData[api.RunResponse](t, env)
	assert.Equal(t, "complete", second.Status)
	assert.Nil(t, second.Interrupt)
	final := decodeTicket(t, second.State)
	assert.Equal(t, "yes", final.Decision)
	assert.Equal(t, "billing", final.Route)
	assert.Equal(t, []string{"classify", "approve", "done"}, final.Trace)

	code, env = doJSON(t, http.MethodGet, base+"/threads/t-1/history", nil)
	require.Equal(t, http.StatusOK, code)
	history := decodeData[[]api.Snapshot](t, env)
	require.GreaterOrEqual(t, len(history), 5)
	assert.Equal(t, "input", history[0].Source)
	last := history[len(history)-1]
	assert.Equal(t, "loop", last.Source)
	assert.Equal(t, graph.END, last.Next)

	// Manual edit records an update checkpoint.
	code, env = doJSON(t, http.MethodPatch, base+"/threads/t-1/state", map[string]any{
		"delta": map[string]string{"text": "edited"},
	})
	require.Equal(t, http.StatusOK, code)
	updated := decodeData[api.Snapshot](t, env)
	assert.Equal(t, "update", updated.Source)
	assert.Equal(t, "edited", decodeTicket(t, updated.State).Text)

	code, env = doJSON(t, http.MethodGet, base+"/threads", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"t-1"}, decodeData[api.ThreadList](t, env).Threads)

	code, env = doJSON(t, http.MethodDelete, base+"/threads/t-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"deleted": "t-1"}, decodeData[map[string]string](t, env))

	code, env = doJSON(t, http.MethodGet, base+"/threads/t-1/state", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(api.ErrThreadNotFound), env.Error.Code)

	code, _ = doJSON(t, http.MethodDelete, base+"/threads/t-1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGraphHandler_ThreadsRequireCheckpointer(t *testing.T) {
	srv := newTestServer(t)

	code, env := doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/echo/threads", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(api.ErrCheckpointDisabled), env.Error.Code)

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/graphs/echo/threads/x/state", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestGraphHandler_UpdateStateValidation(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL + "/v1/graphs/tickets/threads/t-9/state"

	code, env := doJSON(t, http.MethodPatch, url, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "delta is required", env.Error.Message)

	code, _ = doJSON(t, http.MethodPatch, url, map[string]any{"delta": "not an object"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGraphHandler_InvokeTimeout(t *testing.T) {
	h := NewGraphHandler(zap.NewNop(), WithInvokeTimeout(time.Nanosecond))
	require.NoError(t, h.Register(NewRuntime(echoGraph(t))))
	mux := http.NewServeMux()
	h.Routes(mux)

	assert.Equal(t, time.Nanosecond, h.invokeTimeout)
	ctx, cancel := h.runContext(t.Context())
	defer cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
