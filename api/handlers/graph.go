package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/api"
	"github.com/BaSui01/agentgraph/graph/render"
)

// =============================================================================
// 🕸️ 图运行时 Handler
// =============================================================================

// GraphHandler 通过 HTTP 暴露已注册的图
type GraphHandler struct {
	mu       sync.RWMutex
	runtimes map[string]Runtime

	invokeTimeout time.Duration
	logger        *zap.Logger
}

// GraphHandlerOption 配置 GraphHandler
type GraphHandlerOption func(*GraphHandler)

// WithInvokeTimeout 限制单次运行时长，0 表示不限制
func WithInvokeTimeout(d time.Duration) GraphHandlerOption {
	return func(h *GraphHandler) { h.invokeTimeout = d }
}

// NewGraphHandler 创建图处理器
func NewGraphHandler(logger *zap.Logger, opts ...GraphHandlerOption) *GraphHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GraphHandler{
		runtimes: make(map[string]Runtime),
		logger:   logger.With(zap.String("component", "graph_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册图，同名图会被拒绝
func (h *GraphHandler) Register(rt Runtime) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runtimes[rt.Name()]; ok {
		return fmt.Errorf("graph %q already registered", rt.Name())
	}
	h.runtimes[rt.Name()] = rt
	h.logger.Info("graph registered", zap.String("graph", rt.Name()))
	return nil
}

// Routes 在 mux 上挂载全部路由
func (h *GraphHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/graphs", h.HandleListGraphs)
	mux.HandleFunc("GET /v1/graphs/{graph}", h.HandleGetGraph)
	mux.HandleFunc("GET /v1/graphs/{graph}/topology", h.HandleTopology)
	mux.HandleFunc("POST /v1/graphs/{graph}/invoke", h.HandleInvoke)
	mux.HandleFunc("GET /v1/graphs/{graph}/stream", h.HandleStream)
	mux.HandleFunc("GET /v1/graphs/{graph}/threads", h.HandleListThreads)
	mux.HandleFunc("GET /v1/graphs/{graph}/threads/{thread}/state", h.HandleGetState)
	mux.HandleFunc("PATCH /v1/graphs/{graph}/threads/{thread}/state", h.HandleUpdateState)
	mux.HandleFunc("GET /v1/graphs/{graph}/threads/{thread}/history", h.HandleHistory)
	mux.HandleFunc("DELETE /v1/graphs/{graph}/threads/{thread}", h.HandleDeleteThread)
}

func (h *GraphHandler) runtime(w http.ResponseWriter, r *http.Request) (Runtime, bool) {
	name := r.PathValue("graph")
	h.mu.RLock()
	rt, ok := h.runtimes[name]
	h.mu.RUnlock()
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, api.ErrGraphNotFound, fmt.Sprintf("graph %q not found", name), h.logger)
	}
	return rt, ok
}

func (h *GraphHandler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.invokeTimeout > 0 {
		return context.WithTimeout(ctx, h.invokeTimeout)
	}
	return context.WithCancel(ctx)
}

func (h *GraphHandler) fail(w http.ResponseWriter, graphName string, err error) {
	apiErr := api.FromGraphError(err)
	h.logger.Debug("graph request failed", zap.String("graph", graphName), zap.Error(err))
	WriteError(w, apiErr, h.logger)
}

// =============================================================================
// 🎯 图信息
// =============================================================================

// HandleListGraphs 处理 GET /v1/graphs
func (h *GraphHandler) HandleListGraphs(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	infos := make([]api.GraphInfo, 0, len(h.runtimes))
	for _, rt := range h.runtimes {
		infos = append(infos, rt.Info())
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	WriteSuccess(w, infos)
}

// HandleGetGraph 处理 GET /v1/graphs/{graph}
func (h *GraphHandler) HandleGetGraph(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, rt.Info())
}

// HandleTopology 处理 GET /v1/graphs/{graph}/topology?format=json|yaml|mermaid|dot|svg
func (h *GraphHandler) HandleTopology(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	topo := rt.Topology()

	var (
		body        []byte
		contentType string
		err         error
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		WriteSuccess(w, topo)
		return
	case "yaml":
		body, err = topo.YAML()
		contentType = "application/yaml; charset=utf-8"
	case "mermaid":
		body, contentType = []byte(topo.Mermaid()), "text/plain; charset=utf-8"
	case "dot":
		body, contentType = []byte(topo.DOT()), "text/vnd.graphviz; charset=utf-8"
	case "svg":
		body, err = render.SVG(r.Context(), topo.DOT())
		contentType = "image/svg+xml"
	default:
		WriteErrorMessage(w, http.StatusBadRequest, api.ErrInvalidRequest,
			fmt.Sprintf("unsupported format %q (json, yaml, mermaid, dot, svg)", format), h.logger)
		return
	}
	if err != nil {
		WriteError(w, api.NewError(api.ErrInternalError, "render topology").WithCause(err), h.logger)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// =============================================================================
// ▶️ 运行
// =============================================================================

// HandleInvoke 处理 POST /v1/graphs/{graph}/invoke
// @Summary 运行或恢复图
// @Tags 图
// @Accept json
// @Produce json
// @Param graph path string true "图名称"
// @Param request body api.InvokeRequest true "调用请求"
// @Success 200 {object} Response{data=api.RunResponse}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 422 {object} Response "节点失败或超过递归上限"
// @Router /v1/graphs/{graph}/invoke [post]
func (h *GraphHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.InvokeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	res, err := rt.Invoke(ctx, &req)
	if err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	WriteSuccess(w, res)
}

// =============================================================================
// 🧵 线程
// =============================================================================

// HandleListThreads 处理 GET /v1/graphs/{graph}/threads
func (h *GraphHandler) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	threads, err := rt.Threads(r.Context())
	if err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	if threads == nil {
		threads = []string{}
	}
	WriteSuccess(w, api.ThreadList{Graph: rt.Name(), Threads: threads})
}

// HandleGetState 处理 GET /v1/graphs/{graph}/threads/{thread}/state
func (h *GraphHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	snap, err := rt.State(r.Context(), r.PathValue("thread"))
	if err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	WriteSuccess(w, snap)
}

// HandleUpdateState 处理 PATCH /v1/graphs/{graph}/threads/{thread}/state
func (h *GraphHandler) HandleUpdateState(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.UpdateStateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Delta) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, api.ErrInvalidRequest, "delta is required", h.logger)
		return
	}

	snap, err := rt.UpdateState(r.Context(), r.PathValue("thread"), req.Delta)
	if err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	WriteSuccess(w, snap)
}

// HandleHistory 处理 GET /v1/graphs/{graph}/threads/{thread}/history
func (h *GraphHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	history, err := rt.History(r.Context(), r.PathValue("thread"))
	if err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	WriteSuccess(w, history)
}

// HandleDeleteThread 处理 DELETE /v1/graphs/{graph}/threads/{thread}
func (h *GraphHandler) HandleDeleteThread(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	thread := r.PathValue("thread")
	if err := rt.DeleteThread(r.Context(), thread); err != nil {
		h.fail(w, rt.Name(), err)
		return
	}
	h.logger.Info("thread deleted", zap.String("graph", rt.Name()), zap.String("thread_id", thread))
	WriteSuccess(w, map[string]string{"deleted": thread})
}
