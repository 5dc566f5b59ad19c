package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/api"
)

const streamErrorTimeout = 5 * time.Second

// HandleStream 处理 GET /v1/graphs/{graph}/stream（WebSocket）。
//
// 客户端连接后发送一个 api.InvokeRequest，服务端逐帧返回 api.StreamEvent：
// 每个完成的节点按请求的模式各一帧 event，最后一帧为 end（附运行结果）
// 或 error，随后以正常状态关闭连接。
func (h *GraphHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("graph", rt.Name()), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	var req api.InvokeRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		h.writeStreamError(conn, api.NewError(api.ErrInvalidRequest, "invalid stream request").WithCause(err))
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	// From here on the client only sends control frames; a peer close cancels ctx.
	ctx = conn.CloseRead(ctx)

	res, err := rt.Stream(ctx, &req, func(ev api.StreamEvent) error {
		return wsjson.Write(ctx, conn, ev)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Debug("stream client went away", zap.String("graph", rt.Name()))
			return
		}
		h.writeStreamError(conn, api.FromGraphError(err))
		conn.Close(websocket.StatusNormalClosure, "run failed")
		return
	}

	if err := wsjson.Write(ctx, conn, api.StreamEvent{Type: api.StreamEventEnd, Result: res}); err != nil {
		h.logger.Debug("write stream result failed", zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

// writeStreamError uses its own deadline; the run context may already be done.
func (h *GraphHandler) writeStreamError(conn *websocket.Conn, apiErr *api.Error) {
	if apiErr.Cause != nil {
		h.logger.Debug("stream failed", zap.Error(apiErr.Cause))
	}
	ctx, cancel := context.WithTimeout(context.Background(), streamErrorTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, api.StreamEvent{Type: api.StreamEventError, Error: apiErr})
}
