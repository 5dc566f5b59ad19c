package api

import (
	"encoding/json"
	"time"
)

// =============================================================================
// 图运行类型
// =============================================================================

// InvokeRequest 启动或恢复一次图运行。
// @Description 图调用请求结构
type InvokeRequest struct {
	// 线程 ID，为空时由服务端生成
	ThreadID string `json:"thread_id,omitempty" example:"thread-42"`
	// 初始状态（JSON，结构由图决定）；恢复已暂停线程时忽略
	Input json.RawMessage `json:"input,omitempty" swaggertype:"object"`
	// 恢复值，传递给重新执行的节点
	Resume json.RawMessage `json:"resume,omitempty" swaggertype:"object"`
	// 流式模式（仅 WebSocket 流），默认 values
	Modes []string `json:"modes,omitempty" example:"values"`
}

// HasResume 请求是否携带恢复值
func (r *InvokeRequest) HasResume() bool {
	return len(r.Resume) > 0 && string(r.Resume) != "null"
}

// InterruptView 描述一次暂停。
type InterruptView struct {
	Node  string          `json:"node"`
	Phase string          `json:"phase"`
	Value json.RawMessage `json:"value,omitempty" swaggertype:"object"`
}

// RunResponse 是一次运行的结果。
// @Description 图运行结果
type RunResponse struct {
	// complete 或 interrupted
	Status    string          `json:"status" example:"complete"`
	ThreadID  string          `json:"thread_id,omitempty"`
	RunID     string          `json:"run_id"`
	Steps     int             `json:"steps"`
	State     json.RawMessage `json:"state" swaggertype:"object"`
	Interrupt *InterruptView  `json:"interrupt,omitempty"`
}

// Snapshot 是一个检查点的外部视图。
type Snapshot struct {
	CheckpointID string          `json:"checkpoint_id"`
	Step         int             `json:"step"`
	Source       string          `json:"source"`
	Next         string          `json:"next,omitempty"`
	State        json.RawMessage `json:"state" swaggertype:"object"`
	Interrupt    *InterruptView  `json:"interrupt,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UpdateStateRequest 在不执行节点的情况下合并状态增量。
type UpdateStateRequest struct {
	Delta json.RawMessage `json:"delta" swaggertype:"object"`
}

// GraphInfo 列表接口中的图摘要。
type GraphInfo struct {
	Name         string   `json:"name"`
	Entry        string   `json:"entry"`
	Nodes        []string `json:"nodes"`
	Checkpointed bool     `json:"checkpointed"`
}

// ThreadList 线程列表。
type ThreadList struct {
	Graph   string   `json:"graph"`
	Threads []string `json:"threads"`
}

// =============================================================================
// 流式类型
// =============================================================================

// StreamEvent 类型
const (
	StreamEventNode  = "event"
	StreamEventEnd   = "end"
	StreamEventError = "error"
)

// StreamEvent 是 WebSocket 上的一帧。
// Type 为 event 时携带 Mode/Node/State/Payload；end 携带 Result；error 携带 Error。
type StreamEvent struct {
	Type    string          `json:"type"`
	Mode    string          `json:"mode,omitempty"`
	Node    string          `json:"node,omitempty"`
	State   json.RawMessage `json:"state,omitempty" swaggertype:"object"`
	Payload any             `json:"payload,omitempty"`
	Result  *RunResponse    `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}
