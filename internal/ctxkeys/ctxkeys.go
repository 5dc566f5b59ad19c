package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey  contextKey = "trace_id"
	runIDKey    contextKey = "run_id"
	threadIDKey contextKey = "thread_id"
	nodeKey     contextKey = "node"
	userIDKey   contextKey = "user_id"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 设置 TraceID（HTTP 层的 request id）
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) { return getString(ctx, traceIDKey) }

// WithRunID 设置单次图调用的 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) { return getString(ctx, runIDKey) }

// WithThreadID 设置 Checkpoint 线程 ID
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return withString(ctx, threadIDKey, threadID)
}

// ThreadID 获取线程 ID
func ThreadID(ctx context.Context) (string, bool) { return getString(ctx, threadIDKey) }

// WithNode 设置当前执行的节点名
func WithNode(ctx context.Context, node string) context.Context {
	return withString(ctx, nodeKey, node)
}

// Node 获取当前节点名
func Node(ctx context.Context) (string, bool) { return getString(ctx, nodeKey) }

// WithUserID 设置认证后的用户 ID（JWT sub）
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

// UserID 获取用户 ID
func UserID(ctx context.Context) (string, bool) { return getString(ctx, userIDKey) }
