package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentgraph/graph"
)

// InstrumentationName names the meter and tracer used for graph execution.
const InstrumentationName = "github.com/BaSui01/agentgraph/graph"

// GraphMetrics 通过 OTel metric API 记录图执行事件，实现 graph.Observer。
// 与 Prometheus Collector 并行使用时，数据经 OTLP 导出。
type GraphMetrics struct {
	// 计数器
	runTotal        metric.Int64Counter
	nodeTotal       metric.Int64Counter
	cacheHitTotal   metric.Int64Counter
	cacheMissTotal  metric.Int64Counter
	checkpointTotal metric.Int64Counter
	interruptTotal  metric.Int64Counter
	// 直方图
	runDuration  metric.Float64Histogram
	nodeDuration metric.Float64Histogram
	// 活跃运行数
	activeRuns metric.Int64UpDownCounter
}

// NewGraphMetrics 在 meter 上创建全部指标
func NewGraphMetrics(meter metric.Meter) (*GraphMetrics, error) {
	m := &GraphMetrics{}
	var err error

	if m.runTotal, err = meter.Int64Counter("agentgraph.run.total",
		metric.WithDescription("Total number of graph runs"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}
	if m.nodeTotal, err = meter.Int64Counter("agentgraph.node.total",
		metric.WithDescription("Total number of node executions"),
		metric.WithUnit("{execution}")); err != nil {
		return nil, err
	}
	if m.cacheHitTotal, err = meter.Int64Counter("agentgraph.cache.hit.total",
		metric.WithDescription("Total node cache hits"),
		metric.WithUnit("{hit}")); err != nil {
		return nil, err
	}
	if m.cacheMissTotal, err = meter.Int64Counter("agentgraph.cache.miss.total",
		metric.WithDescription("Total node cache misses"),
		metric.WithUnit("{miss}")); err != nil {
		return nil, err
	}
	if m.checkpointTotal, err = meter.Int64Counter("agentgraph.checkpoint.total",
		metric.WithDescription("Total checkpoints written"),
		metric.WithUnit("{checkpoint}")); err != nil {
		return nil, err
	}
	if m.interruptTotal, err = meter.Int64Counter("agentgraph.interrupt.total",
		metric.WithDescription("Total runs paused by an interrupt"),
		metric.WithUnit("{interrupt}")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("agentgraph.run.duration",
		metric.WithDescription("Graph run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60)); err != nil {
		return nil, err
	}
	if m.nodeDuration, err = meter.Float64Histogram("agentgraph.node.duration",
		metric.WithDescription("Node execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10)); err != nil {
		return nil, err
	}
	if m.activeRuns, err = meter.Int64UpDownCounter("agentgraph.run.active",
		metric.WithDescription("Number of graph runs in progress"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GraphMetrics) OnRunStart(graphName string) {
	m.activeRuns.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("graph", graphName)))
}

func (m *GraphMetrics) OnRunEnd(graphName, status string, duration time.Duration) {
	ctx := context.Background()
	m.activeRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("graph", graphName)))

	attrs := metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("status", status),
	)
	m.runTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *GraphMetrics) OnNodeEnd(graphName, node string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("node", node),
		attribute.String("status", status),
	)
	m.nodeTotal.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *GraphMetrics) OnCacheHit(graphName, node string) {
	m.cacheHitTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("node", node),
	))
}

func (m *GraphMetrics) OnCacheMiss(graphName, node string) {
	m.cacheMissTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("node", node),
	))
}

func (m *GraphMetrics) OnCheckpoint(graphName string, source graph.CheckpointSource) {
	m.checkpointTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("source", string(source)),
	))
}

func (m *GraphMetrics) OnInterrupt(graphName, node string, phase graph.InterruptPhase) {
	m.interruptTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("node", node),
		attribute.String("phase", string(phase)),
	))
}

var _ graph.Observer = (*GraphMetrics)(nil)
