package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/BaSui01/agentgraph/graph"
)

// collect reads every metric from reader keyed by instrument name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if want.Len() == 0 || dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	return total
}

func TestGraphMetrics_RecordsGraphRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p := NewProviders(nil, nil, []sdkmetric.Option{sdkmetric.WithReader(reader)})
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	gm, err := NewGraphMetrics(p.Meter(InstrumentationName))
	require.NoError(t, err)

	step := func(_ context.Context, _ tally) (graph.NodeOutput[tally], error) {
		return graph.StateOutput(tally{N: 1}), nil
	}
	g, err := graph.NewStateGraph[tally]("metered").
		AddNodeWithCache("first", graph.NodeFunc[tally](step), graph.CachePolicy{TTL: time.Minute}).
		AddNodeFunc("second", step).
		AddEdge("first", "second").
		SetEntryPoint("first").
		InterruptBefore("second").
		Compile(graph.WithObserver(gm), graph.WithCheckpointer(graph.NewMemorySaver()))
	require.NoError(t, err)

	ctx := context.Background()
	res, err := g.Invoke(ctx, tally{}, graph.WithThreadID("m"))
	require.NoError(t, err)
	require.True(t, res.IsInterrupted())
	_, err = g.Invoke(ctx, tally{}, graph.WithThreadID("m"))
	require.NoError(t, err)
	_, err = g.Invoke(ctx, tally{}, graph.WithThreadID("other"))
	require.NoError(t, err)

	got := collect(t, reader)
	graphAttr := attribute.String("graph", "metered")

	assert.Equal(t, int64(2), sumOf(t, got["agentgraph.run.total"], graphAttr, attribute.String("status", graph.RunStatusInterrupted)))
	assert.Equal(t, int64(1), sumOf(t, got["agentgraph.run.total"], graphAttr, attribute.String("status", graph.RunStatusComplete)))
	assert.Equal(t, int64(0), sumOf(t, got["agentgraph.run.active"]))
	assert.Equal(t, int64(1), sumOf(t, got["agentgraph.cache.hit.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["agentgraph.cache.miss.total"]))
	assert.Equal(t, int64(2), sumOf(t, got["agentgraph.interrupt.total"],
		graphAttr, attribute.String("node", "second"), attribute.String("phase", string(graph.PhaseBefore))))
	assert.Equal(t, int64(3), sumOf(t, got["agentgraph.node.total"]))
	assert.Positive(t, sumOf(t, got["agentgraph.checkpoint.total"]))

	hist, ok := got["agentgraph.node.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestProviders_MeterFallsBackToGlobal(t *testing.T) {
	var p *Providers
	gm, err := NewGraphMetrics(p.Meter(InstrumentationName))
	require.NoError(t, err)
	gm.OnRunStart("noop")
	gm.OnRunEnd("noop", graph.RunStatusComplete, 0)
}
