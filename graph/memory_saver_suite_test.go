package graph_test

import (
	"testing"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/graph/checkpoint/checkpointtest"
)

func TestMemorySaver_Conformance(t *testing.T) {
	checkpointtest.Run(t, func(*testing.T) graph.ThreadStore {
		return graph.NewMemorySaver()
	})
}
