package demo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/agentgraph/graph"
)

// ResearchFanoutName is the registered name of the fan-out graph.
const ResearchFanoutName = "research_fanout"

// Research is the state of the fan-out graph. Topic is set on each Send
// payload; Findings accumulate across workers.
type Research struct {
	Topics   []string          `json:"topics,omitempty"`
	Topic    string            `json:"topic,omitempty"`
	Findings map[string]string `json:"findings,omitempty"`
	Summary  string            `json:"summary,omitempty"`
}

func (r Research) Merge(u Research) Research {
	if len(u.Topics) > 0 {
		r.Topics = u.Topics
	}
	r.Findings = graph.MergeMapReducer[string, string]()(r.Findings, u.Findings)
	r.Summary = graph.KeepNonZeroReducer[string]()(r.Summary, u.Summary)
	return r
}

func planNode(_ context.Context, r Research) (graph.NodeOutput[Research], error) {
	if len(r.Topics) == 0 {
		return graph.GotoWithUpdate(graph.END, Research{Summary: "nothing to research"}), nil
	}
	targets := make([]graph.SendTarget[Research], 0, len(r.Topics))
	for _, topic := range r.Topics {
		targets = append(targets, graph.SendTarget[Research]{Node: "research", Payload: Research{Topic: topic}})
	}
	return graph.Send(targets...), nil
}

func researchNode(ctx context.Context, r Research) (graph.NodeOutput[Research], error) {
	if r.Topic == "" {
		return graph.NodeOutput[Research]{}, fmt.Errorf("research payload has no topic")
	}
	finding := fmt.Sprintf("%d notes on %s", len(r.Topic), r.Topic)
	graph.EmitCustom(ctx, map[string]string{"topic": r.Topic, "finding": finding})
	return graph.StateOutput(Research{Findings: map[string]string{r.Topic: finding}}), nil
}

func summarizeNode(_ context.Context, r Research) (graph.NodeOutput[Research], error) {
	topics := make([]string, 0, len(r.Findings))
	for t := range r.Findings {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return graph.StateOutput(Research{
		Summary: fmt.Sprintf("%d topics: %s", len(topics), strings.Join(topics, ", ")),
	}), nil
}

// NewResearchFanout compiles plan -> research (one Send per topic) -> summarize.
// A request without topics ends at plan.
func NewResearchFanout(opts ...graph.CompileOption) (*graph.CompiledGraph[Research], error) {
	return graph.NewStateGraph[Research](ResearchFanoutName).
		AddNodeFunc("plan", planNode).
		AddNodeFunc("research", researchNode).
		AddDeferredNode("summarize", graph.NodeFunc[Research](summarizeNode)).
		AddEdge("research", "summarize").
		AddEdge("summarize", graph.END).
		SetEntryPoint("plan").
		Compile(opts...)
}
