package demo

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentgraph/graph"
)

// HumanApprovalName is the registered name of the approval graph.
const HumanApprovalName = "human_approval"

// AutoApproveLimit is the largest amount approved without a reviewer.
const AutoApproveLimit = 100

// Approval decisions.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ApprovalRequest is the state of the approval graph.
type ApprovalRequest struct {
	Requester string   `json:"requester,omitempty"`
	Amount    int      `json:"amount,omitempty"`
	Decision  string   `json:"decision,omitempty"`
	Reviewer  string   `json:"reviewer,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Trace     []string `json:"trace,omitempty"`
}

func (r ApprovalRequest) Merge(u ApprovalRequest) ApprovalRequest {
	r.Requester = graph.KeepNonZeroReducer[string]()(r.Requester, u.Requester)
	r.Amount = graph.KeepNonZeroReducer[int]()(r.Amount, u.Amount)
	r.Decision = graph.KeepNonZeroReducer[string]()(r.Decision, u.Decision)
	r.Reviewer = graph.KeepNonZeroReducer[string]()(r.Reviewer, u.Reviewer)
	r.Outcome = graph.KeepNonZeroReducer[string]()(r.Outcome, u.Outcome)
	r.Trace = graph.AppendReducer[string]()(r.Trace, u.Trace)
	return r
}

// ReviewPrompt is the interrupt value shown to the reviewer.
type ReviewPrompt struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// ParseDecision reads a resume value. It accepts a bool, one of the decision
// strings, or an object with "decision" and optional "reviewer" keys.
func ParseDecision(v any) (decision, reviewer string, err error) {
	switch d := v.(type) {
	case bool:
		if d {
			return DecisionApproved, "", nil
		}
		return DecisionRejected, "", nil
	case string:
		switch strings.ToLower(d) {
		case DecisionApproved, "approve", "yes":
			return DecisionApproved, "", nil
		case DecisionRejected, "reject", "no":
			return DecisionRejected, "", nil
		}
	case map[string]any:
		decision, _, err = ParseDecision(d["decision"])
		if err != nil {
			return "", "", err
		}
		reviewer, _ = d["reviewer"].(string)
		return decision, reviewer, nil
	}
	return "", "", fmt.Errorf("unrecognized decision %v", v)
}

func submitNode(_ context.Context, r ApprovalRequest) (graph.NodeOutput[ApprovalRequest], error) {
	if r.Amount <= 0 {
		return graph.NodeOutput[ApprovalRequest]{}, fmt.Errorf("amount must be positive, got %d", r.Amount)
	}
	delta := ApprovalRequest{Trace: []string{"submit"}}
	if r.Amount <= AutoApproveLimit {
		delta.Decision = DecisionApproved
		delta.Reviewer = "auto"
	}
	return graph.StateOutput(delta), nil
}

func reviewNode(ctx context.Context, r ApprovalRequest) (graph.NodeOutput[ApprovalRequest], error) {
	v, ok := graph.ResumeValue(ctx)
	if !ok {
		return graph.Interrupt[ApprovalRequest](ReviewPrompt{
			Question: fmt.Sprintf("Approve %d requested by %s?", r.Amount, r.Requester),
			Options:  []string{DecisionApproved, DecisionRejected},
		}), nil
	}
	decision, reviewer, err := ParseDecision(v)
	if err != nil {
		return graph.NodeOutput[ApprovalRequest]{}, err
	}
	return graph.StateOutput(ApprovalRequest{
		Decision: decision,
		Reviewer: reviewer,
		Trace:    []string{"review"},
	}), nil
}

func outcomeNode(name, outcome string) graph.NodeFunc[ApprovalRequest] {
	return func(_ context.Context, _ ApprovalRequest) (graph.NodeOutput[ApprovalRequest], error) {
		return graph.StateOutput(ApprovalRequest{Outcome: outcome, Trace: []string{name}}), nil
	}
}

func decisionRoute(r ApprovalRequest) string {
	if r.Decision == DecisionApproved {
		return DecisionApproved
	}
	return DecisionRejected
}

// NewHumanApproval compiles the approval graph. Amounts above
// AutoApproveLimit pause in review until resumed with a decision, so the graph
// needs a checkpointer for those runs.
func NewHumanApproval(opts ...graph.CompileOption) (*graph.CompiledGraph[ApprovalRequest], error) {
	return graph.NewStateGraph[ApprovalRequest](HumanApprovalName).
		AddNodeFunc("submit", submitNode).
		AddNodeFunc("review", reviewNode).
		AddNode("execute", outcomeNode("execute", "paid")).
		AddNode("notify", outcomeNode("notify", "declined")).
		AddConditionalEdgesWithPathMap("submit", func(r ApprovalRequest) string {
			if r.Decision != "" {
				return DecisionApproved
			}
			return "review"
		}, map[string]string{DecisionApproved: "execute", "review": "review"}).
		AddConditionalEdgesWithPathMap("review", decisionRoute, map[string]string{
			DecisionApproved: "execute",
			DecisionRejected: "notify",
		}).
		AddEdge("execute", graph.END).
		AddEdge("notify", graph.END).
		SetEntryPoint("submit").
		Compile(opts...)
}
