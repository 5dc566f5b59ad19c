package demo

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/agentgraph/graph"
)

// SupportRouterName is the registered name of the support router graph.
const SupportRouterName = "support_router"

// Ticket categories produced by the classifier.
const (
	CategoryBilling   = "billing"
	CategoryTechnical = "technical"
	CategoryGeneral   = "general"
)

// SupportTicket is the state of the support router.
type SupportTicket struct {
	Message  string   `json:"message,omitempty"`
	Category string   `json:"category,omitempty"`
	Urgent   bool     `json:"urgent,omitempty"`
	Replies  []string `json:"replies,omitempty"`
	Trace    []string `json:"trace,omitempty"`
}

// Merge keeps non-empty scalars and appends replies and trace entries.
func (t SupportTicket) Merge(u SupportTicket) SupportTicket {
	t.Message = graph.KeepNonZeroReducer[string]()(t.Message, u.Message)
	t.Category = graph.KeepNonZeroReducer[string]()(t.Category, u.Category)
	t.Urgent = t.Urgent || u.Urgent
	t.Replies = graph.AppendReducer[string]()(t.Replies, u.Replies)
	t.Trace = graph.AppendReducer[string]()(t.Trace, u.Trace)
	return t
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{CategoryBilling, []string{"refund", "invoice", "charge", "payment", "billing"}},
	{CategoryTechnical, []string{"error", "crash", "bug", "outage", "login", "down"}},
}

var urgentWords = []string{"urgent", "asap", "outage", "down", "immediately"}

// Classify returns the category and urgency of a message.
func Classify(message string) (string, bool) {
	lower := strings.ToLower(message)
	urgent := containsAny(lower, urgentWords)
	for _, c := range categoryKeywords {
		if containsAny(lower, c.words) {
			return c.category, urgent
		}
	}
	return CategoryGeneral, urgent
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func classifyNode(ctx context.Context, t SupportTicket) (graph.NodeOutput[SupportTicket], error) {
	category, urgent := Classify(t.Message)
	graph.EmitCustom(ctx, map[string]any{"category": category, "urgent": urgent})
	return graph.StateOutput(SupportTicket{
		Category: category,
		Urgent:   urgent,
		Trace:    []string{"classify"},
	}), nil
}

func replyNode(name, reply string) graph.NodeFunc[SupportTicket] {
	return func(_ context.Context, t SupportTicket) (graph.NodeOutput[SupportTicket], error) {
		text := reply
		if t.Urgent {
			text = "[priority] " + reply
		}
		return graph.StateOutput(SupportTicket{
			Replies: []string{text},
			Trace:   []string{name},
		}), nil
	}
}

// DefaultClassifyTTL is how long classification results are memoized.
const DefaultClassifyTTL = 10 * time.Minute

// NewSupportRouter compiles the support router: classify, then one of the
// three category handlers.
func NewSupportRouter(opts ...graph.CompileOption) (*graph.CompiledGraph[SupportTicket], error) {
	return NewSupportRouterWithCache(DefaultClassifyTTL, opts...)
}

// NewSupportRouterWithCache is NewSupportRouter with a custom classify TTL.
func NewSupportRouterWithCache(ttl time.Duration, opts ...graph.CompileOption) (*graph.CompiledGraph[SupportTicket], error) {
	if ttl <= 0 {
		ttl = DefaultClassifyTTL
	}
	return graph.NewStateGraph[SupportTicket](SupportRouterName).
		AddNodeWithCache("classify", graph.NodeFunc[SupportTicket](classifyNode), graph.CachePolicy{TTL: ttl}).
		AddNode(CategoryBilling, replyNode(CategoryBilling, "A billing specialist will review your account.")).
		AddNode(CategoryTechnical, replyNode(CategoryTechnical, "Engineering has been notified of the issue.")).
		AddNode(CategoryGeneral, replyNode(CategoryGeneral, "Thanks for reaching out, we will reply shortly.")).
		AddConditionalEdgesWithPathMap("classify", func(t SupportTicket) string {
			return t.Category
		}, map[string]string{
			CategoryBilling:   CategoryBilling,
			CategoryTechnical: CategoryTechnical,
			CategoryGeneral:   CategoryGeneral,
		}).
		AddEdge(CategoryBilling, graph.END).
		AddEdge(CategoryTechnical, graph.END).
		AddEdge(CategoryGeneral, graph.END).
		SetEntryPoint("classify").
		Compile(opts...)
}
