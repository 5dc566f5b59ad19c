package graph

import (
	"context"
	"sync"
)

// ---------------------------------------------------------------------------
// Shared test state and node helpers
// ---------------------------------------------------------------------------

type testState struct {
	Messages []string `json:"messages,omitempty"`
	Category string   `json:"category,omitempty"`
	Count    int      `json:"count,omitempty"`
	Trace    []string `json:"trace,omitempty"`
}

func (s testState) Merge(u testState) testState {
	s.Messages = AppendReducer[string]()(s.Messages, u.Messages)
	s.Category = KeepNonZeroReducer[string]()(s.Category, u.Category)
	s.Count = SumReducer[int]()(s.Count, u.Count)
	s.Trace = AppendReducer[string]()(s.Trace, u.Trace)
	return s
}

// callCounter counts node executions by name.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *callCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// visit returns a node that appends its name to Trace.
func visit(name string, counter *callCounter) NodeFunc[testState] {
	return func(_ context.Context, _ testState) (NodeOutput[testState], error) {
		if counter != nil {
			counter.inc(name)
		}
		return StateOutput(testState{Trace: []string{name}}), nil
	}
}

func linearGraph(names ...string) *StateGraph[testState] {
	b := NewStateGraph[testState]("linear")
	for _, n := range names {
		b.AddNode(n, visit(n, nil))
	}
	for i := 0; i+1 < len(names); i++ {
		b.AddEdge(names[i], names[i+1])
	}
	b.AddEdge(names[len(names)-1], END)
	b.SetEntryPoint(names[0])
	return b
}
