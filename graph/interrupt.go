package graph

import (
	"context"
	"sync"

	"github.com/BaSui01/agentgraph/internal/ctxkeys"
)

// InterruptPhase tells where a run paused.
type InterruptPhase string

const (
	// PhaseBefore is a declarative pause before the node ran.
	PhaseBefore InterruptPhase = "before"
	// PhaseAfter is a declarative pause after the node's update was merged.
	PhaseAfter InterruptPhase = "after"
	// PhaseNode is an imperative pause requested by the node itself.
	PhaseNode InterruptPhase = "node"
)

// InterruptInfo describes why a run returned StatusInterrupted.
type InterruptInfo struct {
	Node  string
	Phase InterruptPhase
	Value any
}

type resumeKey struct{}

type resumeValue struct {
	value any
}

func withResumeValue(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, resumeKey{}, resumeValue{value: v})
}

// ResumeValue returns the value passed with WithResume to the node that
// resumes a paused thread. Other nodes see ok == false.
func ResumeValue(ctx context.Context) (any, bool) {
	v, ok := ctx.Value(resumeKey{}).(resumeValue)
	if !ok {
		return nil, false
	}
	return v.value, true
}

// ThreadID returns the thread id of the running graph.
func ThreadID(ctx context.Context) (string, bool) { return ctxkeys.ThreadID(ctx) }

// RunID returns the id of the current invocation.
func RunID(ctx context.Context) (string, bool) { return ctxkeys.RunID(ctx) }

// NodeName returns the name of the node being executed.
func NodeName(ctx context.Context) (string, bool) { return ctxkeys.Node(ctx) }

type customSinkKey struct{}

type customSink struct {
	mu       sync.Mutex
	payloads []any
}

func (s *customSink) push(v any) {
	s.mu.Lock()
	s.payloads = append(s.payloads, v)
	s.mu.Unlock()
}

func (s *customSink) drain() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.payloads
	s.payloads = nil
	return out
}

// EmitCustom pushes a payload to StreamCustom subscribers. It reports false
// when nobody is streaming custom events for this run.
func EmitCustom(ctx context.Context, payload any) bool {
	sink, ok := ctx.Value(customSinkKey{}).(*customSink)
	if !ok || sink == nil {
		return false
	}
	sink.push(payload)
	return true
}
