package demo

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentgraph/api/handlers"
	"github.com/BaSui01/agentgraph/graph"
)

// Names lists the demo graphs in registration order.
var Names = []string{SupportRouterName, HumanApprovalName, ResearchFanoutName}

// Runtimes compiles every demo graph with opts and wraps each for the HTTP
// handlers. cacheTTL applies to cached nodes; zero keeps the default.
func Runtimes(cacheTTL time.Duration, opts ...graph.CompileOption) ([]handlers.Runtime, error) {
	support, err := NewSupportRouterWithCache(cacheTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", SupportRouterName, err)
	}
	approval, err := NewHumanApproval(opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", HumanApprovalName, err)
	}
	research, err := NewResearchFanout(opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", ResearchFanoutName, err)
	}
	return []handlers.Runtime{
		handlers.NewRuntime(support),
		handlers.NewRuntime(approval),
		handlers.NewRuntime(research),
	}, nil
}

// Lookup returns the runtime named name.
func Lookup(runtimes []handlers.Runtime, name string) (handlers.Runtime, error) {
	for _, rt := range runtimes {
		if rt.Name() == name {
			return rt, nil
		}
	}
	return nil, fmt.Errorf("unknown graph %q (known: %v)", name, Names)
}
