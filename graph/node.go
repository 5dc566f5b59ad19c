package graph

import (
	"context"
	"time"
)

// Node is a unit of work in a graph.
type Node[S any] interface {
	Process(ctx context.Context, state S) (NodeOutput[S], error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc[S any] func(ctx context.Context, state S) (NodeOutput[S], error)

// Process calls f(ctx, state).
func (f NodeFunc[S]) Process(ctx context.Context, state S) (NodeOutput[S], error) {
	return f(ctx, state)
}

// RouterFunc picks the next node for a conditional edge. It returns a node name,
// a path-map label or END.
type RouterFunc[S any] func(state S) string

// CachePolicy enables memoization of a node's output for TTL.
type CachePolicy struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

type nodeSpec[S any] struct {
	name     string
	node     Node[S]
	cache    *CachePolicy
	deferred bool
}

type fixedEdge struct {
	from string
	to   string
}

type conditionalEdge[S any] struct {
	from    string
	router  RouterFunc[S]
	pathMap map[string]string
}

// resolve maps the router result through the path map when it names a label.
func (c *conditionalEdge[S]) resolve(state S) string {
	dest := c.router(state)
	if mapped, ok := c.pathMap[dest]; ok {
		return mapped
	}
	return dest
}
