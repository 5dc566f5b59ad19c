package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// END is the terminal routing target.
const END = "__end__"

const instrumentationName = "github.com/BaSui01/agentgraph/graph"

// StateGraph provides a fluent API for declaring a graph. Problems found while
// adding nodes and edges are collected and reported by Compile.
type StateGraph[S State[S]] struct {
	name            string
	nodes           map[string]*nodeSpec[S]
	order           []string
	edges           []fixedEdge
	branches        map[string]*conditionalEdge[S]
	branchOrder     []string
	entry           string
	interruptBefore []string
	interruptAfter  []string
	errs            []error
}

// NewStateGraph creates an empty graph builder.
func NewStateGraph[S State[S]](name string) *StateGraph[S] {
	return &StateGraph[S]{
		name:     name,
		nodes:    make(map[string]*nodeSpec[S]),
		branches: make(map[string]*conditionalEdge[S]),
	}
}

func (b *StateGraph[S]) addNode(spec *nodeSpec[S]) *StateGraph[S] {
	switch {
	case spec.name == "" || spec.name == END:
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrInvalidNodeName, spec.name))
		return b
	case spec.node == nil:
		b.errs = append(b.errs, fmt.Errorf("node %s has no implementation", spec.name))
		return b
	}
	if _, exists := b.nodes[spec.name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, spec.name))
		return b
	}
	b.nodes[spec.name] = spec
	b.order = append(b.order, spec.name)
	return b
}

// AddNode registers a node under a unique name.
func (b *StateGraph[S]) AddNode(name string, node Node[S]) *StateGraph[S] {
	return b.addNode(&nodeSpec[S]{name: name, node: node})
}

// AddNodeFunc registers a function as a node.
func (b *StateGraph[S]) AddNodeFunc(name string, fn func(ctx context.Context, state S) (NodeOutput[S], error)) *StateGraph[S] {
	if fn == nil {
		return b.addNode(&nodeSpec[S]{name: name})
	}
	return b.addNode(&nodeSpec[S]{name: name, node: NodeFunc[S](fn)})
}

// AddNodeWithCache registers a node whose output is memoized per input state.
func (b *StateGraph[S]) AddNodeWithCache(name string, node Node[S], policy CachePolicy) *StateGraph[S] {
	if policy.TTL <= 0 {
		b.errs = append(b.errs, fmt.Errorf("node %s: cache ttl must be positive, got %s", name, policy.TTL))
		return b
	}
	p := policy
	return b.addNode(&nodeSpec[S]{name: name, node: node, cache: &p})
}

// AddDeferredNode registers a fan-in node meant to run once all of its
// declared incoming edges have fired.
func (b *StateGraph[S]) AddDeferredNode(name string, node Node[S]) *StateGraph[S] {
	return b.addNode(&nodeSpec[S]{name: name, node: node, deferred: true})
}

// AddEdge adds an unconditional transition. to may be END.
func (b *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	b.edges = append(b.edges, fixedEdge{from: from, to: to})
	return b
}

// AddConditionalEdges routes from a node using router. Without a path map the
// destinations cannot be listed by Topology.
func (b *StateGraph[S]) AddConditionalEdges(from string, router RouterFunc[S]) *StateGraph[S] {
	return b.AddConditionalEdgesWithPathMap(from, router, nil)
}

// AddConditionalEdgesWithPathMap routes from a node using router and declares
// the possible destinations as label -> node. A router result that matches a
// label is translated through the map; any other result is used as a node name.
func (b *StateGraph[S]) AddConditionalEdgesWithPathMap(from string, router RouterFunc[S], pathMap map[string]string) *StateGraph[S] {
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %s has no router", from))
		return b
	}
	if _, exists := b.branches[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("conditional edges already set for node %s", from))
		return b
	}
	var pm map[string]string
	if len(pathMap) > 0 {
		pm = make(map[string]string, len(pathMap))
		for label, target := range pathMap {
			pm[label] = target
		}
	}
	b.branches[from] = &conditionalEdge[S]{from: from, router: router, pathMap: pm}
	b.branchOrder = append(b.branchOrder, from)
	return b
}

// SetEntryPoint sets the first node to run.
func (b *StateGraph[S]) SetEntryPoint(name string) *StateGraph[S] {
	b.entry = name
	return b
}

// InterruptBefore pauses runs before the named nodes execute.
func (b *StateGraph[S]) InterruptBefore(names ...string) *StateGraph[S] {
	b.interruptBefore = append(b.interruptBefore, names...)
	return b
}

// InterruptAfter pauses runs after the named nodes' updates are merged.
func (b *StateGraph[S]) InterruptAfter(names ...string) *StateGraph[S] {
	b.interruptAfter = append(b.interruptAfter, names...)
	return b
}

// IncomingEdgeCount counts the statically known edges into name: fixed edges
// plus path-map entries. Routers without a path map are not counted.
func (b *StateGraph[S]) IncomingEdgeCount(name string) int {
	return incomingEdgeCount(name, b.edges, b.branches)
}

func incomingEdgeCount[S any](name string, edges []fixedEdge, branches map[string]*conditionalEdge[S]) int {
	count := 0
	for _, e := range edges {
		if e.to == name {
			count++
		}
	}
	for _, br := range branches {
		for _, target := range br.pathMap {
			if target == name {
				count++
			}
		}
	}
	return count
}

// validate checks the structure and returns every problem found.
func (b *StateGraph[S]) validate(opts *compileOptions) []error {
	errs := append([]error(nil), b.errs...)

	if b.entry == "" {
		errs = append(errs, fmt.Errorf("entry point not set"))
	} else if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: entry point does not exist: %s", ErrNodeNotFound, b.entry))
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge references non-existent source node: %s", ErrNodeNotFound, e.from))
		}
		if e.to != END {
			if _, ok := b.nodes[e.to]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge references non-existent target node: %s", ErrNodeNotFound, e.to))
			}
		}
	}

	for _, from := range b.branchOrder {
		br := b.branches[from]
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: conditional edge references non-existent source node: %s", ErrNodeNotFound, from))
		}
		for label, target := range br.pathMap {
			if target == END {
				continue
			}
			if _, ok := b.nodes[target]; !ok {
				errs = append(errs, fmt.Errorf("%w: path map entry %q of %s references non-existent node: %s", ErrNodeNotFound, label, from, target))
			}
		}
	}

	markers := append(append([]string(nil), b.interruptBefore...), b.interruptAfter...)
	for _, name := range markers {
		if _, ok := b.nodes[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: interrupt marker references non-existent node: %s", ErrNodeNotFound, name))
		}
	}
	if len(markers) > 0 && opts.checkpointer == nil {
		errs = append(errs, fmt.Errorf("%w: interrupt markers need a checkpointer", ErrCheckpointerRequired))
	}

	return errs
}

// Compile validates the graph and returns an immutable executable graph.
func (b *StateGraph[S]) Compile(opts ...CompileOption) (*CompiledGraph[S], error) {
	o := &compileOptions{recursionLimit: DefaultRecursionLimit}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	if errs := b.validate(o); len(errs) > 0 {
		return nil, &ValidationError{Graph: b.name, Errs: errs}
	}

	g := &CompiledGraph[S]{
		name:            b.name,
		entry:           b.entry,
		nodes:           make(map[string]*nodeSpec[S], len(b.nodes)),
		order:           append([]string(nil), b.order...),
		edges:           append([]fixedEdge(nil), b.edges...),
		fixed:           make(map[string]string),
		branches:        make(map[string]*conditionalEdge[S], len(b.branches)),
		branchOrder:     append([]string(nil), b.branchOrder...),
		interruptBefore: toSet(b.interruptBefore),
		interruptAfter:  toSet(b.interruptAfter),
		checkpointer:    o.checkpointer,
		logger:          o.logger.With(zap.String("component", "graph_executor"), zap.String("graph", b.name)),
		observer:        o.observer,
		tracer:          o.tracer,
		recursionLimit:  o.recursionLimit,
		now:             o.now,
	}
	if g.now == nil {
		g.now = timeNow
	}
	for name, spec := range b.nodes {
		cp := *spec
		g.nodes[name] = &cp
	}
	for _, e := range b.edges {
		if _, ok := g.fixed[e.from]; !ok {
			g.fixed[e.from] = e.to
		}
	}
	for from, br := range b.branches {
		cp := *br
		g.branches[from] = &cp
	}
	g.cache = newNodeCache[S](g.now)

	o.logger.Info("state graph compiled",
		zap.String("name", b.name),
		zap.Int("nodes", len(g.nodes)),
		zap.Int("edges", len(g.edges)),
		zap.Int("conditional_edges", len(g.branches)),
		zap.Bool("checkpointer", g.checkpointer != nil),
	)

	return g, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
