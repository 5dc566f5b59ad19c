package graph

import (
	"fmt"
	"strings"
)

const startNode = "__start__"

// DrawMermaid renders the graph as a Mermaid flowchart.
func (g *CompiledGraph[S]) DrawMermaid() string { return g.Topology().Mermaid() }

// DrawDOT renders the graph in Graphviz DOT syntax.
func (g *CompiledGraph[S]) DrawDOT() string { return g.Topology().DOT() }

// Mermaid renders a flowchart: solid arrows for fixed edges, dashed labeled
// arrows for path-map entries. Every name gets a distinct identifier, so
// names that differ only in punctuation stay separate nodes.
func (t Topology) Mermaid() string {
	ids := newMermaidIDs()
	start, end := ids.id(startNode), ids.id(END)
	for _, n := range t.Nodes {
		ids.id(n.Name)
	}

	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	fmt.Fprintf(&sb, "    %s([start])\n", start)
	for _, n := range t.Nodes {
		shape := `["%s"]`
		if n.Deferred {
			shape = `[["%s"]]`
		}
		fmt.Fprintf(&sb, "    %s"+shape+"\n", ids.id(n.Name), mermaidText(n.Name))
	}
	fmt.Fprintf(&sb, "    %s([end])\n", end)

	if t.Entry != "" {
		fmt.Fprintf(&sb, "    %s --> %s\n", start, ids.id(t.Entry))
	}
	for _, e := range t.Edges {
		if e.Kind == EdgeConditional {
			fmt.Fprintf(&sb, "    %s -.->|%s| %s\n", ids.id(e.From), mermaidLabel(e.Label), ids.id(e.To))
			continue
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", ids.id(e.From), ids.id(e.To))
	}
	for _, from := range t.DynamicRouters {
		fmt.Fprintf(&sb, "    %%%% %s routes dynamically\n", mermaidText(from))
	}
	return sb.String()
}

// DOT renders a Graphviz digraph. Conditional edges are dashed and labeled.
func (t Topology) DOT() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", t.Name)
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")
	fmt.Fprintf(&sb, "  %q [shape=circle, label=\"start\"];\n", startNode)
	fmt.Fprintf(&sb, "  %q [shape=doublecircle, label=\"end\"];\n", END)

	for _, n := range t.Nodes {
		attrs := []string{fmt.Sprintf("label=%q", n.Name)}
		if n.Deferred {
			attrs = append(attrs, "peripheries=2")
		}
		if n.InterruptBefore || n.InterruptAfter {
			attrs = append(attrs, "color=red")
		}
		fmt.Fprintf(&sb, "  %q [%s];\n", n.Name, strings.Join(attrs, ", "))
	}

	if t.Entry != "" {
		fmt.Fprintf(&sb, "  %q -> %q;\n", startNode, t.Entry)
	}
	for _, e := range t.Edges {
		if e.Kind == EdgeConditional {
			fmt.Fprintf(&sb, "  %q -> %q [style=dashed,label=%q];\n", e.From, e.To, e.Label)
			continue
		}
		fmt.Fprintf(&sb, "  %q -> %q;\n", e.From, e.To)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// mermaidIDs hands out one identifier per name, suffixing collisions.
type mermaidIDs struct {
	ids  map[string]string
	used map[string]bool
}

func newMermaidIDs() *mermaidIDs {
	return &mermaidIDs{ids: make(map[string]string), used: make(map[string]bool)}
}

func (m *mermaidIDs) id(name string) string {
	if id, ok := m.ids[name]; ok {
		return id
	}
	base := mermaidID(name)
	id := base
	for n := 2; m.used[id]; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	m.ids[name] = id
	m.used[id] = true
	return id
}

// mermaidID maps a node name to a valid Mermaid identifier.
func mermaidID(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	id := sb.String()
	if id == "" || id == "end" || id == "graph" || id == "subgraph" {
		id = "n_" + id
	}
	return id
}

// mermaidText escapes text with Mermaid entity codes.
var mermaidText = strings.NewReplacer(
	"#", "#35;",
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
	"\n", " ",
).Replace

func mermaidLabel(label string) string {
	return strings.NewReplacer(
		"#", "#35;",
		`"`, "#quot;",
		"|", "#124;",
		"<", "#lt;",
		">", "#gt;",
		"\n", " ",
	).Replace(label)
}
