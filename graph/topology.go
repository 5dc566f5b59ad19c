package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// EdgeKind distinguishes static transitions from router-driven ones.
type EdgeKind string

const (
	EdgeFixed       EdgeKind = "fixed"
	EdgeConditional EdgeKind = "conditional"
)

// TopologyNode describes one node of a compiled graph.
type TopologyNode struct {
	Name            string       `json:"name" yaml:"name"`
	Deferred        bool         `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Cache           *CachePolicy `json:"cache,omitempty" yaml:"cache,omitempty"`
	InterruptBefore bool         `json:"interrupt_before,omitempty" yaml:"interrupt_before,omitempty"`
	InterruptAfter  bool         `json:"interrupt_after,omitempty" yaml:"interrupt_after,omitempty"`
}

// TopologyEdge is a fixed edge or one path-map entry of a conditional edge.
type TopologyEdge struct {
	From  string   `json:"from" yaml:"from"`
	To    string   `json:"to" yaml:"to"`
	Kind  EdgeKind `json:"kind" yaml:"kind"`
	Label string   `json:"label,omitempty" yaml:"label,omitempty"`
}

// Topology is a serializable view of a graph's structure. Routers registered
// without a path map are listed in DynamicRouters since their targets are
// unknown until run time.
type Topology struct {
	Name           string         `json:"name" yaml:"name"`
	Entry          string         `json:"entry" yaml:"entry"`
	Nodes          []TopologyNode `json:"nodes" yaml:"nodes"`
	Edges          []TopologyEdge `json:"edges" yaml:"edges"`
	DynamicRouters []string       `json:"dynamic_routers,omitempty" yaml:"dynamic_routers,omitempty"`
}

// Topology exports the graph structure in registration order.
func (g *CompiledGraph[S]) Topology() Topology {
	t := Topology{Name: g.name, Entry: g.entry}

	for _, name := range g.order {
		spec := g.nodes[name]
		n := TopologyNode{Name: name, Deferred: spec.deferred}
		if spec.cache != nil {
			p := *spec.cache
			n.Cache = &p
		}
		_, n.InterruptBefore = g.interruptBefore[name]
		_, n.InterruptAfter = g.interruptAfter[name]
		t.Nodes = append(t.Nodes, n)
	}

	for _, e := range g.edges {
		t.Edges = append(t.Edges, TopologyEdge{From: e.from, To: e.to, Kind: EdgeFixed})
	}
	for _, from := range g.branchOrder {
		br := g.branches[from]
		if len(br.pathMap) == 0 {
			t.DynamicRouters = append(t.DynamicRouters, from)
			continue
		}
		labels := make([]string, 0, len(br.pathMap))
		for label := range br.pathMap {
			labels = append(labels, label)
		}
		slices.Sort(labels)
		for _, label := range labels {
			t.Edges = append(t.Edges, TopologyEdge{
				From:  from,
				To:    br.pathMap[label],
				Kind:  EdgeConditional,
				Label: label,
			})
		}
	}
	return t
}

// JSON encodes the topology as indented JSON.
func (t Topology) JSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// YAML encodes the topology as YAML.
func (t Topology) YAML() ([]byte, error) {
	return yaml.Marshal(t)
}

// TopologyFromJSON decodes a topology produced by Topology.JSON.
func TopologyFromJSON(data []byte) (Topology, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	return t, nil
}

// TopologyFromYAML decodes a topology produced by Topology.YAML.
func TopologyFromYAML(data []byte) (Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	return t, nil
}
