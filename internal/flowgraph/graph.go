// Package flowgraph implements the footprint layer: the bounded subgraph
// of the heap a memory write's proof obligation actually needs to reason
// about, built by a depth-bounded BFS and grown on demand via the SMT
// layer when the frontier does not yet cover everything the checks in
// internal/post need.
package flowgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// Node is one footprint member: an address plus every flow
// and field symbol the pre/post checks compare, kept side by side so a
// check can ask "did this change" without re-deriving anything.
type Node struct {
	Address *sym.Symbol
	Needed  bool

	PreShared, PostShared bool

	PreAllInflow, PreGraphInflow, PreKeyset    *sym.Symbol
	PostAllInflow, PostGraphInflow, PostKeyset *sym.Symbol
	FrameInflow                                *sym.Symbol

	PreFields, PostFields map[string]*sym.Symbol

	// PreAllOutflow/PreGraphOutflow/PostAllOutflow/PostGraphOutflow are
	// keyed by pointer field name.
	PreAllOutflow, PreGraphOutflow   map[string]*sym.Symbol
	PostAllOutflow, PostGraphOutflow map[string]*sym.Symbol
}

// PreMemory/PostMemory reconstruct the ordinary MemoryAxiom view of a node
// at each stage, for handing to a SolverConfig or to internal/smt's
// Encode* helpers.
func (n *Node) PreMemory() logic.MemoryAxiom {
	return logic.MemoryAxiom{Address: n.Address, Flow: n.PreAllInflow, Fields: n.PreFields, Locality: localityOf(n.PreShared)}
}

func (n *Node) PostMemory() logic.MemoryAxiom {
	return logic.MemoryAxiom{Address: n.Address, Flow: n.PostAllInflow, Fields: n.PostFields, Locality: localityOf(n.PostShared)}
}

func localityOf(shared bool) logic.Locality {
	if shared {
		return logic.Shared
	}
	return logic.Local
}

// Changed reports whether any field or the flow symbol differs between
// this node's pre- and post-image — the criterion footprint minimisation
// keeps a node for.
func (n *Node) Changed() bool {
	if n.PreAllInflow != n.PostAllInflow {
		return true
	}
	if len(n.PreFields) != len(n.PostFields) {
		return true
	}
	for name, v := range n.PreFields {
		if n.PostFields[name] != v {
			return true
		}
	}
	return false
}

// Graph is the flow graph itself: the footprint's nodes
// plus the pre-state and configuration they were built against.
type Graph struct {
	Nodes   []*Node
	Pre     logic.Annotation
	Config  config.SolverConfig
	Factory *sym.Factory
}

// NodeAt returns the node addressing addr, if any is already present.
func (g *Graph) NodeAt(addr *sym.Symbol) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.Address == addr {
			return n, true
		}
	}
	return nil, false
}

// Addresses returns every node address in the graph, in footprint order.
func (g *Graph) Addresses() []*sym.Symbol {
	out := make([]*sym.Symbol, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Address
	}
	return out
}

// MarkNeeded flags n (and, transitively, nothing else — callers mark every
// node a check actually touched) as surviving minimisation.
func (n *Node) MarkNeeded() { n.Needed = true }

// String renders the footprint one node per line, in address order, for
// the CLI's --dump-footprints output.
func (g *Graph) String() string {
	addrs := append([]*sym.Symbol{}, g.Addresses()...)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	var b strings.Builder
	for _, addr := range addrs {
		n, _ := g.NodeAt(addr)
		fmt.Fprintf(&b, "%s needed=%t changed=%t\n", addr, n.Needed, n.Changed())
		fmt.Fprintf(&b, "  pre:  %s\n", n.PreMemory())
		fmt.Fprintf(&b, "  post: %s\n", n.PostMemory())
	}
	return b.String()
}
