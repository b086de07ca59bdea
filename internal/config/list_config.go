package config

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// DefaultListConfig is the conventional sorted, singly-linked list-based
// set used by the end-to-end scenarios this engine ships tests for: one
// node type, one pointer field "next", one data field "data", keys drawn
// from (Min, Max).
type DefaultListConfig struct {
	// Depth bounds MakeFlowFootprint's BFS; the frontier growth rule
	// leaves the default undocumented constants to us, so this is
	// exposed rather than hardcoded.
	Depth int
}

// NewDefaultListConfig returns the list configuration with the
// conventional one-hop footprint depth (a write only ever touches the
// written node and its immediate "next" neighbour for the coverage and
// publishing checks).
func NewDefaultListConfig() *DefaultListConfig {
	return &DefaultListConfig{Depth: 1}
}

func (c *DefaultListConfig) FlowValueType() sym.Sort { return sym.SortData }

func (c *DefaultListConfig) MaxFootprintDepth(nodeType, field string) int {
	return c.Depth
}

// OutflowContains: in a sorted list, a key flows out of a node along
// "next" exactly when it is strictly greater than the node's own key —
// everything bigger belongs further right.
func (c *DefaultListConfig) OutflowContains(memory logic.MemoryAxiom, field string, value logic.Expr) logic.Formula {
	data, ok := memory.Fields["data"]
	if !ok || field != "next" {
		return logic.And() // empty conjunction = true: no flow leaves along this field
	}
	return logic.Lift(logic.StackAxiom{Op: logic.GT, LHS: value, RHS: logic.Var{Symbol: data}})
}

// LogicallyContains: a node logically contains a key iff its data field
// equals that key and the node is not one of the two sentinels (whose
// data is Min/Max and which never represent a real element).
func (c *DefaultListConfig) LogicallyContains(memory logic.MemoryAxiom, value logic.Expr) logic.Formula {
	data, ok := memory.Fields["data"]
	if !ok {
		return logic.And(logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Min, RHS: logic.Max}))
	}
	return logic.And(
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: value, RHS: logic.Var{Symbol: data}}),
		logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: data}, RHS: logic.Min}),
		logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: data}, RHS: logic.Max}),
	)
}

// SharedNodeInvariant/LocalNodeInvariant: every node's key lies in
// [Min, Max], shared or not — the list has no extra invariant a local
// (not-yet-published) node is exempt from.
func (c *DefaultListConfig) SharedNodeInvariant(memory logic.MemoryAxiom) []logic.NonSeparatingImplication {
	return c.keyRangeInvariant(memory)
}

func (c *DefaultListConfig) LocalNodeInvariant(memory logic.MemoryAxiom) []logic.NonSeparatingImplication {
	return c.keyRangeInvariant(memory)
}

func (c *DefaultListConfig) keyRangeInvariant(memory logic.MemoryAxiom) []logic.NonSeparatingImplication {
	data, ok := memory.Fields["data"]
	if !ok {
		return nil
	}
	return []logic.NonSeparatingImplication{{
		Premise: logic.And(),
		Conclusion: logic.And(
			logic.Lift(logic.StackAxiom{Op: logic.GEQ, LHS: logic.Var{Symbol: data}, RHS: logic.Min}),
			logic.Lift(logic.StackAxiom{Op: logic.LEQ, LHS: logic.Var{Symbol: data}, RHS: logic.Max}),
		),
	}}
}

func (c *DefaultListConfig) SharedVariableInvariant(varName string, value *sym.Symbol) []logic.NonSeparatingImplication {
	return nil
}

func (c *DefaultListConfig) NodeType(memory logic.MemoryAxiom) string { return "Node" }

func (c *DefaultListConfig) PointerFields(nodeType string) []string { return []string{"next"} }
