// Package config implements the solver-configuration external interface:
// everything the core treats as an uninterpreted collaborator describing
// one data structure's flow domain, node invariant, outflow predicate and
// logical-contents predicate. It is a small, immutable registry built
// once and threaded down through every later pass, the same way a type
// registry built once from a contract's declarations gets threaded
// through every later compiler pass.
package config

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// SolverConfig is the external collaborator the core treats opaquely.
// Every method is consumed as an uninterpreted function on states; the
// core never inspects how a SolverConfig arrives at its answers.
type SolverConfig interface {
	// FlowValueType is the value sort flow ranges over (always SortData
	// for the list-based structures this engine targets).
	FlowValueType() sym.Sort

	// MaxFootprintDepth bounds MakeFlowFootprint's BFS for a given node
	// type and pointer field.
	MaxFootprintDepth(nodeType, field string) int

	// OutflowContains builds the formula "value flows out of memory along
	// field".
	OutflowContains(memory logic.MemoryAxiom, field string, value logic.Expr) logic.Formula

	// LogicallyContains builds the formula "memory logically contains
	// value" (the contains() specification predicate over the keyset).
	LogicallyContains(memory logic.MemoryAxiom, value logic.Expr) logic.Formula

	// SharedNodeInvariant/LocalNodeInvariant return the node invariant's
	// implications for a memory resource, specialised to whether it is
	// currently published or not (some data structures allow local nodes
	// a weaker invariant while they are still being initialised).
	SharedNodeInvariant(memory logic.MemoryAxiom) []logic.NonSeparatingImplication
	LocalNodeInvariant(memory logic.MemoryAxiom) []logic.NonSeparatingImplication

	// SharedVariableInvariant returns the invariant a shared program
	// variable's value must satisfy.
	SharedVariableInvariant(varName string, value *sym.Symbol) []logic.NonSeparatingImplication

	// NodeType names the type of node addressed by a MemoryAxiom, used as
	// the first argument to MaxFootprintDepth.
	NodeType(memory logic.MemoryAxiom) string

	// PointerFields lists the names of memory's fields that are
	// pointer-sorted, in the structure's canonical order.
	PointerFields(nodeType string) []string
}
