package smt

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// falseFormula is a ground, always-unsatisfiable formula used to encode
// negative facts ("contains(m, k) does not hold") as an implication whose
// conclusion can never be met.
var falseFormula = logic.Lift(logic.StackAxiom{
	Op:  logic.EQ,
	LHS: logic.BoolLit{Value: true},
	RHS: logic.BoolLit{Value: false},
})

// EncodeInvariants conjoins every memory's node invariant, using the
// shared form for published addresses and the local form otherwise.
func EncodeInvariants(memories []logic.MemoryAxiom, published map[*sym.Symbol]bool, cfg config.SolverConfig) logic.Formula {
	var fs []logic.Formula
	for _, m := range memories {
		var invs []logic.NonSeparatingImplication
		if published[m.Address] {
			invs = cfg.SharedNodeInvariant(m)
		} else {
			invs = cfg.LocalNodeInvariant(m)
		}
		for _, inv := range invs {
			fs = append(fs, inv)
		}
	}
	return logic.And(fs...)
}

// EncodeNodeInvariant conjoins an already-selected set of implications for
// a single memory resource.
func EncodeNodeInvariant(invs []logic.NonSeparatingImplication) logic.Formula {
	fs := make([]logic.Formula, len(invs))
	for i, inv := range invs {
		fs[i] = inv
	}
	return logic.And(fs...)
}

// EncodeSimpleFlowRules encodes, for a generic data value, that whatever
// flows into a memory either belongs to it (contains()) or flows onward
// through one of its pointer fields — the one ground consequence of flow
// conservation this procedure can check without a real inflow/outflow
// fixpoint (that fixpoint itself lives in internal/flowgraph; this just
// gives the solver layer something to check consistency against).
func EncodeSimpleFlowRules(c *Context, memories []logic.MemoryAxiom, cfg config.SolverConfig) logic.Formula {
	var fs []logic.Formula
	for _, m := range memories {
		nodeType := cfg.NodeType(m)
		rule := c.EncodeForAll(cfg.FlowValueType(), func(v logic.Expr) logic.Formula {
			premise := logic.Lift(logic.InflowContainsValueAxiom{Flow: m.Flow, Value: v})
			var disjuncts []logic.Formula
			disjuncts = append(disjuncts, cfg.LogicallyContains(m, v))
			for _, field := range cfg.PointerFields(nodeType) {
				disjuncts = append(disjuncts, cfg.OutflowContains(m, field, v))
			}
			return logic.NonSeparatingImplication{Premise: premise, Conclusion: logic.StackDisjunction{Disjuncts: disjuncts}}
		})
		fs = append(fs, rule)
	}
	return logic.And(fs...)
}

// EncodeAcyclicity encodes that no pair in forbidden denotes the same
// address. The footprint cycle checks in internal/flowgraph and
// internal/post walk the graph directly and do not call it.
func EncodeAcyclicity(forbidden [][2]*sym.Symbol) logic.Formula {
	fs := make([]logic.Formula, len(forbidden))
	for i, pair := range forbidden {
		fs[i] = logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: pair[0]}, RHS: logic.Var{Symbol: pair[1]}})
	}
	return logic.And(fs...)
}

// EncodeOwnership encodes that every address in a footprint is distinct
// from every other — the disjointness half of the separating-conjunction
// contract a footprint must satisfy.
func EncodeOwnership(addrs []*sym.Symbol) logic.Formula {
	var fs []logic.Formula
	for i := range addrs {
		for j := i + 1; j < len(addrs); j++ {
			fs = append(fs, logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: addrs[i]}, RHS: logic.Var{Symbol: addrs[j]}}))
		}
	}
	return logic.And(fs...)
}

// EncodeMemoryEquality encodes that a and b describe the same cell:
// same address, same flow, and pairwise-equal fields.
func EncodeMemoryEquality(a, b logic.MemoryAxiom) logic.Formula {
	fs := []logic.Formula{
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a.Address}, RHS: logic.Var{Symbol: b.Address}}),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a.Flow}, RHS: logic.Var{Symbol: b.Flow}}),
	}
	for name, av := range a.Fields {
		if bv, ok := b.Fields[name]; ok {
			fs = append(fs, logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: av}, RHS: logic.Var{Symbol: bv}}))
		}
	}
	return logic.And(fs...)
}

// EncodeIsNull and EncodeIsNonNull encode e's relationship to the null
// sentinel.
func EncodeIsNull(e logic.Expr) logic.Formula {
	return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: e, RHS: logic.Null})
}

func EncodeIsNonNull(e logic.Expr) logic.Formula {
	return logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: e, RHS: logic.Null})
}

// EncodeContainsKey and EncodeNotContainsKey wrap the configuration's
// logical-contents predicate and its negation (the latter expressed as an
// implication into falseFormula, since contains() formulas are built from
// the external SolverConfig and may not be bare axioms this procedure can
// negate directly).
func EncodeContainsKey(memory logic.MemoryAxiom, key logic.Expr, cfg config.SolverConfig) logic.Formula {
	return cfg.LogicallyContains(memory, key)
}

func EncodeNotContainsKey(memory logic.MemoryAxiom, key logic.Expr, cfg config.SolverConfig) logic.Formula {
	return logic.NonSeparatingImplication{Premise: cfg.LogicallyContains(memory, key), Conclusion: falseFormula}
}

// EncodeIsInsertion and EncodeIsDeletion encode the two specification
// transitions ObligationAxiom/FulfillmentAxiom track: a key crossing from
// absent to present, or present to absent, between a pre- and post-state
// memory for the same address.
func EncodeIsInsertion(pre, post logic.MemoryAxiom, key logic.Expr, cfg config.SolverConfig) logic.Formula {
	return logic.And(EncodeNotContainsKey(pre, key, cfg), EncodeContainsKey(post, key, cfg))
}

func EncodeIsDeletion(pre, post logic.MemoryAxiom, key logic.Expr, cfg config.SolverConfig) logic.Formula {
	return logic.And(EncodeContainsKey(pre, key, cfg), EncodeNotContainsKey(post, key, cfg))
}

// EncodeKeysetDisjointness encodes that no two distinct memories in a
// footprint logically contain the same key.
func EncodeKeysetDisjointness(c *Context, memories []logic.MemoryAxiom, cfg config.SolverConfig) logic.Formula {
	var fs []logic.Formula
	for i := range memories {
		for j := i + 1; j < len(memories); j++ {
			mi, mj := memories[i], memories[j]
			rule := c.EncodeForAll(cfg.FlowValueType(), func(v logic.Expr) logic.Formula {
				return logic.NonSeparatingImplication{
					Premise:    logic.And(cfg.LogicallyContains(mi, v), cfg.LogicallyContains(mj, v)),
					Conclusion: falseFormula,
				}
			})
			fs = append(fs, rule)
		}
	}
	return logic.And(fs...)
}

// EncodeInflowUniqueness encodes that two distinct addresses never share
// the same flow symbol: flow identity is
// per-address, so if two memories name the same flow symbol they must in
// fact be the same address.
func EncodeInflowUniqueness(memories []logic.MemoryAxiom) logic.Formula {
	var fs []logic.Formula
	for i := range memories {
		for j := i + 1; j < len(memories); j++ {
			mi, mj := memories[i], memories[j]
			fs = append(fs, logic.NonSeparatingImplication{
				Premise:    logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: mi.Flow}, RHS: logic.Var{Symbol: mj.Flow}}),
				Conclusion: logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: mi.Address}, RHS: logic.Var{Symbol: mj.Address}}),
			})
		}
	}
	return logic.And(fs...)
}

// EncodeIsPure encodes that a heap effect changed nothing observable: a
// per-field equality between Pre and Post for every field the effect
// touched. Post's specification check proves this by implication to tell
// a pure update from one that changes a node: an effect that
// really changed a field yields an equality between two distinct fresh
// symbols, which this procedure correctly refuses to prove.
func EncodeIsPure(effect logic.HeapEffect) logic.Formula {
	if effect.IsEmpty() {
		return logic.And()
	}
	fields, _ := effect.UpdatedFields()
	fs := make([]logic.Formula, len(fields))
	for i, name := range fields {
		fs[i] = logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: effect.Pre.Fields[name]}, RHS: logic.Var{Symbol: effect.Post.Fields[name]}})
	}
	return logic.And(fs...)
}
