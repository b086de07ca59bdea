// Package post implements the post-image computation: memory writes go
// through the full footprint-and-checks pipeline; every other command has
// its own, lighter post rule.
package post

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
)

// candidate is one entry in the fixed effect-context generator catalogue:
// a single-symbol assertion the encoder batch-checks as implied by a
// node's post-state, attached to the resulting HeapEffect's context if
// so. The catalogue is intentionally small and non-extensible — exactly
// ten predicates here, twelve together with the two flowCandidates below.
type candidate struct {
	name string
	build func(v logic.Expr) logic.Formula
}

var candidateCatalogue = []candidate{
	{"=true", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.BoolLit{Value: true}}) }},
	{"=false", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.BoolLit{Value: false}}) }},
	{"=min", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.Min}) }},
	{">min", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.GT, LHS: v, RHS: logic.Min}) }},
	{"<max", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.LT, LHS: v, RHS: logic.Max}) }},
	{"=null", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.Null}) }},
	{"!=null", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: v, RHS: logic.Null}) }},
	{"=someTid", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.SomeTid}) }},
	{"=selfTid", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.SelfTid}) }},
	{"=unlocked", func(v logic.Expr) logic.Formula { return logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: v, RHS: logic.Unlocked}) }},
}

// flowCandidates covers the two inflow-emptiness context predicates, kept
// separate because they take a flow symbol rather than a field value.
var flowCandidates = []struct {
	name    string
	isEmpty bool
}{
	{"inflow empty", true},
	{"inflow non-empty", false},
}

// StackCandidates batch-checks every catalogue entry against a single
// symbol, returning whichever the context currently implies. Join's
// derivation step reuses the
// exact same fixed catalogue this package uses for effect contexts — both
// are instances of "which of the fixed single-symbol predicates does the
// context already know."
func StackCandidates(ctx *smt.Context, v logic.Expr) []logic.Formula {
	var holds []logic.Formula
	for _, c := range candidateCatalogue {
		f := c.build(v)
		ok, err := ctx.Implies(logic.And(), f)
		if err == nil && ok {
			holds = append(holds, f)
		}
	}
	return holds
}

// EffectContext batch-checks every catalogue entry against each updated
// field of post (plus the two flow-emptiness candidates against flow, if
// it changed), conjoining whichever entries the context implies. This is
// the "effect-context generators" step.
func EffectContext(ctx *smt.Context, updatedFields []string, post logic.MemoryAxiom, flowChanged bool) logic.Formula {
	var parts []logic.Formula
	for _, field := range updatedFields {
		v, ok := post.Fields[field]
		if !ok {
			continue
		}
		parts = append(parts, StackCandidates(ctx, logic.Var{Symbol: v})...)
	}
	if flowChanged {
		for _, c := range flowCandidates {
			f := logic.Lift(logic.InflowEmptinessAxiom{Flow: post.Flow, IsEmpty: c.isEmpty})
			holds, err := ctx.Implies(logic.And(), f)
			if err == nil && holds {
				parts = append(parts, f)
			}
		}
	}
	return logic.And(parts...)
}
