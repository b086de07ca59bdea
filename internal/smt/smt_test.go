package smt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func TestImpliesTransitiveEquality(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)
	c := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.And(
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: b}, RHS: logic.Var{Symbol: c}}),
	))

	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: c}}))
	require.NoError(t, err)
	assert.True(t, holds)
}

func TestImpliesRefutedByDisequality(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))

	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	require.NoError(t, err)
	assert.False(t, holds)
}

func TestImpliesHoldsVacuouslyUnderContradictoryPremiseAssertions(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.And(
		logic.Lift(logic.StackAxiom{Op: logic.LT, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}),
		logic.Lift(logic.StackAxiom{Op: logic.LEQ, LHS: logic.Var{Symbol: b}, RHS: logic.Var{Symbol: a}}),
	))

	// premise is already internally inconsistent, so any conclusion holds
	// (ex falso): the conjunct-refutation loop finds every candidate
	// counterexample unsat.
	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	require.NoError(t, err)
	assert.True(t, holds)
}

func TestSatisfiableAcceptsPureLeqCycleAndForcesEquality(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.And(
		logic.Lift(logic.StackAxiom{Op: logic.LEQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}),
		logic.Lift(logic.StackAxiom{Op: logic.LEQ, LHS: logic.Var{Symbol: b}, RHS: logic.Var{Symbol: a}}),
	))

	// a <= b <= a has no strict edge, so it is not a contradiction: it
	// forces a == b, which Implies should then be able to derive.
	ok, err := ctx.Satisfiable()
	require.NoError(t, err)
	assert.True(t, ok)

	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	require.NoError(t, err)
	assert.True(t, holds)
}

func TestPushPopScopesAssertions(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Push()
	ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	require.NoError(t, err)
	assert.True(t, holds)
	ctx.Pop()

	holds, err = ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))
	require.NoError(t, err)
	assert.False(t, holds)
}

func TestFlowEmptinessContradictsContainment(t *testing.T) {
	f := sym.NewFactory()
	flow := f.FreshFlow()
	v := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.And(
		logic.Lift(logic.InflowEmptinessAxiom{Flow: flow, IsEmpty: true}),
		logic.Lift(logic.InflowContainsValueAxiom{Flow: flow, Value: logic.Var{Symbol: v}}),
	))

	// the context's own assertions are contradictory, so it implies
	// anything, including something unrelated.
	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: v}, RHS: logic.Null}))
	require.NoError(t, err)
	assert.True(t, holds)
}

func TestQueueImplicationBatchesCallbacks(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))

	var results []bool
	ctx.QueueImplication(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}), func(holds bool) {
		results = append(results, holds)
	})
	ctx.QueueImplication(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}), func(holds bool) {
		results = append(results, holds)
	})

	require.NoError(t, ctx.Check())
	assert.Equal(t, []bool{true, false}, results)
}

func TestUnsupportedAxiomEscalatesToSolverUnknown(t *testing.T) {
	f := sym.NewFactory()
	ctx := NewContext(f)
	_, err := ctx.Implies(logic.And(), logic.NonSeparatingImplication{Premise: logic.And(), Conclusion: logic.And()})
	require.Error(t, err)
	assert.True(t, diag.As(err, diag.SolverUnknown))
}

func TestSatisfiableDetectsContradictoryAssertions(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.And(
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}),
		logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}),
	))

	ok, err := ctx.Satisfiable()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSatisfiableAcceptsConsistentAssertions(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)

	ctx := NewContext(f)
	ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.LT, LHS: logic.Var{Symbol: a}, RHS: logic.Var{Symbol: b}}))

	ok, err := ctx.Satisfiable()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEncodeForAllInstantiatesFreshSymbol(t *testing.T) {
	f := sym.NewFactory()
	ctx := NewContext(f)
	seen := make(map[*sym.Symbol]bool)
	ctx.EncodeForAll(sym.SortData, func(e logic.Expr) logic.Formula {
		seen[e.(logic.Var).Symbol] = true
		return logic.And()
	})
	ctx.EncodeForAll(sym.SortData, func(e logic.Expr) logic.Formula {
		assert.False(t, seen[e.(logic.Var).Symbol])
		return logic.And()
	})
}

func TestReplaceSubstitutesMatchingSymbol(t *testing.T) {
	f := sym.NewFactory()
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)
	ctx := NewContext(f)

	formula := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: a}, RHS: logic.Null})
	replaced := ctx.Replace(formula, logic.Var{Symbol: a}, logic.Var{Symbol: b})

	ax := replaced.(logic.AxiomFormula).Axiom.(logic.StackAxiom)
	assert.Same(t, b, ax.LHS.(logic.Var).Symbol)
}
