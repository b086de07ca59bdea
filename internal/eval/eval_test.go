package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func TestEvaluateIdentResolvesThroughVariableResource(t *testing.T) {
	f := sym.NewFactory()
	val := f.Fresh(sym.SortPointer)
	state := logic.Annotation{Now: logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: val}))}

	e, err := Evaluate(program.Ident{Name: "x"}, state)
	require.NoError(t, err)
	assert.Same(t, val, e.(logic.Var).Symbol)
}

func TestEvaluateMissingVariableIsResourceMissing(t *testing.T) {
	_, err := Evaluate(program.Ident{Name: "x"}, logic.Annotation{})
	require.Error(t, err)
	assert.True(t, diag.As(err, diag.ResourceMissing))
}

func TestEvaluateFieldDerefsThroughMemory(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	next := f.Fresh(sym.SortPointer)
	mem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"next": next}}
	state := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: addr}),
		logic.Lift(mem),
	)}

	e, err := Evaluate(program.Field{Base: program.Ident{Name: "x"}, FieldName: "next"}, state)
	require.NoError(t, err)
	assert.Same(t, next, e.(logic.Var).Symbol)
}

func TestEvaluateLiteralNull(t *testing.T) {
	e, err := Evaluate(program.Null, logic.Annotation{})
	require.NoError(t, err)
	assert.Equal(t, logic.Null, e)
}
