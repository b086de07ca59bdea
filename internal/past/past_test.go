package past

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func sharedNode(f *sym.Factory) (logic.MemoryAxiom, *sym.Symbol) {
	addr := f.Fresh(sym.SortPointer)
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}, Locality: logic.Shared}
	return mem, data
}

func TestReducePastDropsPastWithNoUsefulSymbols(t *testing.T) {
	f := sym.NewFactory()
	liveAddr := f.Fresh(sym.SortPointer)
	a := logic.Annotation{
		Now: logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: liveAddr})),
	}
	unrelated, _ := sharedNode(f)
	a.Past = []logic.PastPredicate{{Memory: unrelated}}

	out, err := ReducePast(a, config.NewDefaultListConfig(), f)
	require.NoError(t, err)
	assert.Empty(t, out.Past)
}

func TestReducePastKeepsPastReachableFromVariable(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	a := logic.Annotation{
		Now:  logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: mem.Address}), logic.Lift(mem)),
		Past: []logic.PastPredicate{{Memory: mem}},
	}

	out, err := ReducePast(a, config.NewDefaultListConfig(), f)
	require.NoError(t, err)
	require.Len(t, out.Past, 1)
}

func TestReducePastDropsSubsumedDuplicate(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	data := f.Fresh(sym.SortData)
	p := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}, Locality: logic.Shared}
	q := logic.MemoryAxiom{Address: addr, Flow: p.Flow, Fields: map[string]*sym.Symbol{"data": data}, Locality: logic.Shared}

	a := logic.Annotation{
		Now:  logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: addr}), logic.Lift(p)),
		Past: []logic.PastPredicate{{Memory: p}, {Memory: q}},
	}

	out, err := ReducePast(a, config.NewDefaultListConfig(), f)
	require.NoError(t, err)
	assert.Len(t, out.Past, 1)
}

func TestShareImmutableFieldsAdoptsNowValueForUntouchedField(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	oldData := f.Fresh(sym.SortData)
	newData := f.Fresh(sym.SortData)
	now := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": newData}, Locality: logic.Shared}
	pastMem := logic.MemoryAxiom{Address: addr, Flow: now.Flow, Fields: map[string]*sym.Symbol{"data": oldData}, Locality: logic.Shared}

	a := logic.Annotation{
		Now:  logic.And(logic.Lift(now)),
		Past: []logic.PastPredicate{{Memory: pastMem}},
	}

	out := shareImmutableFields(a, nil)
	assert.Equal(t, newData, out.Past[0].Memory.Fields["data"])
}

func TestShareImmutableFieldsKeepsUpdatedFieldAsIs(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	oldData := f.Fresh(sym.SortData)
	newData := f.Fresh(sym.SortData)
	now := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": newData}, Locality: logic.Shared}
	pastMem := logic.MemoryAxiom{Address: addr, Flow: now.Flow, Fields: map[string]*sym.Symbol{"data": oldData}, Locality: logic.Shared}

	a := logic.Annotation{
		Now:  logic.And(logic.Lift(now)),
		Past: []logic.PastPredicate{{Memory: pastMem}},
	}
	pool := []logic.HeapEffect{{Pre: pastMem, Post: now}}

	out := shareImmutableFields(a, pool)
	assert.Equal(t, oldData, out.Past[0].Memory.Fields["data"])
}

func TestAddTrivialPastsAddsEveryCurrentlySharedMemory(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	a := logic.Annotation{Now: logic.And(logic.Lift(mem))}

	out := addTrivialPasts(a)
	require.Len(t, out.Past, 1)
	assert.Equal(t, mem.Address, out.Past[0].Memory.Address)
}

func TestImprovePastDeduplicatesAndResimplifies(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	a := logic.Annotation{
		Now:  logic.And(logic.Lift(mem)),
		Past: []logic.PastPredicate{{Memory: mem}},
	}

	out, err := ImprovePast(a, nil, f)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, p := range out.Past {
		key := p.String()
		require.False(t, seen[key], "expected deduplicated past predicates")
		seen[key] = true
	}
}

func TestEffectInterpolationAdoptsNowValueForApplicableEffect(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	oldData := f.Fresh(sym.SortData)
	newData := f.Fresh(sym.SortData)
	preMem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": oldData}, Locality: logic.Shared}
	nowMem := logic.MemoryAxiom{Address: addr, Flow: preMem.Flow, Fields: map[string]*sym.Symbol{"data": newData}, Locality: logic.Shared}
	effect := logic.HeapEffect{Pre: preMem, Post: nowMem}

	a := logic.Annotation{
		Now:  logic.And(logic.Lift(nowMem)),
		Past: []logic.PastPredicate{{Memory: preMem}},
	}

	out, err := effectInterpolation(a, []logic.HeapEffect{effect}, f)
	require.NoError(t, err)
	require.Len(t, out.Past, 2)
	assert.Equal(t, newData, out.Past[1].Memory.Fields["data"])
}
