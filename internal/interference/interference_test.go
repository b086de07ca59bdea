package interference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func sharedNode(f *sym.Factory) (logic.MemoryAxiom, *sym.Symbol) {
	addr := f.Fresh(sym.SortPointer)
	data := f.Fresh(sym.SortData)
	flow := f.FreshFlow()
	mem := logic.MemoryAxiom{Address: addr, Flow: flow, Fields: map[string]*sym.Symbol{"data": data}, Locality: logic.Shared}
	return mem, data
}

func effectOver(mem logic.MemoryAxiom, newVal *sym.Symbol) logic.HeapEffect {
	post := logic.MemoryAxiom{Address: mem.Address, Flow: mem.Flow, Fields: map[string]*sym.Symbol{"data": newVal}, Locality: mem.Locality}
	return logic.HeapEffect{Pre: mem, Post: post}
}

func TestAddInterferenceDropsEmptyEffects(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	empty := logic.HeapEffect{Pre: mem, Post: mem}

	pool, grew, err := AddInterference(nil, []logic.HeapEffect{empty}, f)
	require.NoError(t, err)
	assert.False(t, grew)
	assert.Empty(t, pool)
}

func TestAddInterferenceGrowsPoolWithNovelEffect(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	newVal := f.Fresh(sym.SortData)
	e := effectOver(mem, newVal)

	pool, grew, err := AddInterference(nil, []logic.HeapEffect{e}, f)
	require.NoError(t, err)
	assert.True(t, grew)
	assert.Len(t, pool, 1)
}

func TestAddInterferenceRepeatedCallGrowsPoolOnce(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	newVal := f.Fresh(sym.SortData)
	e := effectOver(mem, newVal)

	pool, grew, err := AddInterference(nil, []logic.HeapEffect{e}, f)
	require.NoError(t, err)
	require.True(t, grew)

	pool2, grew2, err := AddInterference(pool, []logic.HeapEffect{e}, f)
	require.NoError(t, err)
	assert.False(t, grew2, "a renamed copy of an effect already in the pool is subsumed by it")
	assert.True(t, len(pool2) >= len(pool))
}

func TestMakeInterferenceStableIsIdempotentWithEmptyPool(t *testing.T) {
	f := sym.NewFactory()
	mem, _ := sharedNode(f)
	a := logic.Annotation{Now: logic.And(logic.Lift(mem))}

	out, err := MakeInterferenceStable(a, nil, f)
	require.NoError(t, err)
	assert.Equal(t, a.Now.String(), out.Now.String())
}

func TestMakeInterferenceStableSkipsLocalMemory(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}, Locality: logic.Local}
	a := logic.Annotation{Now: logic.And(logic.Lift(mem))}

	newVal := f.Fresh(sym.SortData)
	e := effectOver(logic.MemoryAxiom{Address: addr, Flow: mem.Flow, Fields: mem.Fields, Locality: logic.Shared}, newVal)

	out, err := MakeInterferenceStable(a, []logic.HeapEffect{e}, f)
	require.NoError(t, err)
	assert.Equal(t, a.Now.String(), out.Now.String(), "a local memory is not subject to environment interference")
}

func TestMakeInterferenceStableFreshensApplicableField(t *testing.T) {
	f := sym.NewFactory()
	mem, data := sharedNode(f)
	a := logic.Annotation{Now: logic.And(logic.Lift(mem))}

	newVal := f.Fresh(sym.SortData)
	e := effectOver(mem, newVal)

	out, err := MakeInterferenceStable(a, []logic.HeapEffect{e}, f)
	require.NoError(t, err)
	require.Len(t, out.Past, 1)
	assert.Equal(t, data, out.Past[0].Memory.Fields["data"], "the past predicate should record the pre-image field value")

	updated, ok := out.MemoryAt(mem.Address)
	require.True(t, ok)
	assert.NotEqual(t, data, updated.Fields["data"])
}
