package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func twoNodeList(f *sym.Factory) (logic.Annotation, *sym.Symbol, *sym.Symbol) {
	addr1 := f.Fresh(sym.SortPointer)
	addr2 := f.Fresh(sym.SortPointer)
	data1 := f.Fresh(sym.SortData)
	data2 := f.Fresh(sym.SortData)
	flow1 := f.FreshFlow()
	flow2 := f.FreshFlow()
	newVal := f.Fresh(sym.SortData)

	mem1 := logic.MemoryAxiom{Address: addr1, Flow: flow1, Fields: map[string]*sym.Symbol{"next": addr2, "data": data1}, Locality: logic.Local}
	mem2 := logic.MemoryAxiom{Address: addr2, Flow: flow2, Fields: map[string]*sym.Symbol{"next": nil, "data": data2}, Locality: logic.Shared}

	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: addr1}),
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "y", Value: newVal}),
		logic.Lift(mem1),
		logic.Lift(mem2),
	)}
	return pre, addr1, addr2
}

func TestMakeFlowFootprintReachesOneHopNeighbour(t *testing.T) {
	f := sym.NewFactory()
	pre, addr1, addr2 := twoNodeList(f)
	cfg := config.NewDefaultListConfig()

	write := program.Write{Base: "x", Field: "data", Value: program.Ident{Name: "y"}}
	g, extra, err := MakeFlowFootprint(pre, write, cfg, f)
	require.NoError(t, err)
	assert.Empty(t, extra)

	root, ok := g.NodeAt(addr1)
	require.True(t, ok)
	assert.True(t, root.Changed())

	_, ok = g.NodeAt(addr2)
	assert.True(t, ok, "one-hop neighbour along next should be in the footprint")
}

func TestMakeFlowFootprintRejectsMissingBaseVariable(t *testing.T) {
	f := sym.NewFactory()
	pre, _, _ := twoNodeList(f)
	cfg := config.NewDefaultListConfig()

	write := program.Write{Base: "nonexistent", Field: "data", Value: program.Ident{Name: "y"}}
	_, _, err := MakeFlowFootprint(pre, write, cfg, f)
	assert.Error(t, err)
}

func TestMakePureHeapGraphCopiesEveryMemory(t *testing.T) {
	f := sym.NewFactory()
	pre, addr1, addr2 := twoNodeList(f)
	cfg := config.NewDefaultListConfig()

	g := MakePureHeapGraph(pre, f, cfg)
	assert.Len(t, g.Nodes, 2)
	for _, addr := range []*sym.Symbol{addr1, addr2} {
		n, ok := g.NodeAt(addr)
		require.True(t, ok)
		assert.False(t, n.Changed())
	}
}

func TestNodeChangedDetectsFieldDivergence(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	a := f.Fresh(sym.SortData)
	b := f.Fresh(sym.SortData)
	n := &Node{Address: addr, PreFields: map[string]*sym.Symbol{"data": a}, PostFields: map[string]*sym.Symbol{"data": a}}
	assert.False(t, n.Changed())
	n.PostFields = map[string]*sym.Symbol{"data": b}
	assert.True(t, n.Changed())
}
