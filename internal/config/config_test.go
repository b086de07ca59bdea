package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

func TestOutflowContainsOnlyAppliesToNextField(t *testing.T) {
	f := sym.NewFactory()
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: f.Fresh(sym.SortPointer), Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}}
	c := NewDefaultListConfig()

	v := logic.Var{Symbol: f.Fresh(sym.SortData)}
	out := c.OutflowContains(mem, "next", v)
	assert.Contains(t, out.String(), ">")

	noOut := c.OutflowContains(mem, "prev", v)
	assert.Equal(t, "emp", noOut.String())
}

func TestLogicallyContainsExcludesSentinels(t *testing.T) {
	f := sym.NewFactory()
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: f.Fresh(sym.SortPointer), Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}}
	c := NewDefaultListConfig()

	v := logic.Var{Symbol: f.Fresh(sym.SortData)}
	form := c.LogicallyContains(mem, v)
	assert.Contains(t, form.String(), "!=")
}

func TestKeyRangeInvariantBoundsData(t *testing.T) {
	f := sym.NewFactory()
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: f.Fresh(sym.SortPointer), Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"data": data}}
	c := NewDefaultListConfig()

	inv := c.SharedNodeInvariant(mem)
	assert.Len(t, inv, 1)
}
