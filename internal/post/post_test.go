package post

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
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

func TestWriteUpdatesLocalFieldWithoutEffects(t *testing.T) {
	f := sym.NewFactory()
	pre, _, _ := twoNodeList(f)
	cfg := config.NewDefaultListConfig()

	write := program.Write{Base: "x", Field: "data", Value: program.Ident{Name: "y"}}
	result, err := Write(pre, write, cfg, f)
	require.NoError(t, err)
	assert.NotNil(t, result.Post.Now)
	assert.Empty(t, result.Effects)
}

func TestWriteRejectsMissingVariable(t *testing.T) {
	f := sym.NewFactory()
	pre, _, _ := twoNodeList(f)
	cfg := config.NewDefaultListConfig()

	write := program.Write{Base: "nonexistent", Field: "data", Value: program.Ident{Name: "y"}}
	_, err := Write(pre, write, cfg, f)
	assert.Error(t, err)
}

func TestAssignReplacesVariableBinding(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	other := f.Fresh(sym.SortPointer)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: addr}),
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "y", Value: other}),
	)}
	cfg := config.NewDefaultListConfig()

	post, err := Assign(pre, program.Assign{Var: "x", Value: program.Ident{Name: "y"}}, cfg, f)
	require.NoError(t, err)

	newVal, ok := post.VariableValue("x")
	require.True(t, ok)
	assert.NotEqual(t, addr, newVal, "x should be bound to a fresh symbol, not reuse the old one")
}

type sharedXConfig struct{ *config.DefaultListConfig }

func (c sharedXConfig) SharedVariableInvariant(varName string, value *sym.Symbol) []logic.NonSeparatingImplication {
	if varName == "x" {
		return []logic.NonSeparatingImplication{{Premise: logic.And(), Conclusion: logic.And()}}
	}
	return nil
}

func TestAssignRejectsSharedVariable(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	pre := logic.Annotation{Now: logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: addr}))}
	cfg := sharedXConfig{config.NewDefaultListConfig()}

	_, err := Assign(pre, program.Assign{Var: "x", Value: program.Literal{Tag: "true"}}, cfg, f)
	assert.Error(t, err)
}

func TestMallocCreatesFreshLocalNodeSatisfyingInvariant(t *testing.T) {
	f := sym.NewFactory()
	pre := logic.Annotation{Now: logic.And()}
	cfg := config.NewDefaultListConfig()

	post, err := Malloc(pre, program.Malloc{Var: "n", PointerFields: []string{"next"}, DataFields: []string{"data"}}, cfg, f)
	require.NoError(t, err)

	addr, ok := post.VariableValue("n")
	require.True(t, ok)
	mem, ok := post.MemoryAt(addr)
	require.True(t, ok)
	assert.Equal(t, logic.Local, mem.Locality)
	assert.NotNil(t, mem.Fields["data"])
}

func TestAssumeDropsUnsatisfiableBranch(t *testing.T) {
	f := sym.NewFactory()
	data := f.Fresh(sym.SortData)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "v", Value: data}),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: data}, RHS: logic.Min}),
	)}

	cond := program.Cmp{Op: logic.EQ, LHS: program.Ident{Name: "v"}, RHS: program.Max}
	_, err := Assume(pre, program.Assume{Cond: cond}, f)
	assert.Error(t, err, "v == min and v == max cannot both hold")
}

func TestAssumeSplitsTopLevelDisjunction(t *testing.T) {
	f := sym.NewFactory()
	data := f.Fresh(sym.SortData)
	pre := logic.Annotation{Now: logic.And(logic.Lift(logic.EqualsToAxiom{ProgramVar: "v", Value: data}))}

	cond := program.Or{Conds: []program.Cond{
		program.Cmp{Op: logic.EQ, LHS: program.Ident{Name: "v"}, RHS: program.Min},
		program.Cmp{Op: logic.EQ, LHS: program.Ident{Name: "v"}, RHS: program.Max},
	}}
	branches, err := Assume(pre, program.Assume{Cond: cond}, f)
	require.NoError(t, err)
	assert.Len(t, branches, 2)
}

func lockedMemory(f *sym.Factory, locality logic.Locality, lockState logic.Expr) (logic.MemoryAxiom, *sym.Symbol) {
	addr := f.Fresh(sym.SortPointer)
	lock := f.Fresh(sym.SortThreadID)
	mem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"lock": lock}, Locality: locality}
	return mem, lock
}

func TestLockAcquireRequiresUnlockedField(t *testing.T) {
	f := sym.NewFactory()
	mem, lock := lockedMemory(f, logic.Shared, logic.SelfTid)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: mem.Address}),
		logic.Lift(mem),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: lock}, RHS: logic.SelfTid}),
	)}

	_, _, err := LockAcquire(pre, program.LockAcquire{Base: "n", Field: "lock"}, f)
	assert.Error(t, err)
}

func TestLockAcquireSucceedsAndEmitsEffectForSharedLock(t *testing.T) {
	f := sym.NewFactory()
	mem, lock := lockedMemory(f, logic.Shared, logic.Unlocked)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: mem.Address}),
		logic.Lift(mem),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: lock}, RHS: logic.Unlocked}),
	)}

	post, effects, err := LockAcquire(pre, program.LockAcquire{Base: "n", Field: "lock"}, f)
	require.NoError(t, err)
	require.Len(t, effects, 1)

	updated, ok := post.MemoryAt(mem.Address)
	require.True(t, ok)
	assert.NotEqual(t, lock, updated.Fields["lock"])
}

func TestLockReleaseRequiresSelfTidField(t *testing.T) {
	f := sym.NewFactory()
	mem, lock := lockedMemory(f, logic.Local, logic.Unlocked)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: mem.Address}),
		logic.Lift(mem),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: lock}, RHS: logic.Unlocked}),
	)}

	_, _, err := LockRelease(pre, program.LockRelease{Base: "n", Field: "lock"}, f)
	assert.Error(t, err)
}

func TestLockReleaseOmitsEffectForLocalLock(t *testing.T) {
	f := sym.NewFactory()
	mem, lock := lockedMemory(f, logic.Local, logic.SelfTid)
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "n", Value: mem.Address}),
		logic.Lift(mem),
		logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: lock}, RHS: logic.SelfTid}),
	)}

	post, effects, err := LockRelease(pre, program.LockRelease{Base: "n", Field: "lock"}, f)
	require.NoError(t, err)
	assert.Empty(t, effects, "a local lock transition is invisible to the environment")

	updated, ok := post.MemoryAt(mem.Address)
	require.True(t, ok)
	assert.NotEqual(t, lock, updated.Fields["lock"])
}

// TestWriteSelfLoopFailsAcyclicity covers scenario S4: a write that makes a
// node's own successor field point back at itself must be rejected with
// CycleInFootprint.
func TestWriteSelfLoopFailsAcyclicity(t *testing.T) {
	f := sym.NewFactory()
	addr := f.Fresh(sym.SortPointer)
	data := f.Fresh(sym.SortData)
	mem := logic.MemoryAxiom{Address: addr, Flow: f.FreshFlow(), Fields: map[string]*sym.Symbol{"next": nil, "data": data}, Locality: logic.Local}
	pre := logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: "x", Value: addr}),
		logic.Lift(mem),
	)}
	cfg := config.NewDefaultListConfig()

	write := program.Write{Base: "x", Field: "next", Value: program.Ident{Name: "x"}}
	_, err := Write(pre, write, cfg, f)
	require.Error(t, err)
	assert.True(t, diag.As(err, diag.CycleInFootprint), "expected CycleInFootprint, got %v", err)
}

func TestMemoCacheRoundTrip(t *testing.T) {
	cache, err := NewMemoCache(4)
	require.NoError(t, err)

	pre := logic.Annotation{Now: logic.And()}
	key := cache.Key("push", pre)

	_, ok := cache.Lookup(key)
	assert.False(t, ok)

	cache.Store(key, Result{Post: pre})
	got, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, pre.String(), got.Post.String())

	cache.Purge()
	_, ok = cache.Lookup(key)
	assert.False(t, ok)
}
