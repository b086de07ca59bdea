package post

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/eval"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// Assign implements  "variable assignment": the lhs variable's
// value symbol is replaced by a fresh one bound to the evaluated rhs.
// Assigning to a variable the configuration treats as shared aborts.
func Assign(pre logic.Annotation, a program.Assign, cfg config.SolverConfig, factory *sym.Factory) (logic.Annotation, error) {
	if invs := cfg.SharedVariableInvariant(a.Var, nil); len(invs) > 0 {
		return logic.Annotation{}, diag.New(diag.UnsupportedConstruct, "assignment to shared variable %q is not modelled", a.Var)
	}
	old, ok := pre.VariableValue(a.Var)
	if !ok {
		return logic.Annotation{}, diag.New(diag.ResourceMissing, "variable %q has no resource", a.Var)
	}
	rhs, err := eval.Evaluate(a.Value, pre)
	if err != nil {
		return logic.Annotation{}, err
	}
	fresh := factory.FreshLike(old)

	var children []logic.Formula
	for _, ax := range pre.Axioms() {
		if v, ok := ax.(logic.EqualsToAxiom); ok && v.ProgramVar == a.Var {
			children = append(children, logic.Lift(logic.EqualsToAxiom{ProgramVar: a.Var, Value: fresh}))
			continue
		}
		children = append(children, logic.Lift(ax))
	}
	children = append(children, logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fresh}, RHS: rhs}))

	out := logic.Annotation{Now: logic.And(children...), Past: pre.Past, Future: pre.Future}
	out.Now = simplify.Simplify(out.Now)
	return out, nil
}

// Malloc implements  "malloc": a fresh pointer symbol with a
// local memory axiom whose pointer fields are null, data fields fresh
// unconstrained, and inflow empty.
func Malloc(pre logic.Annotation, m program.Malloc, cfg config.SolverConfig, factory *sym.Factory) (logic.Annotation, error) {
	addr := factory.Fresh(sym.SortPointer)
	fields := map[string]*sym.Symbol{}
	var extra []logic.Formula
	for _, pf := range m.PointerFields {
		s := factory.Fresh(sym.SortPointer)
		extra = append(extra, logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: s}, RHS: logic.Null}))
		fields[pf] = s
	}
	for _, df := range m.DataFields {
		fields[df] = factory.Fresh(sym.SortData)
	}
	flow := factory.FreshFlow()
	mem := logic.MemoryAxiom{Address: addr, Flow: flow, Fields: fields, Locality: logic.Local}

	ctx := smt.NewContext(factory)
	ctx.Encode(pre.Now)
	for _, f := range extra {
		ctx.Encode(f)
	}
	ctx.Encode(logic.Lift(logic.InflowEmptinessAxiom{Flow: flow, IsEmpty: true}))
	ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: addr}, RHS: logic.Null}))
	ctx.Encode(smt.EncodeNodeInvariant(cfg.LocalNodeInvariant(mem)))
	ok, err := ctx.Satisfiable()
	if err != nil {
		return logic.Annotation{}, err
	}
	if !ok {
		return logic.Annotation{}, diag.New(diag.InvariantViolation, "freshly allocated node at %s violates the node invariant", addr)
	}

	children := []logic.Formula{
		pre.Now,
		logic.Lift(logic.StackAxiom{Op: logic.NEQ, LHS: logic.Var{Symbol: addr}, RHS: logic.Null}),
		logic.Lift(mem),
		logic.Lift(logic.EqualsToAxiom{ProgramVar: m.Var, Value: addr}),
	}
	children = append(children, extra...)
	out := logic.Annotation{Now: logic.And(children...), Past: pre.Past, Future: pre.Future}
	out.Now = simplify.Simplify(out.Now)
	return out, nil
}

func condToFormula(c program.Cond, pre logic.Annotation) (logic.Formula, error) {
	switch n := c.(type) {
	case program.Cmp:
		lhs, err := eval.Evaluate(n.LHS, pre)
		if err != nil {
			return nil, err
		}
		rhs, err := eval.Evaluate(n.RHS, pre)
		if err != nil {
			return nil, err
		}
		return logic.Lift(logic.StackAxiom{Op: n.Op, LHS: lhs, RHS: rhs}), nil
	case program.And:
		fs := make([]logic.Formula, len(n.Conds))
		for i, sub := range n.Conds {
			f, err := condToFormula(sub, pre)
			if err != nil {
				return nil, err
			}
			fs[i] = f
		}
		return logic.And(fs...), nil
	case program.Or:
		return nil, diag.New(diag.UnsupportedConstruct, "nested disjunction in assume condition")
	default:
		return nil, diag.New(diag.UnsupportedConstruct, "unknown condition kind %T", c)
	}
}

// Assume implements  "assume": the condition becomes a
// separating conjunction, with at most one top-level disjunction split
// into parallel paths; unsatisfiable paths are dropped and at least one
// must survive.
func Assume(pre logic.Annotation, a program.Assume, factory *sym.Factory) ([]logic.Annotation, error) {
	var branches []program.Cond
	if or, ok := a.Cond.(program.Or); ok {
		branches = or.Conds
	} else {
		branches = []program.Cond{a.Cond}
	}

	var survivors []logic.Annotation
	for _, branch := range branches {
		f, err := condToFormula(branch, pre)
		if err != nil {
			return nil, err
		}
		candidateNow := logic.And(pre.Now, f)
		ctx := smt.NewContext(factory)
		ctx.Encode(candidateNow)
		ok, err := ctx.Satisfiable()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		survivors = append(survivors, logic.Annotation{
			Now:    simplify.Simplify(candidateNow),
			Past:   pre.Past,
			Future: pre.Future,
		})
	}
	if len(survivors) == 0 {
		return nil, diag.New(diag.InternalInconsistency, "assume %s has no satisfiable branch", a.Cond)
	}
	return survivors, nil
}

// lockTransition rebuilds mem with field replaced by a fresh symbol tied
// to `to`, returning the updated memory, the new field symbol, and the
// equality fact binding it.
func lockTransition(mem logic.MemoryAxiom, field string, to logic.Expr, factory *sym.Factory) (logic.MemoryAxiom, *sym.Symbol, logic.Formula) {
	fresh := factory.Fresh(sym.SortThreadID)
	updated := logic.MemoryAxiom{Address: mem.Address, Flow: mem.Flow, Fields: map[string]*sym.Symbol{}, Locality: mem.Locality}
	for name, v := range mem.Fields {
		updated.Fields[name] = v
	}
	updated.Fields[field] = fresh
	eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fresh}, RHS: to})
	return updated, fresh, eq
}

func replaceMemory(pre logic.Annotation, updated logic.MemoryAxiom, extra ...logic.Formula) logic.Annotation {
	var children []logic.Formula
	for _, ax := range pre.Axioms() {
		if m, ok := ax.(logic.MemoryAxiom); ok && m.Address == updated.Address {
			children = append(children, logic.Lift(updated))
			continue
		}
		children = append(children, logic.Lift(ax))
	}
	children = append(children, extra...)
	out := logic.Annotation{Now: logic.And(children...), Past: pre.Past, Future: pre.Future}
	out.Now = simplify.Simplify(out.Now)
	return out
}

// LockAcquire implements  "lock acquire": the evaluated lock
// field must be unlocked; it is replaced by selfTid. A shared-memory lock
// transition emits a HeapEffect precisely describing it.
func LockAcquire(pre logic.Annotation, l program.LockAcquire, factory *sym.Factory) (logic.Annotation, []logic.HeapEffect, error) {
	mem, err := eval.MemoryAt(l.Base, pre)
	if err != nil {
		return logic.Annotation{}, nil, err
	}
	fieldSym, ok := mem.Fields[l.Field]
	if !ok {
		return logic.Annotation{}, nil, diag.New(diag.ResourceMissing, "field %q not present on %q", l.Field, l.Base)
	}
	ctx := smt.NewContext(factory)
	ctx.Encode(pre.Now)
	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fieldSym}, RHS: logic.Unlocked}))
	if err != nil {
		return logic.Annotation{}, nil, err
	}
	if !holds {
		return logic.Annotation{}, nil, diag.New(diag.UnsafeUpdate, "lock %q is not known to be unlocked", l.Field)
	}

	updated, newSym, eq := lockTransition(mem, l.Field, logic.SelfTid, factory)
	post := replaceMemory(pre, updated, eq)

	var effects []logic.HeapEffect
	if mem.Locality == logic.Shared {
		effects = append(effects, logic.HeapEffect{
			Pre:     mem,
			Post:    updated,
			Context: logic.And(logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fieldSym}, RHS: logic.Unlocked}), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: newSym}, RHS: logic.SelfTid})),
		})
	}
	return post, effects, nil
}

// LockRelease implements  "lock release": the evaluated lock
// field must be selfTid; it is replaced by unlocked.
func LockRelease(pre logic.Annotation, l program.LockRelease, factory *sym.Factory) (logic.Annotation, []logic.HeapEffect, error) {
	mem, err := eval.MemoryAt(l.Base, pre)
	if err != nil {
		return logic.Annotation{}, nil, err
	}
	fieldSym, ok := mem.Fields[l.Field]
	if !ok {
		return logic.Annotation{}, nil, diag.New(diag.ResourceMissing, "field %q not present on %q", l.Field, l.Base)
	}
	ctx := smt.NewContext(factory)
	ctx.Encode(pre.Now)
	holds, err := ctx.Implies(logic.And(), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fieldSym}, RHS: logic.SelfTid}))
	if err != nil {
		return logic.Annotation{}, nil, err
	}
	if !holds {
		return logic.Annotation{}, nil, diag.New(diag.UnsafeUpdate, "lock %q is not known to be held by this thread", l.Field)
	}

	updated, newSym, eq := lockTransition(mem, l.Field, logic.Unlocked, factory)
	post := replaceMemory(pre, updated, eq)

	var effects []logic.HeapEffect
	if mem.Locality == logic.Shared {
		effects = append(effects, logic.HeapEffect{
			Pre:     mem,
			Post:    updated,
			Context: logic.And(logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: fieldSym}, RHS: logic.SelfTid}), logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: newSym}, RHS: logic.Unlocked})),
		})
	}
	return post, effects, nil
}
