// Package future trims redundant future predicates and suggests new
// ones when a target write lets the engine commit ahead of time to an
// update that has not happened yet.
package future

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/eval"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/post"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

type symCollector struct{ found map[*sym.Symbol]bool }

func (c *symCollector) VisitExpr(e logic.Expr) {
	if v, ok := e.(logic.Var); ok {
		c.found[v.Symbol] = true
	}
}
func (c *symCollector) VisitAxiom(logic.Axiom)      {}
func (c *symCollector) VisitFormula(logic.Formula) {}

func symbolsIn(f logic.Formula) map[*sym.Symbol]bool {
	c := &symCollector{found: map[*sym.Symbol]bool{}}
	logic.Walk(c, f)
	return c.found
}

// usefulSymbols mirrors past.usefulSymbols: symbols reachable from a's
// variable resources, ignoring the futures themselves.
func usefulSymbols(a logic.Annotation) map[*sym.Symbol]bool {
	useful := map[*sym.Symbol]bool{}
	var queue []*sym.Symbol
	push := func(s *sym.Symbol) {
		if s != nil && !useful[s] {
			useful[s] = true
			queue = append(queue, s)
		}
	}
	for _, v := range a.VariableAxioms() {
		push(v.Value)
	}
	for _, ob := range a.Obligations() {
		push(ob.Key)
	}
	for _, fl := range a.Fulfillments() {
		push(fl.Key)
	}
	memIndex := map[*sym.Symbol]logic.MemoryAxiom{}
	for _, m := range a.MemoryAxioms() {
		memIndex[m.Address] = m
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if m, ok := memIndex[s]; ok {
			for _, fv := range m.Fields {
				push(fv)
			}
		}
	}
	return useful
}

func futureIntersectsUseful(fp logic.FuturePredicate, useful map[*sym.Symbol]bool) bool {
	if useful[fp.Address] {
		return true
	}
	for _, u := range fp.Updates {
		if useful[u.Value] {
			return true
		}
	}
	for s := range symbolsIn(fp.Guard) {
		if useful[s] {
			return true
		}
	}
	return false
}

// consumes reports whether other is redundant given future: both match
// the same address/guard/update-field shape, and every update value
// other records is already implied equal to future's.
func consumes(ctx *smt.Context, future, other logic.FuturePredicate) bool {
	if future.Address != other.Address || !future.SameShape(other) {
		return false
	}
	if future.Guard.String() != other.Guard.String() {
		return false
	}
	byField := make(map[string]*sym.Symbol, len(future.Updates))
	for _, u := range future.Updates {
		byField[u.Field] = u.Value
	}
	for _, u := range other.Updates {
		fv, ok := byField[u.Field]
		if !ok {
			return false
		}
		if fv == u.Value {
			continue
		}
		eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: u.Value}, RHS: logic.Var{Symbol: fv}})
		holds, err := ctx.Implies(logic.And(), eq)
		if err != nil || !holds {
			return false
		}
	}
	return true
}

// ReduceFuture drops futures with no live-symbol intersection, then drops
// any future a stronger surviving future already subsumes.
func ReduceFuture(a logic.Annotation, factory *sym.Factory) logic.Annotation {
	useful := usefulSymbols(a)
	var kept []logic.FuturePredicate
	for _, fp := range a.Future {
		if futureIntersectsUseful(fp, useful) {
			kept = append(kept, fp)
		}
	}
	if len(kept) == 0 {
		a.Future = nil
		return a
	}

	ctx := smt.NewContext(factory)
	ctx.Encode(a.Now)

	keep := make([]bool, len(kept))
	for i := range keep {
		keep[i] = true
	}
	for i, fp := range kept {
		if !keep[i] {
			continue
		}
		for j, other := range kept {
			if i == j || !keep[j] {
				continue
			}
			if consumes(ctx, fp, other) {
				keep[j] = false
			}
		}
	}
	var result []logic.FuturePredicate
	for i, fp := range kept {
		if keep[i] {
			result = append(result, fp)
		}
	}
	a.Future = result
	return a
}

// symbolOf mirrors flowgraph's helper: a bare sentinel literal gets
// minted a fresh symbol plus the equality fact binding it, so update
// slots always carry a real symbol.
func symbolOf(e logic.Expr, factory *sym.Factory) (*sym.Symbol, []logic.Formula) {
	if v, ok := e.(logic.Var); ok {
		return v.Symbol, nil
	}
	s := factory.Fresh(sym.SortData)
	eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: s}, RHS: e})
	return s, []logic.Formula{eq}
}

// trivialFuture tries the cheapest possible future: the target write's
// value evaluated directly against now, firing unconditionally.
func trivialFuture(a logic.Annotation, w program.Write, factory *sym.Factory) (logic.FuturePredicate, []logic.Formula, bool) {
	baseVal, ok := a.VariableValue(w.Base)
	if !ok {
		return logic.FuturePredicate{}, nil, false
	}
	mem, ok := a.MemoryAt(baseVal)
	if !ok {
		return logic.FuturePredicate{}, nil, false
	}
	val, err := eval.Evaluate(w.Value, a)
	if err != nil {
		return logic.FuturePredicate{}, nil, false
	}
	valSym, extra := symbolOf(val, factory)
	fp := logic.FuturePredicate{
		Address: mem.Address,
		Updates: []logic.FieldUpdate{{Field: w.Field, Value: valSym}},
		Guard:   logic.And(),
	}
	return fp, extra, true
}

// targetCovered reports whether every matching future already agrees
// with the target update's value.
func targetCovered(ctx *smt.Context, target logic.FieldUpdate, matching []logic.FuturePredicate) bool {
	if len(matching) == 0 {
		return false
	}
	for _, fp := range matching {
		for _, u := range fp.Updates {
			if u.Field != target.Field {
				continue
			}
			eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: target.Value}, RHS: logic.Var{Symbol: u.Value}})
			holds, err := ctx.Implies(logic.And(), eq)
			if err != nil || !holds {
				return false
			}
		}
	}
	return true
}

// ImproveFuture attempts to extend a with a new future predicate
// describing w happening at some later point consistent with an
// existing future's guard. It returns the possibly-extended annotation
// and any heap effects surfaced while probing the target write.
func ImproveFuture(a logic.Annotation, w program.Write, cfg config.SolverConfig, factory *sym.Factory) (logic.Annotation, []logic.HeapEffect, error) {
	trivial, extra, ok := trivialFuture(a, w, factory)
	if ok {
		children := append([]logic.Formula{}, a.Now.Children...)
		children = append(children, extra...)
		a.Now = simplify.Simplify(logic.And(children...))
		a.Future = append(a.Future, trivial)
	}

	var matching []logic.FuturePredicate
	for _, fp := range a.Future {
		for _, u := range fp.Updates {
			if u.Field == w.Field {
				matching = append(matching, fp)
				break
			}
		}
	}
	if len(matching) == 0 {
		return a, nil, nil
	}

	targetVal, err := eval.Evaluate(w.Value, a)
	if err != nil {
		return a, nil, nil
	}
	targetSym, targetExtra := symbolOf(targetVal, factory)
	ctx := smt.NewContext(factory)
	ctx.Encode(a.Now)
	for _, f := range targetExtra {
		ctx.Encode(f)
	}
	if targetCovered(ctx, logic.FieldUpdate{Field: w.Field, Value: targetSym}, matching) {
		return a, nil, nil
	}

	var effects []logic.HeapEffect
	for _, fp := range matching {
		result, err := post.Write(a, w, cfg, factory)
		if err != nil {
			continue
		}
		effects = append(effects, result.Effects...)
		a.Future = append(a.Future, logic.FuturePredicate{
			Address: fp.Address,
			Updates: []logic.FieldUpdate{{Field: w.Field, Value: targetSym}},
			Guard:   fp.Guard,
		})
	}
	return a, dedupeEffects(effects), nil
}

func dedupeEffects(effects []logic.HeapEffect) []logic.HeapEffect {
	seen := make(map[string]bool, len(effects))
	var out []logic.HeapEffect
	for _, e := range effects {
		key := e.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
