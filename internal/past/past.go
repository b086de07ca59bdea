// Package past trims past predicates that have become useless and
// strengthens the ones that remain, so later interference reasoning has
// more to work with.
package past

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/post"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// usefulSymbols is the set of symbols reachable from a's variable
// resources and its obligation and fulfillment keys by following
// memory-field chains, the "useful" set
// ReducePast measures a past predicate's relevance against.
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
	for _, f := range a.Fulfillments() {
		push(f.Key)
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

func pastIntersectsUseful(p logic.PastPredicate, useful map[*sym.Symbol]bool) bool {
	if useful[p.Memory.Address] || useful[p.Memory.Flow] {
		return true
	}
	for _, v := range p.Memory.Fields {
		if useful[v] {
			return true
		}
	}
	return false
}

// subsumesPast decides whether p subsumes q: same cell, and under ctx
// every one of q's field values is implied equal to p's. The equalities
// checked are returned so the caller can record them as derived stack
// knowledge before dropping q.
func subsumesPast(ctx *smt.Context, p, q logic.PastPredicate) (bool, []logic.Formula, error) {
	if p.Memory.Address != q.Memory.Address || !p.Memory.SameCell(q.Memory) {
		return false, nil, nil
	}
	var derived []logic.Formula
	for _, name := range p.Memory.FieldNames() {
		pv, qv := p.Memory.Fields[name], q.Memory.Fields[name]
		if pv == qv {
			continue
		}
		eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: qv}, RHS: logic.Var{Symbol: pv}})
		holds, err := ctx.Implies(logic.And(), eq)
		if err != nil {
			return false, nil, err
		}
		if !holds {
			return false, nil, nil
		}
		derived = append(derived, eq)
	}
	return true, derived, nil
}

// ReducePast drops past predicates whose symbols never intersect a's
// useful symbols, then prunes subsumed pasts, recording each subsuming
// pair's derived field equalities as new stack knowledge.
func ReducePast(a logic.Annotation, cfg config.SolverConfig, factory *sym.Factory) (logic.Annotation, error) {
	useful := usefulSymbols(a)
	var kept []logic.PastPredicate
	for _, p := range a.Past {
		if pastIntersectsUseful(p, useful) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		a.Past = nil
		return a, nil
	}

	published := map[*sym.Symbol]bool{}
	for _, m := range a.MemoryAxioms() {
		if m.Locality == logic.Shared {
			published[m.Address] = true
		}
	}
	ctx := smt.NewContext(factory)
	ctx.Encode(a.Now)
	ctx.Encode(smt.EncodeInvariants(a.MemoryAxioms(), published, cfg))
	for _, p := range kept {
		ctx.Encode(smt.EncodeInvariants([]logic.MemoryAxiom{p.Memory}, published, cfg))
	}

	keep := make([]bool, len(kept))
	for i := range keep {
		keep[i] = true
	}
	var extra []logic.Formula
	for i := range kept {
		if !keep[i] {
			continue
		}
		for j := range kept {
			if i == j || !keep[j] {
				continue
			}
			ok, derived, err := subsumesPast(ctx, kept[i], kept[j])
			if err != nil {
				return logic.Annotation{}, err
			}
			if ok {
				keep[j] = false
				extra = append(extra, derived...)
			}
		}
	}

	var result []logic.PastPredicate
	for i, p := range kept {
		if keep[i] {
			result = append(result, p)
		}
	}
	children := append([]logic.Formula{}, a.Now.Children...)
	children = append(children, extra...)
	a.Now = simplify.Simplify(logic.And(children...))
	a.Past = result
	return a, nil
}

// shareImmutableFields implements ImprovePast step 1: a field the
// interference pool never updates shares its symbol with now's value at
// the same address, instead of carrying its own stale one.
func shareImmutableFields(a logic.Annotation, pool []logic.HeapEffect) logic.Annotation {
	updated := map[string]bool{}
	for _, e := range pool {
		fields, _ := e.UpdatedFields()
		for _, f := range fields {
			updated[f] = true
		}
	}
	nowMem := map[*sym.Symbol]logic.MemoryAxiom{}
	for _, m := range a.MemoryAxioms() {
		nowMem[m.Address] = m
	}

	past := make([]logic.PastPredicate, len(a.Past))
	for i, p := range a.Past {
		mem := p.Memory
		if now, ok := nowMem[mem.Address]; ok {
			fields := make(map[string]*sym.Symbol, len(mem.Fields))
			for name, v := range mem.Fields {
				if !updated[name] {
					if nv, ok := now.Fields[name]; ok {
						fields[name] = nv
						continue
					}
				}
				fields[name] = v
			}
			mem.Fields = fields
		}
		past[i] = logic.PastPredicate{Memory: mem}
	}
	a.Past = past
	return a
}

// deriveFrontierCandidates implements step 2: a past's pointer field that
// coincides with a live variable's value gets the same fixed-candidate
// treatment post.StackCandidates gives effect contexts.
func deriveFrontierCandidates(a logic.Annotation, factory *sym.Factory) logic.Annotation {
	varVals := map[*sym.Symbol]bool{}
	for _, v := range a.VariableAxioms() {
		varVals[v.Value] = true
	}
	ctx := smt.NewContext(factory)
	ctx.Encode(a.Now)

	var extra []logic.Formula
	for _, p := range a.Past {
		for _, v := range p.Memory.Fields {
			if varVals[v] {
				extra = append(extra, post.StackCandidates(ctx, logic.Var{Symbol: v})...)
			}
		}
	}
	if len(extra) == 0 {
		return a
	}
	children := append([]logic.Formula{}, a.Now.Children...)
	children = append(children, extra...)
	a.Now = logic.And(children...)
	return a
}

// effectInterpolation implements step 3: for each past predicate with a
// still-present now-memory, and for each pool effect whose pre-image
// could have applied to that past's recorded state, a new past is formed
// by adopting now's values for the effect's updated fields. The
// Hoare-style side check is approximated by requiring the past's memory,
// the effect's precondition and now to be jointly satisfiable.
func effectInterpolation(a logic.Annotation, pool []logic.HeapEffect, factory *sym.Factory) (logic.Annotation, error) {
	nowMem := map[*sym.Symbol]logic.MemoryAxiom{}
	for _, m := range a.MemoryAxioms() {
		nowMem[m.Address] = m
	}

	var extra []logic.PastPredicate
	for _, p := range a.Past {
		now, ok := nowMem[p.Memory.Address]
		if !ok {
			continue
		}
		for _, e := range pool {
			if !p.Memory.SameCell(e.Pre) {
				continue
			}
			ctx := smt.NewContext(factory)
			ctx.Encode(a.Now)
			ctx.Encode(logic.Lift(p.Memory))
			ctx.Encode(smt.EncodeMemoryEquality(p.Memory, e.Pre))
			ctx.Encode(e.Context)
			satisfiable, err := ctx.Satisfiable()
			if err != nil {
				return logic.Annotation{}, err
			}
			if !satisfiable {
				continue
			}

			fields := make(map[string]*sym.Symbol, len(p.Memory.Fields))
			for name, v := range p.Memory.Fields {
				fields[name] = v
			}
			updatedFields, flowChanged := e.UpdatedFields()
			for _, f := range updatedFields {
				if nv, ok := now.Fields[f]; ok {
					fields[f] = nv
				}
			}
			newFlow := p.Memory.Flow
			if flowChanged {
				newFlow = now.Flow
			}
			extra = append(extra, logic.PastPredicate{Memory: logic.MemoryAxiom{
				Address:  p.Memory.Address,
				Flow:     newFlow,
				Fields:   fields,
				Locality: p.Memory.Locality,
			}})
		}
	}
	a.Past = append(a.Past, extra...)
	return a, nil
}

// addTrivialPasts implements step 4: every currently-shared memory is
// also trivially its own past (it held these exact values a moment ago,
// namely now).
func addTrivialPasts(a logic.Annotation) logic.Annotation {
	for _, m := range a.MemoryAxioms() {
		if m.Locality == logic.Shared {
			a.Past = append(a.Past, logic.PastPredicate{Memory: m})
		}
	}
	return a
}

func dedupePasts(past []logic.PastPredicate) []logic.PastPredicate {
	seen := make(map[string]bool, len(past))
	var out []logic.PastPredicate
	for _, p := range past {
		key := p.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// ImprovePast runs the five-step strengthening pass: share immutable
// fields, derive frontier candidates, interpolate pool effects, add
// trivial pasts for everything currently shared, then dedupe.
func ImprovePast(a logic.Annotation, pool []logic.HeapEffect, factory *sym.Factory) (logic.Annotation, error) {
	a = shareImmutableFields(a, pool)
	a = deriveFrontierCandidates(a, factory)
	a, err := effectInterpolation(a, pool, factory)
	if err != nil {
		return logic.Annotation{}, err
	}
	a = addTrivialPasts(a)
	a.Past = dedupePasts(a.Past)
	a.Now = simplify.Simplify(a.Now)
	return a, nil
}
