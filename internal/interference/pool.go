// Package interference implements the interference pool:
// the set of effects published by every thread's writes, and the
// machinery for folding that environment knowledge back into a thread's
// own annotation.
package interference

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// fieldSubset reports whether every element of a occurs in b.
func fieldSubset(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, f := range b {
		set[f] = true
	}
	for _, f := range a {
		if !set[f] {
			return false
		}
	}
	return true
}

// subsumes decides E ≼ E': E' adds nothing beyond
// what E already covers, so keeping E makes E' redundant.
func subsumes(ctx *smt.Context, e, ePrime logic.HeapEffect) (bool, error) {
	fieldsE, flowE := e.UpdatedFields()
	fieldsPrime, flowPrime := ePrime.UpdatedFields()
	if !fieldSubset(fieldsPrime, fieldsE) {
		return false, nil
	}
	if flowPrime && !flowE {
		return false, nil
	}

	premise := logic.And(
		logic.Lift(ePrime.Pre),
		ePrime.Context,
		smt.EncodeMemoryEquality(e.Pre, ePrime.Pre),
		smt.EncodeMemoryEquality(e.Post, ePrime.Post),
	)

	// The premise already equates E's pre and post cells with those of E',
	// so the memory resources match; what is left to prove is E's context.
	return ctx.Implies(premise, logic.And(e.Context))
}

// AddInterference extends pool with newEffects, pruning subsumed effects
// in either direction. It reports whether the pool grew.
func AddInterference(pool []logic.HeapEffect, newEffects []logic.HeapEffect, factory *sym.Factory) ([]logic.HeapEffect, bool, error) {
	var filtered []logic.HeapEffect
	for _, e := range newEffects {
		if !e.IsEmpty() {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return pool, false, nil
	}

	renaming := logic.NewRenaming(factory)
	renamed := make([]logic.HeapEffect, len(filtered))
	for i, e := range filtered {
		renamed[i] = logic.RenameEffect(e, renaming)
	}

	ctx := smt.NewContext(factory)
	for _, e := range pool {
		ctx.Encode(logic.Lift(e.Pre))
		ctx.Encode(logic.Lift(e.Post))
	}
	for _, e := range renamed {
		ctx.Encode(logic.Lift(e.Pre))
		ctx.Encode(logic.Lift(e.Post))
	}

	keepPool := make([]bool, len(pool))
	for i := range keepPool {
		keepPool[i] = true
	}
	keepNew := make([]bool, len(renamed))
	for i := range keepNew {
		keepNew[i] = true
	}

	for _, e := range pool {
		for j, ePrime := range renamed {
			if !keepNew[j] {
				continue
			}
			ok, err := subsumes(ctx, e, ePrime)
			if err != nil {
				return nil, false, err
			}
			if ok {
				keepNew[j] = false
			}
		}
	}
	for j, e := range renamed {
		if !keepNew[j] {
			continue
		}
		for i, ePrime := range pool {
			if !keepPool[i] {
				continue
			}
			ok, err := subsumes(ctx, e, ePrime)
			if err != nil {
				return nil, false, err
			}
			if ok {
				keepPool[i] = false
			}
		}
	}
	for i, e := range renamed {
		if !keepNew[i] {
			continue
		}
		for j, ePrime := range renamed {
			if i == j || !keepNew[j] {
				continue
			}
			ok, err := subsumes(ctx, e, ePrime)
			if err != nil {
				return nil, false, err
			}
			if ok {
				keepNew[j] = false
			}
		}
	}

	var result []logic.HeapEffect
	for i, e := range pool {
		if keepPool[i] {
			result = append(result, e)
		}
	}
	grew := false
	for j, e := range renamed {
		if keepNew[j] {
			result = append(result, e)
			grew = true
		}
	}
	return result, grew, nil
}
