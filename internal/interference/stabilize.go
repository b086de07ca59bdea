package interference

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// applicable reports whether effect e could have produced memory m's
// current value: memEq(m, e.Pre) ∧ e.Context must be satisfiable against
// background knowledge.
func applicable(factory *sym.Factory, now logic.Formula, m logic.MemoryAxiom, e logic.HeapEffect) (bool, error) {
	check := smt.NewContext(factory)
	check.Encode(now)
	check.Encode(smt.EncodeMemoryEquality(m, e.Pre))
	check.Encode(e.Context)
	return check.Satisfiable()
}

// applyEffect fresh-symbolises every component of m that e updates,
// returning the post-image memory and a PastPredicate recording m's
// pre-image.
func applyEffect(m logic.MemoryAxiom, e logic.HeapEffect, factory *sym.Factory) (logic.MemoryAxiom, logic.PastPredicate) {
	past := logic.PastPredicate{Memory: m}

	fields, flowChanged := e.UpdatedFields()
	newFields := make(map[string]*sym.Symbol, len(m.Fields))
	for name, v := range m.Fields {
		newFields[name] = v
	}
	for _, f := range fields {
		if old, ok := newFields[f]; ok {
			newFields[f] = factory.FreshLike(old)
		}
	}
	newFlow := m.Flow
	if flowChanged {
		newFlow = factory.FreshFlow()
	}

	updated := logic.MemoryAxiom{Address: m.Address, Flow: newFlow, Fields: newFields, Locality: m.Locality}
	return updated, past
}

// MakeInterferenceStable folds every pool effect that could apply to one
// of a's shared memories into a, fresh-symbolising the affected
// components and recording the prior value as a past predicate. The
// caller is responsible for skipping this call inside an atomic block;
// repeated calls with no applicable effect are no-ops.
func MakeInterferenceStable(a logic.Annotation, pool []logic.HeapEffect, factory *sym.Factory) (logic.Annotation, error) {
	if len(pool) == 0 {
		return a, nil
	}

	memories := map[*sym.Symbol]logic.MemoryAxiom{}
	for _, m := range a.MemoryAxioms() {
		if m.Locality == logic.Shared {
			memories[m.Address] = m
		}
	}
	if len(memories) == 0 {
		return a, nil
	}

	var newPasts []logic.PastPredicate
	changed := false

	for addr, m := range memories {
		current := m
		for _, e := range pool {
			ok, err := applicable(factory, a.Now, current, e)
			if err != nil {
				return logic.Annotation{}, err
			}
			if !ok {
				continue
			}
			updated, past := applyEffect(current, e, factory)
			newPasts = append(newPasts, past)
			current = updated
			changed = true
		}
		memories[addr] = current
	}
	if !changed {
		return a, nil
	}

	var children []logic.Formula
	for _, ax := range a.Axioms() {
		if m, ok := ax.(logic.MemoryAxiom); ok {
			if updated, ok := memories[m.Address]; ok {
				children = append(children, logic.Lift(updated))
				continue
			}
		}
		children = append(children, logic.Lift(ax))
	}

	out := logic.Annotation{
		Now:    logic.And(children...),
		Past:   append(append([]logic.PastPredicate{}, a.Past...), newPasts...),
		Future: a.Future,
	}
	out.Now = simplify.Simplify(out.Now)
	return out, nil
}
