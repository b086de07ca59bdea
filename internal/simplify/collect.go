package simplify

import "github.com/nyu-acsys/krill-sub000/internal/logic"

// Collect walks f (descending into separating conjunctions, implications
// and stack disjunctions) and returns every Axiom satisfying pred,
// deduplicated by identity of the returned value's underlying data — since
// Axiom variants here are plain structs rather than pointers, "identity"
// means the axiom's rendered form, which is stable across a single proof
// state.
func Collect(f logic.Formula, pred func(logic.Axiom) bool) []logic.Axiom {
	var out []logic.Axiom
	seen := make(map[string]bool)
	var walk func(logic.Formula)
	walk = func(node logic.Formula) {
		switch n := node.(type) {
		case logic.SeparatingConjunction:
			for _, c := range n.Children {
				walk(c)
			}
		case logic.StackDisjunction:
			for _, c := range n.Disjuncts {
				walk(c)
			}
		case logic.NonSeparatingImplication:
			walk(n.Premise)
			walk(n.Conclusion)
		case logic.AxiomFormula:
			if pred(n.Axiom) {
				key := n.Axiom.String()
				if !seen[key] {
					seen[key] = true
					out = append(out, n.Axiom)
				}
			}
		}
	}
	walk(f)
	return out
}

// MemoryAxioms is a Collect specialisation returning every MemoryAxiom.
func MemoryAxioms(f logic.Formula) []logic.MemoryAxiom {
	axioms := Collect(f, func(a logic.Axiom) bool {
		_, ok := a.(logic.MemoryAxiom)
		return ok
	})
	out := make([]logic.MemoryAxiom, len(axioms))
	for i, a := range axioms {
		out[i] = a.(logic.MemoryAxiom)
	}
	return out
}
