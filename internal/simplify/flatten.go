// Package simplify implements the normalisation layer over internal/logic:
// flattening nested separating conjunctions, inlining derived equalities,
// and a generic identity-deduplicated Collect over formula trees.
package simplify

import "github.com/nyu-acsys/krill-sub000/internal/logic"

// Flatten collapses nested SeparatingConjunctions into one flat list of
// children; it does not descend into NonSeparatingImplication or
// StackDisjunction, matching Simplify's boundary rule.
func Flatten(f logic.SeparatingConjunction) logic.SeparatingConjunction {
	var out []logic.Formula
	var walk func(logic.Formula)
	walk = func(c logic.Formula) {
		if sc, ok := c.(logic.SeparatingConjunction); ok {
			for _, child := range sc.Children {
				walk(child)
			}
			return
		}
		out = append(out, c)
	}
	for _, c := range f.Children {
		walk(c)
	}
	return logic.SeparatingConjunction{Children: out}
}

// Simplify flattens f; it is the read-only normal form every post-image
// and join result is put into before further processing.
// Simplify is idempotent: Simplify(Simplify(x)) == Simplify(x) for any x,
// since Flatten on an already-flat conjunction is a no-op copy.
func Simplify(f logic.SeparatingConjunction) logic.SeparatingConjunction {
	return dedupe(Flatten(f))
}

// dedupe removes syntactically duplicate conjuncts (structural equality
// via String(), which is stable because Expr/Axiom/Formula never embed
// pointers whose String() is not itself stable — symbols print their
// name, which Rename always keeps unique within one proof run).
func dedupe(f logic.SeparatingConjunction) logic.SeparatingConjunction {
	seen := make(map[string]bool, len(f.Children))
	out := make([]logic.Formula, 0, len(f.Children))
	for _, c := range f.Children {
		key := c.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return logic.SeparatingConjunction{Children: out}
}
