package simplify

import (
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// unionFind is the tiny disjoint-set structure InlineAndSimplify uses to
// pick one representative symbol per equivalence class of "provably equal"
// symbols.
type unionFind struct {
	parent map[*sym.Symbol]*sym.Symbol
}

func newUnionFind() *unionFind { return &unionFind{parent: make(map[*sym.Symbol]*sym.Symbol)} }

func (u *unionFind) find(s *sym.Symbol) *sym.Symbol {
	p, ok := u.parent[s]
	if !ok {
		return s
	}
	root := u.find(p)
	u.parent[s] = root
	return root
}

func (u *unionFind) union(a, b *sym.Symbol) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Deterministic pick: prefer the symbol with the smaller ID as
	// representative so repeated InlineAndSimplify calls over equivalent
	// input converge on the same canonical form.
	if ra.ID() <= rb.ID() {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

// InlineAndSimplify flattens f, derives symbol equalities from pairs of
// memory axioms at the same address and from top-level StackAxiom(EQ,
// var, var) conjuncts, substitutes every non-canonical symbol by its
// class representative throughout f (but never across implication or
// past/future boundaries — f is always just a SeparatingConjunction, so
// that boundary is enforced by never being called on those), and drops
// the now-trivial equalities and duplicate memory axioms that result.
func InlineAndSimplify(f logic.SeparatingConjunction) logic.SeparatingConjunction {
	flat := Flatten(f)

	uf := newUnionFind()
	for _, c := range flat.Children {
		if ax, ok := asAxiom(c); ok {
			if sa, ok := ax.(logic.StackAxiom); ok && sa.Op == logic.EQ {
				if lv, lok := sa.LHS.(logic.Var); lok {
					if rv, rok := sa.RHS.(logic.Var); rok {
						uf.union(lv.Symbol, rv.Symbol)
					}
				}
			}
		}
	}

	mems := make([]logic.MemoryAxiom, 0)
	for _, c := range flat.Children {
		if ax, ok := asAxiom(c); ok {
			if m, ok := ax.(logic.MemoryAxiom); ok {
				mems = append(mems, m)
			}
		}
	}
	for i := 0; i < len(mems); i++ {
		for j := i + 1; j < len(mems); j++ {
			if mems[i].Address == mems[j].Address {
				uf.union(mems[i].Flow, mems[j].Flow)
				for _, name := range mems[i].FieldNames() {
					if v2, ok := mems[j].Fields[name]; ok {
						uf.union(mems[i].Fields[name], v2)
					}
				}
			}
		}
	}

	subst := substVisitor{uf: uf}
	rewritten := logic.Rewrite(subst, flat).(logic.SeparatingConjunction)

	seenMemAddr := make(map[*sym.Symbol]bool)
	out := make([]logic.Formula, 0, len(rewritten.Children))
	for _, c := range rewritten.Children {
		if ax, ok := asAxiom(c); ok {
			if sa, ok := ax.(logic.StackAxiom); ok && sa.Op == logic.EQ {
				if sameExpr(sa.LHS, sa.RHS) {
					continue // trivial x = x
				}
			}
			if m, ok := ax.(logic.MemoryAxiom); ok {
				if seenMemAddr[m.Address] {
					continue // duplicate: keep only the first representative
				}
				seenMemAddr[m.Address] = true
			}
		}
		out = append(out, c)
	}

	return dedupe(logic.SeparatingConjunction{Children: out})
}

func asAxiom(f logic.Formula) (logic.Axiom, bool) {
	af, ok := f.(logic.AxiomFormula)
	if !ok {
		return nil, false
	}
	return af.Axiom, true
}

func sameExpr(a, b logic.Expr) bool {
	va, aok := a.(logic.Var)
	vb, bok := b.(logic.Var)
	if aok && bok {
		return va.Symbol == vb.Symbol
	}
	if aok != bok {
		return false
	}
	return a.String() == b.String()
}

// substVisitor rewrites every Var to its union-find representative; it
// implements logic.MutableVisitor directly (rather than going through a
// Renaming, which always mints *fresh* symbols) because InlineAndSimplify
// substitutes to an *existing* representative symbol.
type substVisitor struct{ uf *unionFind }

func (s substVisitor) VisitExpr(e logic.Expr) logic.Expr {
	if v, ok := e.(logic.Var); ok {
		return logic.Var{Symbol: s.uf.find(v.Symbol)}
	}
	return e
}

func (s substVisitor) VisitAxiom(a logic.Axiom) logic.Axiom {
	switch n := a.(type) {
	case logic.InflowEmptinessAxiom:
		n.Flow = s.uf.find(n.Flow)
		return n
	case logic.InflowContainsValueAxiom:
		n.Flow = s.uf.find(n.Flow)
		return n
	case logic.InflowContainsRangeAxiom:
		n.Flow = s.uf.find(n.Flow)
		return n
	case logic.EqualsToAxiom:
		n.Value = s.uf.find(n.Value)
		return n
	case logic.MemoryAxiom:
		n.Address = s.uf.find(n.Address)
		n.Flow = s.uf.find(n.Flow)
		fields := make(map[string]*sym.Symbol, len(n.Fields))
		for name, v := range n.Fields {
			fields[name] = s.uf.find(v)
		}
		n.Fields = fields
		return n
	case logic.ObligationAxiom:
		n.Key = s.uf.find(n.Key)
		return n
	case logic.FulfillmentAxiom:
		n.Key = s.uf.find(n.Key)
		return n
	default:
		return a
	}
}

func (s substVisitor) VisitFormula(f logic.Formula) logic.Formula { return f }
