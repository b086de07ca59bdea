package logic

import "strings"

// Formula is the separating-logic connective layer built on top of Axiom.
type Formula interface {
	formulaNode()
	String() string
}

// SeparatingConjunction is a list of children combined with resource
// disjointness semantics: commutative, associative, idempotent up to
// resource uniqueness. Children may themselves be
// Axiom or Formula; we keep them as Formula by wrapping bare axioms in
// AxiomFormula so a SeparatingConjunction's Children is homogeneous.
type SeparatingConjunction struct {
	Children []Formula
}

func (SeparatingConjunction) formulaNode() {}
func (c SeparatingConjunction) String() string {
	if len(c.Children) == 0 {
		return "emp"
	}
	parts := make([]string, len(c.Children))
	for i, ch := range c.Children {
		parts[i] = ch.String()
	}
	return strings.Join(parts, " * ")
}

// And builds a SeparatingConjunction with formulas as its children; it
// does not flatten nested conjunctions (flattening is Simplify's job).
func And(fs ...Formula) SeparatingConjunction {
	return SeparatingConjunction{Children: fs}
}

// AxiomFormula lifts a bare Axiom into the Formula sum.
type AxiomFormula struct{ Axiom Axiom }

func (AxiomFormula) formulaNode()     {}
func (a AxiomFormula) String() string { return a.Axiom.String() }

func Lift(a Axiom) Formula { return AxiomFormula{Axiom: a} }

// StackDisjunction is used transiently during assume translation
// and nowhere else; it never survives into a state's `now`.
type StackDisjunction struct {
	Disjuncts []Formula
}

func (StackDisjunction) formulaNode() {}
func (d StackDisjunction) String() string {
	parts := make([]string, len(d.Disjuncts))
	for i, ch := range d.Disjuncts {
		parts[i] = ch.String()
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

// NonSeparatingImplication is used in node/variable invariants: premise
// implies conclusion, both read under ordinary (non-separating) semantics.
type NonSeparatingImplication struct {
	Premise, Conclusion Formula
}

func (NonSeparatingImplication) formulaNode() {}
func (i NonSeparatingImplication) String() string {
	return i.Premise.String() + " => " + i.Conclusion.String()
}
