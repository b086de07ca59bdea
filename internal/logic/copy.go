package logic

// identityVisitor rebuilds every compound node without touching symbols,
// which is exactly what Copy needs: Rewrite already allocates fresh slices
// for every SeparatingConjunction/StackDisjunction it passes through, so
// the result is structurally equal to the input but shares no backing
// arrays with it, while every *sym.Symbol pointer is reused verbatim.
type identityVisitor struct{}

func (identityVisitor) VisitExpr(e Expr) Expr       { return e }
func (identityVisitor) VisitAxiom(a Axiom) Axiom     { return a }
func (identityVisitor) VisitFormula(f Formula) Formula { return f }

// Copy returns a structural copy of f sharing the same symbols.
func Copy(f Formula) Formula {
	return Rewrite(identityVisitor{}, f)
}

// CopyAnnotation deep-copies a's slices (Now, Past, Future) while sharing
// every symbol and sub-formula with the original.
func CopyAnnotation(a Annotation) Annotation {
	out := Annotation{Now: Copy(a.Now).(SeparatingConjunction)}
	out.Past = append([]PastPredicate(nil), a.Past...)
	out.Future = append([]FuturePredicate(nil), a.Future...)
	return out
}
