package logic

import "github.com/nyu-acsys/krill-sub000/internal/sym"

// Visitor is the immutable traversal contract: every logic object is
// visitable by a pair of visitors, with a defaulted Walk traversal and an
// overridable Visit. The package ships no default no-op visitor, so an
// implementation provides all three methods itself.
type Visitor interface {
	VisitExpr(Expr)
	VisitAxiom(Axiom)
	VisitFormula(Formula)
}

// MutableVisitor is the rewriting counterpart: each Visit* may return a
// replacement. Returning the same value it was given is a no-op.
type MutableVisitor interface {
	VisitExpr(Expr) Expr
	VisitAxiom(Axiom) Axiom
	VisitFormula(Formula) Formula
}

// Walk performs a post-order traversal of f, invoking v on every Formula,
// Axiom and Expr reachable from it (descending into SeparatingConjunction
// children, implication premise/conclusion, stack disjunction branches,
// and axiom sub-expressions).
func Walk(v Visitor, f Formula) {
	if f == nil {
		return
	}
	switch n := f.(type) {
	case SeparatingConjunction:
		for _, c := range n.Children {
			Walk(v, c)
		}
	case StackDisjunction:
		for _, c := range n.Disjuncts {
			Walk(v, c)
		}
	case NonSeparatingImplication:
		Walk(v, n.Premise)
		Walk(v, n.Conclusion)
	case AxiomFormula:
		walkAxiom(v, n.Axiom)
	}
	v.VisitFormula(f)
}

func walkAxiom(v Visitor, a Axiom) {
	switch n := a.(type) {
	case StackAxiom:
		v.VisitExpr(n.LHS)
		v.VisitExpr(n.RHS)
	case InflowContainsValueAxiom:
		v.VisitExpr(n.Value)
	case InflowContainsRangeAxiom:
		v.VisitExpr(n.Lo)
		v.VisitExpr(n.Hi)
	case FulfillmentAxiom:
		v.VisitExpr(n.ReturnValue)
	}
	v.VisitAxiom(a)
}

// Rewrite performs a bottom-up rewrite of f using mv, rebuilding every
// compound node whose children changed. It is the mutable dual of Walk and
// is what RenameSymbols and InlineAndSimplify's substitution step build on.
func Rewrite(mv MutableVisitor, f Formula) Formula {
	if f == nil {
		return nil
	}
	switch n := f.(type) {
	case SeparatingConjunction:
		children := make([]Formula, len(n.Children))
		for i, c := range n.Children {
			children[i] = Rewrite(mv, c)
		}
		return mv.VisitFormula(SeparatingConjunction{Children: children})
	case StackDisjunction:
		disjuncts := make([]Formula, len(n.Disjuncts))
		for i, c := range n.Disjuncts {
			disjuncts[i] = Rewrite(mv, c)
		}
		return mv.VisitFormula(StackDisjunction{Disjuncts: disjuncts})
	case NonSeparatingImplication:
		return mv.VisitFormula(NonSeparatingImplication{
			Premise:    Rewrite(mv, n.Premise),
			Conclusion: Rewrite(mv, n.Conclusion),
		})
	case AxiomFormula:
		return mv.VisitFormula(AxiomFormula{Axiom: rewriteAxiom(mv, n.Axiom)})
	default:
		return f
	}
}

func rewriteAxiom(mv MutableVisitor, a Axiom) Axiom {
	switch n := a.(type) {
	case StackAxiom:
		n.LHS = mv.VisitExpr(n.LHS)
		n.RHS = mv.VisitExpr(n.RHS)
		return mv.VisitAxiom(n)
	case InflowContainsValueAxiom:
		n.Value = mv.VisitExpr(n.Value)
		return mv.VisitAxiom(n)
	case InflowContainsRangeAxiom:
		n.Lo = mv.VisitExpr(n.Lo)
		n.Hi = mv.VisitExpr(n.Hi)
		return mv.VisitAxiom(n)
	case FulfillmentAxiom:
		n.ReturnValue = mv.VisitExpr(n.ReturnValue)
		return mv.VisitAxiom(n)
	default:
		return mv.VisitAxiom(a)
	}
}

// Renaming maps a symbol to its replacement. Default is the renaming
// RenameSymbols falls back to when a symbol has no explicit entry: it asks
// the factory for a fresh symbol of the same sort/order and remembers the
// choice so later occurrences of the same source symbol get the same
// replacement.
type Renaming struct {
	factory *sym.Factory
	chosen  map[*sym.Symbol]*sym.Symbol
}

func NewRenaming(factory *sym.Factory) *Renaming {
	return &Renaming{factory: factory, chosen: make(map[*sym.Symbol]*sym.Symbol)}
}

// Bind fixes s's replacement explicitly (used to build the non-default
// part of a renaming, e.g. "rename the footprint's addresses back to the
// caller's names").
func (r *Renaming) Bind(s, to *sym.Symbol) { r.chosen[s] = to }

func (r *Renaming) Of(s *sym.Symbol) *sym.Symbol {
	if to, ok := r.chosen[s]; ok {
		return to
	}
	to := r.factory.FreshLike(s)
	r.chosen[s] = to
	return to
}

type renameVisitor struct{ r *Renaming }

func (rv renameVisitor) VisitExpr(e Expr) Expr {
	if v, ok := e.(Var); ok {
		return Var{Symbol: rv.r.Of(v.Symbol)}
	}
	return e
}

func (rv renameVisitor) VisitAxiom(a Axiom) Axiom {
	switch n := a.(type) {
	case InflowEmptinessAxiom:
		n.Flow = rv.r.Of(n.Flow)
		return n
	case InflowContainsValueAxiom:
		n.Flow = rv.r.Of(n.Flow)
		return n
	case InflowContainsRangeAxiom:
		n.Flow = rv.r.Of(n.Flow)
		return n
	case EqualsToAxiom:
		n.Value = rv.r.Of(n.Value)
		return n
	case MemoryAxiom:
		n.Address = rv.r.Of(n.Address)
		n.Flow = rv.r.Of(n.Flow)
		fields := make(map[string]*sym.Symbol, len(n.Fields))
		for name, v := range n.Fields {
			fields[name] = rv.r.Of(v)
		}
		n.Fields = fields
		return n
	case ObligationAxiom:
		n.Key = rv.r.Of(n.Key)
		return n
	case FulfillmentAxiom:
		n.Key = rv.r.Of(n.Key)
		return n
	default:
		return a
	}
}

func (rv renameVisitor) VisitFormula(f Formula) Formula { return f }

// RenameSymbols replaces every occurrence of a symbol s in f by r.Of(s).
// It covers f only; the past and future predicates of an Annotation are
// renamed by RenameAnnotation.
func RenameSymbols(f Formula, r *Renaming) Formula {
	return Rewrite(renameVisitor{r: r}, f)
}

// RenamePast renames the memory of a past predicate.
func RenamePast(p PastPredicate, r *Renaming) PastPredicate {
	m := renameVisitor{r: r}.VisitAxiom(p.Memory).(MemoryAxiom)
	return PastPredicate{Memory: m}
}

// RenameFuture renames a future predicate's address, updates and guard.
func RenameFuture(fp FuturePredicate, r *Renaming) FuturePredicate {
	updates := make([]FieldUpdate, len(fp.Updates))
	for i, u := range fp.Updates {
		updates[i] = FieldUpdate{Field: u.Field, Value: r.Of(u.Value)}
	}
	return FuturePredicate{
		Address: r.Of(fp.Address),
		Updates: updates,
		Guard:   RenameSymbols(fp.Guard, r),
	}
}

// RenameMemory renames a standalone memory axiom, used wherever a memory
// is carried outside of a full annotation (e.g. a HeapEffect's pre/post).
func RenameMemory(m MemoryAxiom, r *Renaming) MemoryAxiom {
	return renameVisitor{r: r}.VisitAxiom(m).(MemoryAxiom)
}

// RenameEffect renames every symbol occurring in a HeapEffect.
func RenameEffect(e HeapEffect, r *Renaming) HeapEffect {
	return HeapEffect{
		Pre:     RenameMemory(e.Pre, r),
		Post:    RenameMemory(e.Post, r),
		Context: RenameSymbols(e.Context, r),
	}
}

// RenameAnnotation renames every symbol in a, including past and future.
func RenameAnnotation(a Annotation, r *Renaming) Annotation {
	out := Annotation{Now: RenameSymbols(a.Now, r).(SeparatingConjunction)}
	for _, p := range a.Past {
		out.Past = append(out.Past, RenamePast(p, r))
	}
	for _, fp := range a.Future {
		out.Future = append(out.Future, RenameFuture(fp, r))
	}
	return out
}
