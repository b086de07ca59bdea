// Package smt implements the SMT encoding layer: lowering separation-logic
// states and footprints into ground queries, and a batched
// implication-check API.
//
// No SMT or SAT solver library appears anywhere in the example corpus
// this module was built against (neither in any example repo's go.mod nor
// in other_examples/) — see DESIGN.md. internal/smt is therefore a
// hand-built, narrow decision procedure over the conjunctive,
// quantifier-light fragment the object language actually produces
// (equalities, disequalities, linear order, flow-emptiness and flow
// membership facts), rather than a general QF-LIA+UF solver. It keeps the
// external shape a real solver binding would need — Push/Pop-scoped
// assertions, a batched Check() with per-query callbacks, and a
// SolverUnknown escape hatch — so that internal/post, internal/flowgraph
// etc. are written exactly as if a real backend sat behind this package.
package smt

import (
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// pendingCheck is one queued implication, answered when Check runs.
type pendingCheck struct {
	premise, conclusion logic.Formula
	callback            func(bool)
}

// Context is one SMT "session": a stack of asserted formulas (scoped by
// Push/Pop) plus a batch of not-yet-decided implications.
type Context struct {
	factory *sym.Factory
	atoms   []logic.Axiom
	marks   []int
	pending []pendingCheck
}

// NewContext opens a context backed by factory (used by EncodeForAll /
// EncodeForSome to mint generic witnesses).
func NewContext(factory *sym.Factory) *Context {
	return &Context{factory: factory}
}

// Push saves the current assertion stack depth.
func (c *Context) Push() { c.marks = append(c.marks, len(c.atoms)) }

// Pop restores the assertion stack to its depth at the matching Push.
// Popping with no matching Push is a programmer error (the caller
// reached past its own scope) and panics, matching how a missing
// z3_solver_pop would corrupt the native solver's state.
func (c *Context) Pop() {
	if len(c.marks) == 0 {
		panic("smt: Pop without matching Push")
	}
	n := c.marks[len(c.marks)-1]
	c.marks = c.marks[:len(c.marks)-1]
	c.atoms = c.atoms[:n]
}

// Encode asserts f into the current scope. It is named Encode rather than
// Assert to keep the vocabulary of an SMT-backed decision procedure, even
// though — absent a real backend — "encoding" and "asserting" are the
// same operation here. Only the ground axioms reachable through f's
// separating conjunctions are asserted; implications and stack
// disjunctions inside f are dropped.
func (c *Context) Encode(f logic.Formula) {
	atoms, _ := atomsOf(f)
	c.atoms = append(c.atoms, atoms...)
}

// EncodeForAll instantiates body at a fresh, otherwise-unconstrained
// symbol of the given sort and returns the resulting formula — a
// skolemization-style stand-in for genuine quantifier reasoning: proving
// body holds for a fresh generic symbol establishes it for every value of
// that sort, though the procedure cannot refute a universal by searching
// for a counterexample.
func (c *Context) EncodeForAll(sort sym.Sort, body func(logic.Expr) logic.Formula) logic.Formula {
	v := c.factory.Fresh(sort)
	return body(logic.Var{Symbol: v})
}

// EncodeForSome is the existential analogue: it produces one witness
// rather than ranging over all of them, so it under-approximates
// satisfiability the same way a single Skolem instantiation always does.
func (c *Context) EncodeForSome(sort sym.Sort, body func(logic.Expr) logic.Formula) logic.Formula {
	v := c.factory.Fresh(sort)
	return body(logic.Var{Symbol: v})
}

// Replace performs pointwise substitution of old by replacement in f.
func (c *Context) Replace(f logic.Formula, old, replacement logic.Expr) logic.Formula {
	return logic.Rewrite(replaceVisitor{old: old, with: replacement}, f)
}

type replaceVisitor struct{ old, with logic.Expr }

func (r replaceVisitor) VisitExpr(e logic.Expr) logic.Expr {
	if sameExpr(e, r.old) {
		return r.with
	}
	return e
}
func (r replaceVisitor) VisitAxiom(a logic.Axiom) logic.Axiom       { return a }
func (r replaceVisitor) VisitFormula(f logic.Formula) logic.Formula { return f }

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

// QueueImplication queues premise => conclusion to be decided on the next
// Check call, against the context's persistently asserted atoms.
func (c *Context) QueueImplication(premise, conclusion logic.Formula, callback func(bool)) {
	c.pending = append(c.pending, pendingCheck{premise: premise, conclusion: conclusion, callback: callback})
}

// Check runs every queued implication, invoking its callback with whether
// it holds. If any query is genuinely undecidable by this procedure, it
// retries once (the "fallback to per-query solving" 
// describes is, for this backend, simply re-deciding in isolation — there
// is no batched consequence-finding API to fall back from); if it is
// still unknown after that, Check returns a *diag.Error of kind
// SolverUnknown and stops processing the remaining queue.
func (c *Context) Check() error {
	queue := c.pending
	c.pending = nil
	for _, q := range queue {
		holds, unknown := c.decideImplication(q.premise, q.conclusion)
		if unknown {
			holds, unknown = c.decideImplication(q.premise, q.conclusion)
			if unknown {
				return diag.New(diag.SolverUnknown, "could not decide %s => %s", q.premise, q.conclusion)
			}
		}
		q.callback(holds)
	}
	return nil
}

// Satisfiable reports whether the context's persistently asserted atoms
// are jointly consistent — the check growFrontier-style callers need
// before committing a batch of newly-encoded facts, as opposed to
// Implies's "does this follow" question.
func (c *Context) Satisfiable() (bool, error) {
	m := newModel()
	for _, a := range c.atoms {
		m.assert(a)
	}
	if m.unknown {
		return false, diag.New(diag.SolverUnknown, "could not decide satisfiability")
	}
	return !m.unsat(), nil
}

// Implies is the unbatched convenience form: decide one implication
// immediately against the context's current assertions.
func (c *Context) Implies(premise, conclusion logic.Formula) (bool, error) {
	holds, unknown := c.decideImplication(premise, conclusion)
	if unknown {
		holds, unknown = c.decideImplication(premise, conclusion)
		if unknown {
			return false, diag.New(diag.SolverUnknown, "could not decide %s => %s", premise, conclusion)
		}
	}
	return holds, nil
}

// decideImplication checks premise => conclusion against c's persistent
// atoms by refuting each conjunct of the conclusion in turn: premise
// implies a conjunction iff premise implies every conjunct.
func (c *Context) decideImplication(premise, conclusion logic.Formula) (holds bool, unknown bool) {
	premAtoms, premOpaque := atomsOf(premise)
	if premOpaque {
		return false, true
	}
	concAtoms, concOpaque := atomsOf(conclusion)

	for _, ca := range concAtoms {
		neg, ok := negate(ca)
		if !ok {
			return false, true
		}
		m := newModel()
		for _, a := range c.atoms {
			m.assert(a)
		}
		for _, a := range premAtoms {
			m.assert(a)
		}
		m.assert(neg)
		if m.unknown {
			return false, true
		}
		if !m.unsat() {
			return false, false
		}
	}
	if concOpaque {
		return false, true
	}
	return true, false
}

// atomsOf flattens a formula into its top-level axioms, descending into
// separating conjunctions only (implications and stack disjunctions are
// left opaque, matching Simplify's own boundary rule). opaque reports
// whether any sub-formula could not be reduced to ground axioms.
func atomsOf(f logic.Formula) (atoms []logic.Axiom, opaque bool) {
	switch n := f.(type) {
	case nil:
		return nil, false
	case logic.SeparatingConjunction:
		for _, c := range n.Children {
			a, o := atomsOf(c)
			atoms = append(atoms, a...)
			opaque = opaque || o
		}
		return atoms, opaque
	case logic.AxiomFormula:
		return []logic.Axiom{n.Axiom}, false
	default:
		return nil, true
	}
}
