package logic

import (
	"strings"

	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// PastPredicate asserts that the memory at Memory.Address once had the
// recorded field values and flow.
type PastPredicate struct {
	Memory MemoryAxiom
}

func (p PastPredicate) String() string { return "past " + p.Memory.String() }

// FieldUpdate names a single field's new value in a FuturePredicate.
type FieldUpdate struct {
	Field string
	Value *sym.Symbol
}

// FuturePredicate asserts that somewhere along every future execution a
// state is reached in which Guard holds and every listed field update has
// been performed on the cell at Address.
type FuturePredicate struct {
	Address *sym.Symbol
	Updates []FieldUpdate
	Guard   Formula
}

func (f FuturePredicate) String() string {
	parts := make([]string, len(f.Updates))
	for i, u := range f.Updates {
		parts[i] = u.Field + ":=" + u.Value.String()
	}
	return "future " + f.Address.String() + "{" + strings.Join(parts, ",") + "} when " + f.Guard.String()
}

// SameShape reports whether f and other update the same field set (in any
// order) on a future — used by ReduceFuture's subsumption check and Join's
// Cartesian matching, both of which require syntactically identical
// updated-field tuples before comparing values.
func (f FuturePredicate) SameShape(other FuturePredicate) bool {
	if len(f.Updates) != len(other.Updates) {
		return false
	}
	seen := make(map[string]bool, len(f.Updates))
	for _, u := range f.Updates {
		seen[u.Field] = true
	}
	for _, u := range other.Updates {
		if !seen[u.Field] {
			return false
		}
	}
	return true
}

// Annotation is the per-program-point symbolic state: a separating
// conjunction `now`, a list of past predicates, and a list of future
// predicates.
type Annotation struct {
	Now    SeparatingConjunction
	Past   []PastPredicate
	Future []FuturePredicate
}

// Clone returns a shallow copy of a whose slices are independently
// growable; symbols and sub-formulas are shared by reference (never
// cloned), matching the "same symbols" contract of Copy.
func (a Annotation) Clone() Annotation {
	out := Annotation{
		Now:    SeparatingConjunction{Children: append([]Formula(nil), a.Now.Children...)},
		Past:   append([]PastPredicate(nil), a.Past...),
		Future: append([]FuturePredicate(nil), a.Future...),
	}
	return out
}

// Axioms collects every top-level axiom of a.Now, unwrapping AxiomFormula
// and descending into nested SeparatingConjunctions (but not across
// NonSeparatingImplication or StackDisjunction boundaries — those are not
// part of the resource multiset).
func (a Annotation) Axioms() []Axiom {
	var out []Axiom
	var walk func(f Formula)
	walk = func(f Formula) {
		switch n := f.(type) {
		case AxiomFormula:
			out = append(out, n.Axiom)
		case SeparatingConjunction:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(a.Now)
	return out
}

// MemoryAxioms returns every MemoryAxiom in a.Now, in the order found.
func (a Annotation) MemoryAxioms() []MemoryAxiom {
	var out []MemoryAxiom
	for _, ax := range a.Axioms() {
		if m, ok := ax.(MemoryAxiom); ok {
			out = append(out, m)
		}
	}
	return out
}

// VariableAxioms returns every EqualsToAxiom in a.Now.
func (a Annotation) VariableAxioms() []EqualsToAxiom {
	var out []EqualsToAxiom
	for _, ax := range a.Axioms() {
		if e, ok := ax.(EqualsToAxiom); ok {
			out = append(out, e)
		}
	}
	return out
}

// Obligations returns every ObligationAxiom in a.Now.
func (a Annotation) Obligations() []ObligationAxiom {
	var out []ObligationAxiom
	for _, ax := range a.Axioms() {
		if o, ok := ax.(ObligationAxiom); ok {
			out = append(out, o)
		}
	}
	return out
}

// Fulfillments returns every FulfillmentAxiom in a.Now.
func (a Annotation) Fulfillments() []FulfillmentAxiom {
	var out []FulfillmentAxiom
	for _, ax := range a.Axioms() {
		if f, ok := ax.(FulfillmentAxiom); ok {
			out = append(out, f)
		}
	}
	return out
}

// MemoryAt returns the MemoryAxiom whose Address is addr, if any.
func (a Annotation) MemoryAt(addr *sym.Symbol) (MemoryAxiom, bool) {
	for _, m := range a.MemoryAxioms() {
		if m.Address == addr {
			return m, true
		}
	}
	return MemoryAxiom{}, false
}

// VariableValue returns the value symbol bound to a program variable name,
// if a variable resource for it exists.
func (a Annotation) VariableValue(name string) (*sym.Symbol, bool) {
	for _, v := range a.VariableAxioms() {
		if v.ProgramVar == name {
			return v.Value, true
		}
	}
	return nil, false
}

func (a Annotation) String() string {
	var b strings.Builder
	b.WriteString(a.Now.String())
	for _, p := range a.Past {
		b.WriteString(" && ")
		b.WriteString(p.String())
	}
	for _, f := range a.Future {
		b.WriteString(" && ")
		b.WriteString(f.String())
	}
	return b.String()
}

// HeapEffect records one thread's abstracted mutation of a shared memory
// cell: {pre, post, context} with pre.Address == post.Address and the same
// field set. Context must not mention resources.
type HeapEffect struct {
	Pre, Post MemoryAxiom
	Context   Formula
}

func (e HeapEffect) String() string {
	ctx := "true"
	if e.Context != nil {
		ctx = e.Context.String()
	}
	return "{" + e.Pre.String() + "} ~> {" + e.Post.String() + "} when " + ctx
}

// UpdatedFields returns the field names whose value symbol differs between
// Pre and Post, plus whether the flow symbol changed.
func (e HeapEffect) UpdatedFields() (fields []string, flowChanged bool) {
	flowChanged = e.Pre.Flow != e.Post.Flow
	for _, name := range e.Pre.FieldNames() {
		if e.Pre.Fields[name] != e.Post.Fields[name] {
			fields = append(fields, name)
		}
	}
	return fields, flowChanged
}

// IsEmpty reports whether the effect changes nothing at all.
func (e HeapEffect) IsEmpty() bool {
	fields, flowChanged := e.UpdatedFields()
	return len(fields) == 0 && !flowChanged
}
