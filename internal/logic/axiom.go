package logic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// StackOp is the comparator of a StackAxiom.
type StackOp int

const (
	EQ StackOp = iota
	NEQ
	LEQ
	LT
	GEQ
	GT
)

func (op StackOp) String() string {
	switch op {
	case EQ:
		return "="
	case NEQ:
		return "!="
	case LEQ:
		return "<="
	case LT:
		return "<"
	case GEQ:
		return ">="
	case GT:
		return ">"
	default:
		return "?"
	}
}

// Axiom is an atomic formula.
type Axiom interface {
	// Resource reports whether this axiom is a resource (a variable or
	// memory axiom); resources are consumed by separating conjunction and
	// must never be duplicated across conjuncts, unlike pure axioms which
	// may be freely copied.
	Resource() bool
	axiomNode()
	String() string
}

// StackAxiom is a pure comparison between two first-order expressions of
// compatible type.
type StackAxiom struct {
	Op       StackOp
	LHS, RHS Expr
}

func (StackAxiom) axiomNode()     {}
func (StackAxiom) Resource() bool { return false }
func (a StackAxiom) String() string {
	return fmt.Sprintf("%s %s %s", a.LHS, a.Op, a.RHS)
}

// InflowEmptinessAxiom asserts a flow symbol's (non-)emptiness.
type InflowEmptinessAxiom struct {
	Flow    *sym.Symbol
	IsEmpty bool
}

func (InflowEmptinessAxiom) axiomNode()     {}
func (InflowEmptinessAxiom) Resource() bool { return false }
func (a InflowEmptinessAxiom) String() string {
	if a.IsEmpty {
		return fmt.Sprintf("%s = {}", a.Flow)
	}
	return fmt.Sprintf("%s != {}", a.Flow)
}

// InflowContainsValueAxiom asserts value ∈ flow.
type InflowContainsValueAxiom struct {
	Flow  *sym.Symbol
	Value Expr
}

func (InflowContainsValueAxiom) axiomNode()     {}
func (InflowContainsValueAxiom) Resource() bool { return false }
func (a InflowContainsValueAxiom) String() string {
	return fmt.Sprintf("%s in %s", a.Value, a.Flow)
}

// InflowContainsRangeAxiom asserts [lo, hi] ⊆ flow.
type InflowContainsRangeAxiom struct {
	Flow   *sym.Symbol
	Lo, Hi Expr
}

func (InflowContainsRangeAxiom) axiomNode()     {}
func (InflowContainsRangeAxiom) Resource() bool { return false }
func (a InflowContainsRangeAxiom) String() string {
	return fmt.Sprintf("[%s, %s] subset %s", a.Lo, a.Hi, a.Flow)
}

// EqualsToAxiom is the variable resource: programVar currently evaluates
// to valueSymbol. At most one such axiom may exist per program variable
// within a satisfiable separating conjunction.
type EqualsToAxiom struct {
	ProgramVar string
	Value      *sym.Symbol
}

func (EqualsToAxiom) axiomNode()     {}
func (EqualsToAxiom) Resource() bool { return true }
func (a EqualsToAxiom) String() string {
	return fmt.Sprintf("%s == %s", a.ProgramVar, a.Value)
}

// Locality tags a MemoryAxiom as owned-and-invisible or published to the
// environment.
type Locality int

const (
	Local Locality = iota
	Shared
)

func (l Locality) String() string {
	if l == Shared {
		return "shared"
	}
	return "local"
}

// MemoryAxiom is the memory resource: the cell at Address currently has
// flow Flow and the given field valuations. At most one MemoryAxiom may
// exist per symbolic address, and an address may
// not carry both a local and a shared memory axiom (invariant 3).
type MemoryAxiom struct {
	Address  *sym.Symbol
	Flow     *sym.Symbol
	Fields   map[string]*sym.Symbol
	Locality Locality
}

func (MemoryAxiom) axiomNode()     {}
func (MemoryAxiom) Resource() bool { return true }

// FieldNames returns the axiom's field names in a stable, sorted order —
// used throughout the footprint/post layers so field iteration never
// depends on Go's randomised map order.
func (m MemoryAxiom) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m MemoryAxiom) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s; flow=%s", m.Locality, m.Address, m.Flow)
	for _, name := range m.FieldNames() {
		fmt.Fprintf(&b, ", %s=%s", name, m.Fields[name])
	}
	b.WriteByte(')')
	return b.String()
}

// SameCell reports whether m and other describe the same symbolic address
// with the same set of field names — the precondition for the memory
// equality an InlineAndSimplify pass derives between them.
func (m MemoryAxiom) SameCell(other MemoryAxiom) bool {
	if m.Address != other.Address {
		return false
	}
	if len(m.Fields) != len(other.Fields) {
		return false
	}
	for name := range m.Fields {
		if _, ok := other.Fields[name]; !ok {
			return false
		}
	}
	return true
}

// SpecKind is the linearizability specification an ObligationAxiom names.
type SpecKind int

const (
	SpecContains SpecKind = iota
	SpecInsert
	SpecDelete
)

func (k SpecKind) String() string {
	switch k {
	case SpecContains:
		return "contains"
	case SpecInsert:
		return "insert"
	case SpecDelete:
		return "delete"
	default:
		return "?"
	}
}

// ObligationAxiom demands that a linearization point for (Spec, Key) be
// taken somewhere in the remaining execution. Key must be a data-sorted
// first-order symbol.
type ObligationAxiom struct {
	Spec SpecKind
	Key  *sym.Symbol
}

func (ObligationAxiom) axiomNode()     {}
func (ObligationAxiom) Resource() bool { return true }
func (a ObligationAxiom) String() string {
	return fmt.Sprintf("obligation(%s, %s)", a.Spec, a.Key)
}

// FulfillmentAxiom witnesses that an obligation's linearization point has
// been taken, carrying the boolean the function should return.
type FulfillmentAxiom struct {
	Spec        SpecKind
	Key         *sym.Symbol
	ReturnValue Expr
}

func (FulfillmentAxiom) axiomNode()     {}
func (FulfillmentAxiom) Resource() bool { return true }
func (a FulfillmentAxiom) String() string {
	return fmt.Sprintf("fulfillment(%s, %s) = %s", a.Spec, a.Key, a.ReturnValue)
}
