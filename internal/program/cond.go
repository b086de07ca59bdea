package program

import (
	"strings"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
)

// Cond is the boolean-expression tree an Assume command translates into a
// formula. The object language keeps the grammar small on purpose: a
// conjunction of comparisons with at most one top-level disjunction,
// which is exactly what the post-image for Assume knows how to split
// into parallel paths.
type Cond interface {
	condNode()
	String() string
}

type Cmp struct {
	Op       logic.StackOp
	LHS, RHS Expr
}

func (Cmp) condNode() {}
func (c Cmp) String() string {
	return c.LHS.String() + " " + c.Op.String() + " " + c.RHS.String()
}

type And struct{ Conds []Cond }

func (And) condNode() {}
func (a And) String() string {
	parts := make([]string, len(a.Conds))
	for i, c := range a.Conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}

// Or is restricted by convention (not by the type system) to appear at
// most once per Assume, matching the "at most one disjunction" rule
// UnsupportedConstruct would otherwise have to reject at parse time.
type Or struct{ Conds []Cond }

func (Or) condNode() {}
func (o Or) String() string {
	parts := make([]string, len(o.Conds))
	for i, c := range o.Conds {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " || ") + ")"
}
