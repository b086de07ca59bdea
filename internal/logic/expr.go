// Package logic implements the symbolic separation-logic layer: symbolic
// expressions, axioms, formulas, annotations and heap effects. Each
// syntactic category is a small sealed interface, one file per concern,
// with every variant self-describing via String().
package logic

import "github.com/nyu-acsys/krill-sub000/internal/sym"

// Expr is the closed sum of symbolic expressions: a variable, a bool
// literal, null, min, max, self-tid, some-tid or unlocked.
type Expr interface {
	Order() sym.Order
	exprNode()
	String() string
}

// Var wraps a live symbol occurrence.
type Var struct{ Symbol *sym.Symbol }

func (Var) exprNode()            {}
func (v Var) Order() sym.Order   { return v.Symbol.Order() }
func (v Var) String() string     { return v.Symbol.String() }

// BoolLit is a first-order boolean literal.
type BoolLit struct{ Value bool }

func (BoolLit) exprNode()          {}
func (BoolLit) Order() sym.Order   { return sym.FirstOrder }
func (b BoolLit) String() string {
	if b.Value {
		return "true"
	}
	return "false"
}

// sentinel is the shared implementation for the nullary first-order
// constants (Null, Min, Max, SelfTid, SomeTid, Unlocked); they carry no
// data beyond their own identity, so one struct with a tag suffices rather
// than six near-empty types.
type sentinel struct{ tag string }

func (sentinel) exprNode()          {}
func (sentinel) Order() sym.Order   { return sym.FirstOrder }
func (s sentinel) String() string   { return s.tag }

var (
	Null     Expr = sentinel{"null"}
	Min      Expr = sentinel{"min"}
	Max      Expr = sentinel{"max"}
	SelfTid  Expr = sentinel{"self-tid"}
	SomeTid  Expr = sentinel{"some-tid"}
	Unlocked Expr = sentinel{"unlocked"}
)

// IsSentinel reports whether e is one of the nullary constants above and,
// if so, its tag.
func IsSentinel(e Expr) (string, bool) {
	s, ok := e.(sentinel)
	return s.tag, ok
}
