package program

import "fmt"

// Expr is a program-level expression: either a variable, a one-level field
// dereference of a variable, or one of the nullary sentinel literals.
type Expr interface {
	Pos() Position
	exprNode()
	String() string
}

type Ident struct {
	Name     string
	Position Position
}

func (Ident) exprNode()          {}
func (i Ident) Pos() Position    { return i.Position }
func (i Ident) String() string   { return i.Name }

// Field is var.field — a dereference.
type Field struct {
	Base     Ident
	FieldName string
	Position Position
}

func (Field) exprNode()        {}
func (f Field) Pos() Position  { return f.Position }
func (f Field) String() string { return fmt.Sprintf("%s.%s", f.Base.Name, f.FieldName) }

// Literal is one of the nullary sentinels shared with internal/logic:
// true, false, null, min, max, self-tid, some-tid, unlocked.
type Literal struct {
	Tag      string
	Position Position
}

func (Literal) exprNode()         {}
func (l Literal) Pos() Position   { return l.Position }
func (l Literal) String() string  { return l.Tag }

var (
	True     = Literal{Tag: "true"}
	False    = Literal{Tag: "false"}
	Null     = Literal{Tag: "null"}
	Min      = Literal{Tag: "min"}
	Max      = Literal{Tag: "max"}
	SelfTid  = Literal{Tag: "self-tid"}
	SomeTid  = Literal{Tag: "some-tid"}
	Unlocked = Literal{Tag: "unlocked"}
)
