// Package eval implements Evaluate: resolving a program
// expression to the symbol it denotes in a given annotation.
package eval

import (
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
)

// Evaluate returns the symbol (or sentinel literal) a program expression
// resolves to in state, or a diag.ResourceMissing error if a required
// variable or memory resource is absent.
func Evaluate(e program.Expr, state logic.Annotation) (logic.Expr, error) {
	switch n := e.(type) {
	case program.Ident:
		val, ok := state.VariableValue(n.Name)
		if !ok {
			return nil, diag.New(diag.ResourceMissing, "variable %q has no resource", n.Name)
		}
		return logic.Var{Symbol: val}, nil

	case program.Field:
		baseVal, ok := state.VariableValue(n.Base.Name)
		if !ok {
			return nil, diag.New(diag.ResourceMissing, "variable %q has no resource", n.Base.Name)
		}
		mem, ok := state.MemoryAt(baseVal)
		if !ok {
			return nil, diag.New(diag.ResourceMissing, "no memory resource at %q", n.Base.Name)
		}
		fieldVal, ok := mem.Fields[n.FieldName]
		if !ok {
			return nil, diag.New(diag.ResourceMissing, "field %q not present on %q", n.FieldName, n.Base.Name)
		}
		return logic.Var{Symbol: fieldVal}, nil

	case program.Literal:
		return literal(n.Tag)

	default:
		return nil, diag.New(diag.UnsupportedConstruct, "unknown expression kind %T", e)
	}
}

func literal(tag string) (logic.Expr, error) {
	switch tag {
	case "true":
		return logic.BoolLit{Value: true}, nil
	case "false":
		return logic.BoolLit{Value: false}, nil
	case "null":
		return logic.Null, nil
	case "min":
		return logic.Min, nil
	case "max":
		return logic.Max, nil
	case "self-tid":
		return logic.SelfTid, nil
	case "some-tid":
		return logic.SomeTid, nil
	case "unlocked":
		return logic.Unlocked, nil
	default:
		return nil, diag.New(diag.UnsupportedConstruct, "unknown literal %q", tag)
	}
}

// MemoryAt resolves the memory resource addressed by evaluating base,
// a convenience wrapper Post uses repeatedly for write/lock commands.
func MemoryAt(base string, state logic.Annotation) (logic.MemoryAxiom, error) {
	val, ok := state.VariableValue(base)
	if !ok {
		return logic.MemoryAxiom{}, diag.New(diag.ResourceMissing, "variable %q has no resource", base)
	}
	mem, ok := state.MemoryAt(val)
	if !ok {
		return logic.MemoryAxiom{}, diag.New(diag.ResourceMissing, "no memory resource at %q", base)
	}
	return mem, nil
}
