package parser

import (
	"fmt"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
)

// Build lowers a raw parse tree into the program package's AST: the
// grammar only worries about syntax, everything meaningful (spec kinds,
// operators, literal sentinels) is resolved here.
func Build(mod *rawModule) (program.Module, error) {
	out := program.Module{Macros: map[string]program.Command{}}
	for _, decl := range mod.Decls {
		switch {
		case decl.Macro != nil:
			body, err := buildBlock(decl.Macro.Body)
			if err != nil {
				return program.Module{}, fmt.Errorf("macro %s: %w", decl.Macro.Name, err)
			}
			if _, dup := out.Macros[decl.Macro.Name]; dup {
				return program.Module{}, fmt.Errorf("macro %s declared twice", decl.Macro.Name)
			}
			out.Macros[decl.Macro.Name] = body
		case decl.Function != nil:
			fn, err := buildFunction(decl.Function)
			if err != nil {
				return program.Module{}, err
			}
			out.Functions = append(out.Functions, fn)
		}
	}
	return out, nil
}

func buildFunction(f *rawFunction) (program.Function, error) {
	spec, err := buildSpec(f.Spec)
	if err != nil {
		return program.Function{}, fmt.Errorf("function %s: %w", f.Name, err)
	}
	body, err := buildBlock(f.Body)
	if err != nil {
		return program.Function{}, fmt.Errorf("function %s: %w", f.Name, err)
	}
	return program.Function{Name: f.Name, Spec: spec, KeyArg: f.KeyArg, Body: body}, nil
}

func buildSpec(tag string) (logic.SpecKind, error) {
	switch tag {
	case "contains":
		return logic.SpecContains, nil
	case "insert":
		return logic.SpecInsert, nil
	case "delete":
		return logic.SpecDelete, nil
	default:
		return 0, fmt.Errorf("unknown specification %q", tag)
	}
}

func buildBlock(b *rawBlock) (program.Command, error) {
	cmds := make([]program.Command, len(b.Stmts))
	for i, st := range b.Stmts {
		cmd, err := buildStmt(st)
		if err != nil {
			return nil, err
		}
		cmds[i] = cmd
	}
	return program.Seq(cmds...), nil
}

func buildStmt(st *rawStmt) (program.Command, error) {
	pos := program.Position{Filename: st.Pos.Filename, Line: st.Pos.Line, Column: st.Pos.Column, Offset: st.Pos.Offset}
	switch {
	case st.Skip != nil:
		return program.Skip{}, nil
	case st.Scope != nil:
		body, err := buildBlock(st.Scope.Body)
		if err != nil {
			return nil, err
		}
		return program.Scope{Locals: st.Scope.Locals, Body: body}, nil
	case st.Atomic != nil:
		body, err := buildBlock(st.Atomic.Body)
		if err != nil {
			return nil, err
		}
		return program.Atomic{Body: body}, nil
	case st.Choice != nil:
		branches := make([]program.Command, len(st.Choice.Branches))
		for i, b := range st.Choice.Branches {
			cmd, err := buildBlock(b)
			if err != nil {
				return nil, err
			}
			branches[i] = cmd
		}
		return program.Choice{Branches: branches}, nil
	case st.Loop != nil:
		body, err := buildBlock(st.Loop.Body)
		if err != nil {
			return nil, err
		}
		return program.Loop{Body: body}, nil
	case st.Break != nil:
		return program.Break{}, nil
	case st.Return != nil:
		val, err := buildExpr(st.Return.Value)
		if err != nil {
			return nil, err
		}
		return program.Return{Value: val}, nil
	case st.Fail != nil:
		return program.Fail{}, nil
	case st.Call != nil:
		return program.Call{Macro: st.Call.Macro}, nil
	case st.Malloc != nil:
		return program.Malloc{
			Var:           st.Malloc.Var,
			PointerFields: st.Malloc.PointerFields,
			DataFields:    st.Malloc.DataFields,
		}, nil
	case st.Assume != nil:
		cond, err := buildCond(st.Assume.Cond)
		if err != nil {
			return nil, err
		}
		return program.Assume{Cond: cond}, nil
	case st.Acquire != nil:
		return program.LockAcquire{Base: st.Acquire.Base, Field: st.Acquire.Field}, nil
	case st.Release != nil:
		return program.LockRelease{Base: st.Release.Base, Field: st.Release.Field}, nil
	case st.Write != nil:
		val, err := buildExpr(st.Write.Value)
		if err != nil {
			return nil, err
		}
		return program.Write{Base: st.Write.Base, Field: st.Write.Field, Value: val}, nil
	case st.Assign != nil:
		val, err := buildExpr(st.Assign.Value)
		if err != nil {
			return nil, err
		}
		return program.Assign{Var: st.Assign.Var, Value: val}, nil
	default:
		return nil, fmt.Errorf("%s: empty statement alternative", pos)
	}
}

// buildCond flattens the Or-of-And-of-Cmp parse tree into program.Cond,
// collapsing a single alternative down to its own shape so Assume never
// carries a spurious one-branch Or or And wrapper.
func buildCond(c *rawCond) (program.Cond, error) {
	ands := make([]program.Cond, len(c.Ands))
	for i, a := range c.Ands {
		and, err := buildAnd(a)
		if err != nil {
			return nil, err
		}
		ands[i] = and
	}
	if len(ands) == 1 {
		return ands[0], nil
	}
	return program.Or{Conds: ands}, nil
}

func buildAnd(a *rawAnd) (program.Cond, error) {
	cmps := make([]program.Cond, len(a.Cmps))
	for i, c := range a.Cmps {
		cmp, err := buildCmp(c)
		if err != nil {
			return nil, err
		}
		cmps[i] = cmp
	}
	if len(cmps) == 1 {
		return cmps[0], nil
	}
	return program.And{Conds: cmps}, nil
}

func buildCmp(c *rawCmp) (program.Cond, error) {
	lhs, err := buildExpr(c.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := buildExpr(c.RHS)
	if err != nil {
		return nil, err
	}
	op, err := buildOp(c.Op)
	if err != nil {
		return nil, err
	}
	return program.Cmp{Op: op, LHS: lhs, RHS: rhs}, nil
}

func buildOp(tag string) (logic.StackOp, error) {
	switch tag {
	case "==":
		return logic.EQ, nil
	case "!=":
		return logic.NEQ, nil
	case "<=":
		return logic.LEQ, nil
	case ">=":
		return logic.GEQ, nil
	case "<":
		return logic.LT, nil
	case ">":
		return logic.GT, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", tag)
	}
}

var literalTags = map[string]string{
	"true":     "true",
	"false":    "false",
	"null":     "null",
	"min":      "min",
	"max":      "max",
	"self_tid": "self-tid",
	"some_tid": "some-tid",
	"unlocked": "unlocked",
}

func buildExpr(e *rawExpr) (program.Expr, error) {
	pos := program.Position{Filename: e.Pos.Filename, Line: e.Pos.Line, Column: e.Pos.Column, Offset: e.Pos.Offset}
	switch {
	case e.Field != nil:
		return program.Field{Base: program.Ident{Name: e.Field.Base, Position: pos}, FieldName: e.Field.Field, Position: pos}, nil
	case e.Literal != "":
		tag, ok := literalTags[e.Literal]
		if !ok {
			return nil, fmt.Errorf("%s: unknown literal %q", pos, e.Literal)
		}
		return program.Literal{Tag: tag, Position: pos}, nil
	case e.Ident != "":
		return program.Ident{Name: e.Ident, Position: pos}, nil
	default:
		return nil, fmt.Errorf("%s: empty expression alternative", pos)
	}
}
