package parser

import "github.com/alecthomas/participle/v2/lexer"

// The types below are the raw participle parse tree for the object
// language: one interface module per file, a handful of non-recursive
// macros, and a sequence of interface functions each proving one
// linearizability specification. Pos/EndPos are populated automatically
// by participle when a struct carries fields of those exact names and
// types.

type rawModule struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string     `"module" @Ident "{"`
	Decls  []*rawDecl `@@*`
	Close  string     `"}"`
}

// rawDecl is a single top-level declaration: a module body is a flat
// sequence of macro and function declarations in any order.
type rawDecl struct {
	Macro    *rawMacro    `  @@`
	Function *rawFunction `| @@`
}

type rawMacro struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string    `"macro" @Ident "(" ")" "{"`
	Body   *rawBlock `@@ "}"`
}

type rawFunction struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Name     string    `"fun" @Ident "("`
	KeyArg   string    `@Ident ":" "data" ")"`
	Spec     string    `"provides" @("contains" | "insert" | "delete") "{"`
	Body     *rawBlock `@@ "}"`
}

type rawBlock struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Stmts  []*rawStmt `@@*`
}

// rawStmt is the statement alternation. Order matters where two
// alternatives share a prefix: Write (`base.field := ...`) is tried
// before Assign (`var := ...`) so the lookahead can tell them apart by
// whether a "." follows the first identifier.
type rawStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position

	Skip    *rawSkip    `  @@`
	Scope   *rawScope   `| @@`
	Atomic  *rawAtomic  `| @@`
	Choice  *rawChoice  `| @@`
	Loop    *rawLoop    `| @@`
	Break   *rawBreak   `| @@`
	Return  *rawReturn  `| @@`
	Fail    *rawFail    `| @@`
	Call    *rawCall    `| @@`
	Malloc  *rawMalloc  `| @@`
	Assume  *rawAssume  `| @@`
	Acquire *rawAcquire `| @@`
	Release *rawRelease `| @@`
	Write   *rawWrite   `| @@`
	Assign  *rawAssign  `| @@`
}

type rawSkip struct {
	Keyword string `"skip" ";"`
}

type rawScope struct {
	Locals []string  `"scope" "(" [ @Ident { "," @Ident } ] ")" "{"`
	Body   *rawBlock `@@ "}"`
}

type rawAtomic struct {
	Body *rawBlock `"atomic" "{" @@ "}"`
}

type rawChoice struct {
	Branches []*rawBlock `"choice" "{" ( "branch" "{" @@ "}" )* "}"`
}

type rawLoop struct {
	Body *rawBlock `"loop" "{" @@ "}"`
}

type rawBreak struct {
	Keyword string `"break" ";"`
}

type rawReturn struct {
	Value *rawExpr `"return" @@ ";"`
}

type rawFail struct {
	Keyword string `"fail" ";"`
}

type rawCall struct {
	Macro string `"call" @Ident ";"`
}

type rawMalloc struct {
	Var           string   `@Ident ":=" "malloc" "(" "ptr" "("`
	PointerFields []string `[ @Ident { "," @Ident } ] ")" "data" "("`
	DataFields    []string `[ @Ident { "," @Ident } ] ")" ")" ";"`
}

type rawAssume struct {
	Cond *rawCond `"assume" "(" @@ ")" ";"`
}

type rawAcquire struct {
	Base  string `"acquire" @Ident "."`
	Field string `@Ident ";"`
}

type rawRelease struct {
	Base  string `"release" @Ident "."`
	Field string `@Ident ";"`
}

type rawWrite struct {
	Base  string   `@Ident "."`
	Field string   `@Ident ":="`
	Value *rawExpr `@@ ";"`
}

type rawAssign struct {
	Var   string   `@Ident ":="`
	Value *rawExpr `@@ ";"`
}

// rawCond is a disjunction of conjunctions of comparisons: at most one
// level of "||", matching what the post-image for Assume knows how to
// split into parallel paths.
type rawCond struct {
	Ands []*rawAnd `@@ ( "||" @@ )*`
}

type rawAnd struct {
	Cmps []*rawCmp `@@ ( "&&" @@ )*`
}

type rawCmp struct {
	LHS *rawExpr `@@`
	Op  string   `@("==" | "!=" | "<=" | ">=" | "<" | ">")`
	RHS *rawExpr `@@`
}

// rawExpr is a variable, a one-level field dereference, or a nullary
// sentinel literal.
type rawExpr struct {
	Pos     lexer.Position
	Field   *rawFieldExpr `  @@`
	Literal string        `| @("true" | "false" | "null" | "min" | "max" | "self_tid" | "some_tid" | "unlocked")`
	Ident   string        `| @Ident`
}

type rawFieldExpr struct {
	Base  string `@Ident "."`
	Field string `@Ident`
}
