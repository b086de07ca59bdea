package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ObjectLexer tokenises the object language: identifiers double as
// keywords, leaving keyword recognition to the grammar's literal
// terminals rather than a separate keyword table.
var ObjectLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Keywords and identifiers (order matters: before punctuation)
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Operators (longest match first)
		{"Operator", `(:=|==|!=|<=|>=|\|\||&&|[<>])`, nil},

		// Punctuation
		{"Punctuation", `[.,:;(){}<>]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
