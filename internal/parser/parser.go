// Package parser turns object-language source into a program.Module: a
// participle/v2 grammar produces a raw parse tree, which Build then
// lowers into the driver's AST.
package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"github.com/nyu-acsys/krill-sub000/internal/program"
)

var objectParser = buildParser()

func buildParser() *participle.Parser[rawModule] {
	p, err := participle.Build[rawModule](
		participle.Lexer(ObjectLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(3),
	)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseFile reads path and returns the lowered module, reporting a
// caret-style syntax error on failure.
func ParseFile(path string) (program.Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return program.Module{}, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseString(path, string(source))
}

// ParseString parses source (named path for diagnostics) into a module.
func ParseString(path, source string) (program.Module, error) {
	raw, err := objectParser.ParseString(path, source)
	if err != nil {
		reportParseError(source, err)
		return program.Module{}, err
	}
	return Build(raw)
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("-> %s\n", pe.Message())
}
