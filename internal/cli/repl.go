package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/driver"
	"github.com/nyu-acsys/krill-sub000/internal/parser"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// replState holds the one module a REPL session has loaded, if any.
type replState struct {
	path string
	mod  program.Module
}

// Repl runs the interactive loop over in/out: a tiny line-oriented shell
// over the same parser and driver the krill-verify command uses, for
// poking at one interface function at a time instead of a whole module.
func Repl(in io.Reader, out io.Writer) int {
	fmt.Fprintln(out, "krill-repl -- type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(in)
	var state replState

	for {
		fmt.Fprint(out, "krill> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return ExitSuccess
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return ExitSuccess
		case "help":
			printReplHelp(out)
		case "load":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: load <path>")
				continue
			}
			replLoad(out, &state, fields[1])
		case "list":
			replList(out, state)
		case "run":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: run <function>")
				continue
			}
			replRun(out, state, fields[1])
		default:
			fmt.Fprintf(out, "unknown command %q (try 'help')\n", fields[0])
		}
	}
}

func printReplHelp(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  load <path>      parse a program source file")
	fmt.Fprintln(out, "  list             list the loaded module's functions and macros")
	fmt.Fprintln(out, "  run <function>   verify a single interface function in isolation")
	fmt.Fprintln(out, "  quit             exit")
}

func replLoad(out io.Writer, state *replState, path string) {
	mod, err := parser.ParseFile(path)
	if err != nil {
		fmt.Fprintln(out, diag.Failure(path))
		return
	}
	state.path = path
	state.mod = mod
	fmt.Fprintf(out, "loaded %s: %d function(s), %d macro(s)\n", path, len(mod.Functions), len(mod.Macros))
}

func replList(out io.Writer, state replState) {
	if state.path == "" {
		fmt.Fprintln(out, "no module loaded, try 'load <path>'")
		return
	}
	for _, fn := range state.mod.Functions {
		fmt.Fprintf(out, "  %s provides %s\n", fn.Name, fn.Spec)
	}
	for name := range state.mod.Macros {
		fmt.Fprintf(out, "  macro %s\n", name)
	}
}

// replRun verifies a single named function, threading it through the
// driver on its own. It never sees interference from the module's other
// functions: a deliberately narrower check than krill-verify's full sweep,
// useful for iterating on one function's proof without waiting on the rest
// of the module to converge.
func replRun(out io.Writer, state replState, name string) {
	if state.path == "" {
		fmt.Fprintln(out, "no module loaded, try 'load <path>'")
		return
	}
	var target *program.Function
	for i := range state.mod.Functions {
		if state.mod.Functions[i].Name == name {
			target = &state.mod.Functions[i]
			break
		}
	}
	if target == nil {
		fmt.Fprintf(out, "no such function %q\n", name)
		return
	}

	opts := driver.Options{
		Config:        config.NewDefaultListConfig(),
		Factory:       sym.NewFactory(),
		Macros:        state.mod.Macros,
		MacroStrategy: driver.Eager,
	}
	if err := driver.Run([]program.Function{*target}, opts); err != nil {
		fmt.Fprintln(out, err)
		fmt.Fprintln(out, diag.Failure(name))
		return
	}
	fmt.Fprintln(out, diag.Success(name))
}
