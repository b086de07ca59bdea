// Package cli implements the krill-verify command: parse a program source
// file, run the proof driver against it, and render a pass/fail banner. It
// is a separate package from cmd/krill-verify so that both the standalone
// binary and the repository's thin root main.go can call the same entry
// point without one main package importing another.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/driver"
	"github.com/nyu-acsys/krill-sub000/internal/flowgraph"
	"github.com/nyu-acsys/krill-sub000/internal/parser"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

var logger = commonlog.GetLogger("krill")

// Exit codes.
const (
	ExitSuccess          = 0
	ExitVerificationFail = 1
	ExitInputError       = 2
)

// Main runs the CLI over args (excluding the program name) and returns the
// process exit code. stderr/stdout are os.Stderr/os.Stdout; a separate
// out/errOut pair exists only so tests can capture output.
func Main(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("krill-verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	debug := fs.Bool("debug", false, "enable verbose driver logging")
	timer := fs.Bool("timer", false, "print wall-clock verification time")
	dumpFootprints := fs.String("dump-footprints", "", "write every write-statement's flow footprint to this path")
	if err := fs.Parse(args); err != nil {
		return ExitInputError
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: krill-verify [--debug] [--timer] [--dump-footprints <path>] <program-file>")
		return ExitInputError
	}
	path := fs.Arg(0)

	verbosity := 0
	if *debug {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
	logger.Debugf("verifying %s", path)

	mod, err := parser.ParseFile(path)
	if err != nil {
		fmt.Fprintln(errOut, diag.Failure(path))
		return ExitInputError
	}

	var dump strings.Builder
	opts := driver.Options{
		Config:        config.NewDefaultListConfig(),
		Factory:       sym.NewFactory(),
		Macros:        mod.Macros,
		MacroStrategy: driver.Lazy,
		Debug:         *debug,
	}
	if *dumpFootprints != "" {
		opts.FootprintSink = func(function string, w program.Write, g *flowgraph.Graph) {
			fmt.Fprintf(&dump, "== %s: %s.%s ==\n%s\n", function, w.Base, w.Field, g)
		}
	}

	start := time.Now()
	verifyErr := driver.Run(mod.Functions, opts)
	elapsed := time.Since(start)

	if *timer {
		fmt.Fprintf(out, "verification took %s\n", elapsed)
	}

	if *dumpFootprints != "" {
		if err := os.WriteFile(*dumpFootprints, []byte(dump.String()), 0o644); err != nil {
			fmt.Fprintf(errOut, "failed to write footprint dump: %s\n", err)
		}
	}

	if verifyErr != nil {
		reportVerifyError(errOut, verifyErr)
		fmt.Fprintln(errOut, diag.Failure(path))
		return ExitVerificationFail
	}

	fmt.Fprintln(out, diag.Success(path))
	return ExitSuccess
}

// reportVerifyError renders every per-function failure aggregated by
// driver.Run, using diag.Reporter's colorised format for the ones that
// unwrap to a *diag.Error and falling back to its plain message otherwise.
func reportVerifyError(errOut io.Writer, err error) {
	for _, fnErr := range flattenErrors(err) {
		var de *diag.Error
		if asDiagError(fnErr, &de) {
			fmt.Fprint(errOut, diag.NewReporter(de.Function).Format(de))
			continue
		}
		fmt.Fprintln(errOut, fnErr)
	}
}

type multiErrorLike interface {
	WrappedErrors() []error
}

func flattenErrors(err error) []error {
	if m, ok := err.(multiErrorLike); ok {
		return m.WrappedErrors()
	}
	return []error{err}
}

func asDiagError(err error, target **diag.Error) bool {
	for u := err; u != nil; u = unwrap(u) {
		if de, ok := u.(*diag.Error); ok {
			*target = de
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
