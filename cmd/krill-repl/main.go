// Command krill-repl is a line-oriented shell for loading a program source
// file and verifying one interface function at a time.
package main

import (
	"os"

	"github.com/nyu-acsys/krill-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Repl(os.Stdin, os.Stdout))
}
