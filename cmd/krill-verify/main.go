// Command krill-verify proves linearizability specifications for the
// interface functions declared in a program source file.
package main

import (
	"os"

	"github.com/nyu-acsys/krill-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
