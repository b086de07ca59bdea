// SPDX-License-Identifier: Apache-2.0

// Command krill-sub000 is a thin wrapper around internal/cli.Main, the same
// entry point cmd/krill-verify uses, kept at the module root so `go run .`
// works without naming the subcommand path.
package main

import (
	"os"

	"github.com/nyu-acsys/krill-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
