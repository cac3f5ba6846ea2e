// Package main is the entry point for the skiff CLI, a thin wrapper
// over the skiff library for poking at service containers from a
// shell. Test suites use the library directly.
package main

import (
	"github.com/mmr-tortoise/skiff/internal/cli"
)

// version is set by the release build via ldflags.
var version = "dev"

func main() {
	cli.Version = version
	cli.Execute(cli.NewRootCommand())
}
