// Command acoustic1d runs the adaptive-step linear acoustics solver and writes
// its frames.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "acoustic1d:", err)
		os.Exit(exitCode(err))
	}
}

// errExhausted marks a run that stopped on its iteration budget.
var errExhausted = errors.New("iteration budget exhausted before t_final")

func exitCode(err error) int {
	if errors.Is(err, errExhausted) {
		return 2
	}
	return 1
}
