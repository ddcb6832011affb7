package main

import (
	"fmt"
	"os"
)

// main wires Config, the cobra root command, and the process exit code
// contract spec.md §7 defines: 0 on success, 1 on a compile-time error
// (lexical, semantic, internal), 2 on an argument or I/O error.
func main() {
	cfg := DefaultConfig()
	VerboseMode = cfg.Verbose

	root := NewRootCommand(cfg)
	root.SilenceErrors = true
	err := root.Execute()
	if err == nil {
		os.Exit(0)
	}

	if ce, ok := err.(*CompileError); ok {
		// runCompile already printed every CompileError it collected.
		os.Exit(ce.ExitCode())
	}
	// cobra argument-parsing errors (wrong arg count, unknown flag) are
	// the same class of failure as a bad path: the user's invocation,
	// not the source program, is at fault.
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
