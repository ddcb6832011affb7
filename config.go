package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
)

// Config holds the compiler process's own ambient settings: nothing
// here is consulted by the emitted PE binary at runtime (spec.md §6
// describes that binary's environment as "none consulted"). Defaults can
// be overridden by the environment so the CLI flags below win only when
// explicitly passed.
type Config struct {
	Verbose  bool
	OptLevel int
	OutPrefix string
}

// DefaultConfig reads RANEC_VERBOSE and RANEC_OPT_LEVEL, matching the
// teacher's pattern of sourcing ambient defaults from env before flags
// are parsed.
func DefaultConfig() Config {
	return Config{
		Verbose:   env.Bool("RANEC_VERBOSE"),
		OptLevel:  env.Int("RANEC_OPT_LEVEL", 1),
		OutPrefix: env.Str("RANEC_OUT_PREFIX"),
	}
}

// VerboseMode is the package-level gate the teacher's logging helpers
// check before writing to stderr. It is set once from Config at startup.
var VerboseMode = false

func logf(format string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
