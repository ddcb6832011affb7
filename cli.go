package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/ranec/internal/engine"
)

// NewRootCommand builds the compiler's single cobra command: two
// positional arguments (syntax description path, user source path) and
// the --opt-level/--out-prefix flags spec.md §6 names. There are no
// subcommands — this is a single-shot batch compiler, not an
// interactive build tool.
func NewRootCommand(cfg Config) *cobra.Command {
	var optLevel int
	var outPrefix string

	cmd := &cobra.Command{
		Use:          "ranec <syntax_description_path> <user_source_path>",
		Short:        fmt.Sprintf("ranec compiles to a native %s executable", engine.TargetPlatform),
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args[0], args[1], optLevel, outPrefix)
		},
	}

	cmd.Flags().IntVar(&optLevel, "opt-level", cfg.OptLevel, "optimisation level (0 disables the optimiser)")
	cmd.Flags().StringVar(&outPrefix, "out-prefix", cfg.OutPrefix, "prefix prepended to the output executable's path")
	return cmd
}

// runCompile drives one compile and writes the resulting image, or
// returns the first CompileError the pipeline produced. The CLI layer's
// only job beyond that is picking the output file name and the process
// exit code (see main.go).
func runCompile(syntaxDescPath, userSourcePath string, optLevel int, outPrefix string) error {
	result, errs := CompileFile(syntaxDescPath, userSourcePath, optLevel)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return errs[0]
	}

	outPath := outputPathFor(userSourcePath, outPrefix)
	if err := os.WriteFile(outPath, result.Image, 0o755); err != nil {
		return ioError("writing %s: %v", outPath, err)
	}
	logf("wrote %s (%d bytes)\n", outPath, len(result.Image))
	return nil
}

// outputPathFor derives the executable's name from the user source
// file's base name with its extension replaced by .exe, with outPrefix
// (if non-empty) prepended to the directory component.
func outputPathFor(userSourcePath, outPrefix string) string {
	base := filepath.Base(userSourcePath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base += ".exe"
	if outPrefix == "" {
		return base
	}
	return filepath.Join(outPrefix, base)
}
