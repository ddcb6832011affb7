package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// countDataRipFixup counts ExternDataRipRel32 fixups targeting a label.
func countDataRipFixup(buf *CodeBuffer, label string) int {
	n := 0
	for _, fx := range buf.ExternFixups {
		if fx.Kind == ExternDataRipRel32 && fx.Target == label {
			n++
		}
	}
	return n
}

// TestEntryTrampolineCachesStdoutHandleOnce confirms the entry trampoline
// calls GetStdHandle exactly once and stores its result at g$stdout
// (spec.md §4.3's caching scheme), rather than every print site asking
// for the handle again.
func TestEntryTrampolineCachesStdoutHandleOnce(t *testing.T) {
	buf := buildEntryTrampoline()
	require.Equal(t, 1, countDataRipFixup(buf, "iat$GetStdHandle"))
	require.Equal(t, 1, countDataRipFixup(buf, stdoutLabel))
}

// TestPrintCstrHelperReadsCachedHandleWithoutCallingGetStdHandle confirms
// rt$print_cstr never imports GetStdHandle itself — it only reads the
// cached g$stdout global the entry trampoline populated once.
func TestPrintCstrHelperReadsCachedHandleWithoutCallingGetStdHandle(t *testing.T) {
	buf := buildPrintCstrHelper()
	require.Equal(t, 0, countDataRipFixup(buf, "iat$GetStdHandle"))
	require.Equal(t, 1, countDataRipFixup(buf, stdoutLabel))
	require.Equal(t, 1, countDataRipFixup(buf, "iat$WriteFile"))
}
