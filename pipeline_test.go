package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEmitProceduresConcurrentlyPreservesDeclarationOrder asserts the
// worker-goroutine merge barrier in emitProceduresConcurrently hands
// back procedures in the same order they were declared, regardless of
// which goroutine happens to finish first.
func TestEmitProceduresConcurrentlyPreservesDeclarationOrder(t *testing.T) {
	irProg := buildIR(t, `
		proc a() { return 1; }
		proc b() { return 2; }
		proc c() { return 3; }
		proc main() { return 0; }
	`)
	pool := NewStringPool()
	bufs, cgErr := emitProceduresConcurrently(irProg, pool, nil)
	require.Nil(t, cgErr)
	require.Len(t, bufs, 4)

	var names []string
	for _, nb := range bufs {
		names = append(names, nb.Label)
	}
	require.Equal(t, []string{
		procLabel("a"), procLabel("b"), procLabel("c"), procLabel("main"),
	}, names)
}

// TestEmitProceduresConcurrentlySharesOneInternedStringAcrossWorkers
// confirms two procedures printing the same literal from different
// goroutines still collapse to a single StringPool entry.
func TestEmitProceduresConcurrentlySharesOneInternedStringAcrossWorkers(t *testing.T) {
	irProg := buildIR(t, `
		proc a() { print("shared"); return 0; }
		proc b() { print("shared"); return 0; }
	`)
	pool := NewStringPool()
	_, cgErr := emitProceduresConcurrently(irProg, pool, nil)
	require.Nil(t, cgErr)
	require.Len(t, pool.entries, 1)
}
