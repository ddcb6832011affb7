package main

import "golang.org/x/sync/errgroup"

// Pipeline wires every stage together end to end: read both input files,
// parse the user source against the loaded syntax description, fold
// constants, lower to IR, optimise, assign guard identities, emit every
// procedure plus the fixed runtime helpers, and link the result into a
// PE32+ image. Each stage returns *CompileError so the CLI can map it to
// the right process exit code (spec.md §7) without inspecting error
// strings.

// CompileResult is everything the CLI needs once a compile succeeds: the
// finished image bytes. The output path is chosen by the CLI
// (outputPathFor in cli.go).
type CompileResult struct {
	Image []byte
}

// CompileFile runs the full pipeline against one user source file, using
// the syntax description loaded from syntaxDescPath (or the built-in
// default when that path is empty).
func CompileFile(syntaxDescPath, userSourcePath string, optLevel int) (*CompileResult, []*CompileError) {
	db := DefaultSyntaxDB()
	if syntaxDescPath != "" {
		descFile, err := ReadSourceFile(syntaxDescPath)
		if err != nil {
			return nil, []*CompileError{err.(*CompileError)}
		}
		db = LoadSyntaxDB(descFile.Text)
	}

	src, err := ReadSourceFile(userSourcePath)
	if err != nil {
		return nil, []*CompileError{err.(*CompileError)}
	}

	prog, errs := Parse(userSourcePath, src.Text, db)
	if len(errs) > 0 {
		return nil, errs
	}

	FoldProgram(prog)

	irProg := BuildIR(prog)
	if len(irProg.Errors) > 0 {
		return nil, irProg.Errors
	}
	OptimizeProgram(irProg, optLevel)

	seed := StableSeed(src.Text)
	guardKeys := AssignGuardIdentities(prog, seed)

	pool := NewStringPool()
	link := LinkInput{Regions: prog.Regions, Pool: pool}

	procBufs, cgErr := emitProceduresConcurrently(irProg, pool, guardKeys)
	if cgErr != nil {
		return nil, []*CompileError{cgErr}
	}
	link.Procs = append(link.Procs, procBufs...)

	for _, nb := range []struct {
		label string
		build func() *CodeBuffer
	}{
		{rtPrintCstr, buildPrintCstrHelper},
		{rtPrintI64, buildPrintI64Helper},
		{rtEntry, buildEntryTrampoline},
	} {
		buf := nb.build()
		if err := buf.ResolveFixups(); err != nil {
			return nil, []*CompileError{internalError("runtime helper %s: %v", nb.label, err)}
		}
		link.Procs = append(link.Procs, NamedBuffer{Label: nb.label, Buf: buf})
	}

	image, linkErr := Link(link)
	if linkErr != nil {
		if ce, ok := linkErr.(*CompileError); ok {
			return nil, []*CompileError{ce}
		}
		return nil, []*CompileError{internalError("linking: %v", linkErr)}
	}

	return &CompileResult{Image: image}, nil
}

// emitProceduresConcurrently partitions per-procedure code emission
// across worker goroutines, one per function in irProg, matching spec.md
// §5's optional point of parallelism: each worker writes to its own
// isolated CodeBuffer and fixup list, and the caller merges the results
// back in the fixed declaration order once every worker has finished —
// the "deterministic merge barrier" spec.md §5 requires. The only state
// shared between workers is the string pool, which serialises its own
// Intern calls, and the read-only guardKeys/region maps computed by the
// single-threaded Identity Service pass that already completed above.
func emitProceduresConcurrently(irProg *IRProgram, pool *StringPool, guardKeys map[uint32]StableKey) ([]NamedBuffer, *CompileError) {
	bufs := make([]*CodeBuffer, len(irProg.Funcs))

	var g errgroup.Group
	for i, fn := range irProg.Funcs {
		i, fn := i, fn
		g.Go(func() error {
			buf, err := EmitFunction(fn, irProg.Regions, pool, guardKeys)
			if err != nil {
				return internalError("emitting %s: %v", fn.Name, err)
			}
			bufs[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ce, ok := err.(*CompileError); ok {
			return nil, ce
		}
		return nil, internalError("emitting procedures: %v", err)
	}

	out := make([]NamedBuffer, len(irProg.Funcs))
	for i, fn := range irProg.Funcs {
		out[i] = NamedBuffer{Label: procLabel(fn.Name), Buf: bufs[i]}
	}
	return out, nil
}
