package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildIR(t *testing.T, src string) *IRProgram {
	t.Helper()
	prog := parseOK(t, src)
	FoldProgram(prog)
	return BuildIR(prog)
}

func TestBuildIRReturnLiteral(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			return 42;
		}
	`)
	require.Len(t, irProg.Funcs, 1)
	fn := irProg.Funcs[0]
	var sawConst, sawRet bool
	for _, inst := range fn.Insts {
		if inst.Op == OpConst && inst.Imm == 42 {
			sawConst = true
		}
		if inst.Op == OpRet {
			sawRet = true
		}
	}
	require.True(t, sawConst)
	require.True(t, sawRet)
}

func TestBuildIRImplicitReturnZero(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			let x = 1;
		}
	`)
	fn := irProg.Funcs[0]
	last := fn.Insts[len(fn.Insts)-1]
	require.Equal(t, OpRet, last.Op)
}

func TestBuildIRTrapWithCodeCarriesOperand(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			trap 9;
		}
	`)
	fn := irProg.Funcs[0]
	var trap Inst
	var found bool
	for _, inst := range fn.Insts {
		if inst.Op == OpTrap {
			trap = inst
			found = true
		}
	}
	require.True(t, found)
	require.NotEqual(t, noTemp, trap.A)
}

func TestBuildIRBareTrapHasNoOperand(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			trap;
		}
	`)
	fn := irProg.Funcs[0]
	for _, inst := range fn.Insts {
		if inst.Op == OpTrap {
			require.Equal(t, noTemp, inst.A)
			return
		}
	}
	t.Fatal("no OpTrap instruction emitted")
}

func TestBuildIRMMIOCarriesNodeID(t *testing.T) {
	irProg := buildIR(t, `
		mmio region R from 0 size 16;
		proc main() {
			read32 R, 0 into x;
			return x;
		}
	`)
	fn := irProg.Funcs[0]
	for _, inst := range fn.Insts {
		if inst.Op == OpMMIORead {
			require.NotZero(t, inst.NodeID)
			require.Equal(t, "R", inst.Str)
			return
		}
	}
	t.Fatal("no OpMMIORead instruction emitted")
}

func TestBuildIRPrintStringVsPrintInt(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			print("hi");
			print(1 + 1);
			return 0;
		}
	`)
	fn := irProg.Funcs[0]
	var sawStr, sawInt bool
	for _, inst := range fn.Insts {
		if inst.Op == OpPrintStr {
			sawStr = true
			require.Equal(t, "hi", fn.StrTable[inst.Imm])
		}
		if inst.Op == OpPrintInt {
			sawInt = true
		}
	}
	require.True(t, sawStr)
	require.True(t, sawInt)
}

func TestShortCircuitSingleNormalisationAtMergePoint(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			let x = 5 || 3;
			return x;
		}
	`)
	fn := irProg.Funcs[0]
	// the result temp is set by two OpMoves (the lhs before the
	// short-circuit jump, the rhs on the fall-through path) and by one
	// OpCmpNE (the single merge-point normalisation to 0/1); a
	// double-normalising lowering would emit a second OpCmpNE/OpNot pair
	// on the early-exit path instead of reusing the same merge.
	var moveDst, cmpCount int
	resultTemp := -1
	for _, inst := range fn.Insts {
		if inst.Op == OpMove {
			resultTemp = inst.Dst
			moveDst++
		}
	}
	require.Equal(t, 2, moveDst)
	for _, inst := range fn.Insts {
		if inst.Op == OpCmpNE && inst.Dst == resultTemp {
			cmpCount++
		}
	}
	require.Equal(t, 1, cmpCount)
}

func TestBuildIRTernaryLowersToJumpAroundTrueArm(t *testing.T) {
	irProg := buildIR(t, `
		proc main(c) {
			let x = c ? 2 : 3;
			return x;
		}
	`)
	fn := irProg.Funcs[0]
	var sawJmpIfZero, sawJmp, sawLabel int
	var moveCount int
	for _, inst := range fn.Insts {
		switch inst.Op {
		case OpJmpIfZero:
			sawJmpIfZero++
		case OpJmp:
			sawJmp++
		case OpLabel:
			sawLabel++
		case OpMove:
			moveCount++
		}
	}
	require.Equal(t, 1, sawJmpIfZero)
	require.Equal(t, 1, sawJmp)
	require.Equal(t, 2, sawLabel) // false-arm label + end label
	require.Equal(t, 2, moveCount)
}

func TestBuildIRCallIntoSlotEmitsCallThenSlotStore(t *testing.T) {
	irProg := buildIR(t, `
		proc helper() {
			return 5;
		}
		proc main() {
			call helper() into slot 2;
			return 0;
		}
	`)
	var mainFn *IRFunction
	for _, fn := range irProg.Funcs {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)
	var callIdx, storeIdx = -1, -1
	for i, inst := range mainFn.Insts {
		if inst.Op == OpCall && inst.Str == "helper" {
			callIdx = i
		}
		if inst.Op == OpSlotStore {
			storeIdx = i
			require.EqualValues(t, 2, inst.Imm)
		}
	}
	require.NotEqual(t, -1, callIdx)
	require.NotEqual(t, -1, storeIdx)
	require.Less(t, callIdx, storeIdx)
}

func TestBuildIRRejectsCallWithMoreThanFourArguments(t *testing.T) {
	irProg := buildIR(t, `
		proc helper(a, b, c, d, e) {
			return a;
		}
		proc main() {
			let x = helper(1, 2, 3, 4, 5);
			return x;
		}
	`)
	require.NotEmpty(t, irProg.Errors)
	require.Contains(t, irProg.Errors[0].Error(), "helper")
}

func TestBuildIRRejectsCallIntoSlotWithMoreThanFourArguments(t *testing.T) {
	irProg := buildIR(t, `
		proc helper(a, b, c, d, e) {
			return a;
		}
		proc main() {
			call helper(1, 2, 3, 4, 5) into slot 0;
			return 0;
		}
	`)
	require.NotEmpty(t, irProg.Errors)
	require.Contains(t, irProg.Errors[0].Error(), "helper")
}
