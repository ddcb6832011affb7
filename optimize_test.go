package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeepholeCoalesceRemovesMoveToSelf(t *testing.T) {
	fn := &IRFunction{Insts: []Inst{
		{Op: OpMove, Dst: 0, A: 0, B: noTemp},
	}}
	pass := &peepholeCoalesce{}
	changed := pass.Run(fn)
	require.True(t, changed)
	require.Equal(t, noTemp, fn.Insts[0].Dst)
}

func TestPeepholeCoalesceForwardsSingleDefMoveSource(t *testing.T) {
	fn := &IRFunction{Insts: []Inst{
		{Op: OpConst, Dst: 0, A: noTemp, B: noTemp, Imm: 7, HasImm: true},
		{Op: OpMove, Dst: 1, A: 0, B: noTemp},
		{Op: OpRet, Dst: noTemp, A: 1, B: noTemp},
	}}
	pass := &peepholeCoalesce{}
	changed := pass.Run(fn)
	require.True(t, changed)
	require.Equal(t, 0, fn.Insts[2].A)
}

func TestDeadCodeEliminationRemovesUnusedPureValue(t *testing.T) {
	fn := &IRFunction{Insts: []Inst{
		{Op: OpConst, Dst: 0, A: noTemp, B: noTemp, Imm: 1, HasImm: true}, // unused
		{Op: OpConst, Dst: 1, A: noTemp, B: noTemp, Imm: 2, HasImm: true},
		{Op: OpRet, Dst: noTemp, A: 1, B: noTemp},
	}}
	pass := &deadCodeElimination{}
	changed := pass.Run(fn)
	require.True(t, changed)
	require.Len(t, fn.Insts, 2)
}

func TestDeadCodeEliminationKeepsSideEffectingInstructions(t *testing.T) {
	fn := &IRFunction{Insts: []Inst{
		{Op: OpConst, Dst: 0, A: noTemp, B: noTemp, Imm: 1, HasImm: true},
		{Op: OpPrintInt, Dst: noTemp, A: 0, B: noTemp},
	}}
	pass := &deadCodeElimination{}
	pass.Run(fn)
	require.Len(t, fn.Insts, 2)
}

func TestDeadCodeEliminationKeepsSlotStoreDespiteNoDestination(t *testing.T) {
	// OpSlotStore has Dst == noTemp (it's a pure store, not a value
	// producer) — without hasSideEffect flagging it, dead-code
	// elimination would treat it as an unused pure value and delete every
	// call-into-slot store.
	fn := &IRFunction{Insts: []Inst{
		{Op: OpConst, Dst: 0, A: noTemp, B: noTemp, Imm: 1, HasImm: true},
		{Op: OpSlotStore, Dst: noTemp, A: 0, B: noTemp, Imm: 2, HasImm: true},
	}}
	pass := &deadCodeElimination{}
	pass.Run(fn)
	require.Len(t, fn.Insts, 2)
}

func TestOptimizeProgramLevelZeroIsANoOp(t *testing.T) {
	irProg := &IRProgram{Funcs: []*IRFunction{{Insts: []Inst{
		{Op: OpMove, Dst: 0, A: 0, B: noTemp},
	}}}}
	OptimizeProgram(irProg, 0)
	require.Len(t, irProg.Funcs[0].Insts, 1)
	require.Equal(t, 0, irProg.Funcs[0].Insts[0].Dst)
}

func TestOptimizeProgramRunsToFixedPoint(t *testing.T) {
	irProg := buildIR(t, `
		proc main() {
			let x = 1;
			let y = x;
			return y;
		}
	`)
	before := len(irProg.Funcs[0].Insts)
	OptimizeProgram(irProg, 1)
	after := len(irProg.Funcs[0].Insts)
	require.LessOrEqual(t, after, before)
}
