package main

import "fmt"

// Windows x64 ABI frame planning, ported from the reference project's
// RSP-only frame planner: every call site reserves a mandatory 32-byte
// shadow region and RSP must land 16-byte aligned at the CALL
// instruction itself.
const shadowSpaceBytes = 32

// MemWidth is the operand width of an [rsp+off] reference.
type MemWidth uint8

const (
	Width8 MemWidth = iota
	Width16
	Width32
	Width64
)

func (w MemWidth) prefix() string {
	switch w {
	case Width8:
		return "byte "
	case Width16:
		return "word "
	case Width32:
		return "dword "
	default:
		return "qword "
	}
}

func rspSlot(w MemWidth, offBytes uint32) string {
	if offBytes == 0 {
		return w.prefix() + "[rsp]"
	}
	return fmt.Sprintf("%s[rsp+%d]", w.prefix(), offBytes)
}

func alignUp(x, a uint32) uint32 {
	return (x + (a - 1)) &^ (a - 1)
}

// FramePlan lays out a procedure's stack frame as two RSP-relative
// regions: locals/spills, then the outgoing-args area sized for the
// largest call this procedure makes. Both regions and the total are
// 16-byte aligned.
type FramePlan struct {
	LocalsBytes        uint32
	OutgoingMaxBytes   uint32
	TotalFrameAligned  uint32
	LocalsBase         uint32
	OutgoingBase       uint32
}

// BuildFramePlan computes a FramePlan for a procedure needing `locals`
// bytes of local/spill storage and at most `outgoingMax` bytes of
// stack-passed arguments for any single call within it.
func BuildFramePlan(locals, outgoingMax uint32) FramePlan {
	fp := FramePlan{}
	fp.LocalsBytes = alignUp(locals, 16)
	fp.OutgoingMaxBytes = alignUp(outgoingMax, 16)
	fp.LocalsBase = 0
	fp.OutgoingBase = fp.LocalsBytes
	fp.TotalFrameAligned = alignUp(fp.LocalsBytes+fp.OutgoingMaxBytes, 16)
	return fp
}

// Local returns the [rsp+off] operand text for a local slot at localOff
// within the locals region.
func (fp FramePlan) Local(w MemWidth, localOff uint32) string {
	return rspSlot(w, fp.LocalsBase+localOff)
}

// Outgoing returns the [rsp+off] operand text for an outgoing-argument
// slot at outOff within the outgoing region.
func (fp FramePlan) Outgoing(w MemWidth, outOff uint32) string {
	return rspSlot(w, fp.OutgoingBase+outOff)
}

// CallSite describes the bytes an individual call site must reserve
// around the CALL instruction: the mandatory shadow space, any
// stack-passed argument bytes (beyond RCX/RDX/R8/R9), and whatever extra
// 8 bytes keeps RSP 16-aligned at the CALL itself.
type CallSite struct {
	ShadowAndAlign   uint32
	AlignFix         uint32
	StackArgsRounded uint32
}

// typicalRspMod16AfterRspOnlyProlog holds for any procedure whose only
// stack adjustment is the prolog's `sub rsp, frame_size_aligned` with a
// 16-aligned frame_size: entry RSP is 8 mod 16 (the return address CALL
// pushed), and subtracting a 16-aligned amount leaves it 8 mod 16.
const typicalRspMod16AfterRspOnlyProlog = 8

// PlanCallSite computes the shadow_and_align reservation for a call
// issued with currentRspMod16 (RSP's alignment residue right before the
// call sequence) and stackArgsBytes of stack-passed arguments.
func PlanCallSite(currentRspMod16, stackArgsBytes uint32) CallSite {
	cs := CallSite{}
	cs.StackArgsRounded = alignUp(stackArgsBytes, 8)
	base := shadowSpaceBytes + cs.StackArgsRounded
	baseMod := base & 15

	ok := func(fix uint32) bool {
		return ((baseMod + (fix & 15)) & 15) == (currentRspMod16 & 15)
	}

	switch {
	case ok(0):
		cs.AlignFix = 0
	case ok(8):
		cs.AlignFix = 8
	default:
		cs.AlignFix = ((currentRspMod16 & 15) + 16 - baseMod) & 15
	}
	cs.ShadowAndAlign = base + cs.AlignFix
	return cs
}

// PlanCallSiteTypical computes the shadow_and_align reservation assuming
// the stable mod16=8 that holds for a plain RSP-only prolog with no
// extra pushes.
func PlanCallSiteTypical(stackArgsBytes uint32) CallSite {
	return PlanCallSite(typicalRspMod16AfterRspOnlyProlog, stackArgsBytes)
}
