package main

// Call-site sequencing: move arguments into RCX/RDX/R8/R9, reserve the
// shadow_and_align bytes the frame planner computes, CALL, then release
// the same shadow_and_align bytes. A call with more
// than four arguments is rejected as a semantic error during IR
// lowering (spec.md §7.3) — by the time a CALL instruction reaches
// codegen it is guaranteed to have at most four ArgTemps, so no
// outgoing stack-argument area is ever needed here.

func (cg *CodeGen) emitCall(inst Inst) {
	// The prologue's push rbp plus its 16-aligned sub rsp leave RSP at
	// 0 mod 16 throughout the body.
	cs := PlanCallSite(0, 0)

	// Arguments are read from their temp slots before RSP moves, since
	// loadTemp addresses slots relative to the body's RSP.
	for i, argTemp := range inst.ArgTemps {
		cg.loadTemp(argTemp, winArgRegs[i])
	}

	// sub rsp, shadow_and_align
	cg.buf.EmitBytes(rexW(0, RSP), 0x81, modrmReg(3, 5, RSP))
	cg.buf.Emit32(cs.ShadowAndAlign)

	cg.buf.EmitBytes(0xE8) // call rel32
	cg.buf.EmitCallFixup(procLabel(inst.Str))

	// add rsp, shadow_and_align
	cg.buf.EmitBytes(rexW(0, RSP), 0x81, modrmReg(3, 0, RSP))
	cg.buf.Emit32(cs.ShadowAndAlign)

	if inst.Dst != noTemp {
		cg.storeTemp(inst.Dst, RAX)
	}
}

func (cg *CodeGen) emitReturn(inst Inst) {
	if inst.A != noTemp {
		cg.loadTemp(inst.A, RAX)
	} else {
		cg.movImm64(RAX, 0)
	}
	cg.emitLeaveRet()
}

// emitSlotStore stores a call-into-slot result (already in the temp
// named by inst.A) into g$slots[inst.Imm]: lea rcx, [rip+g$slots] then
// mov [rcx+slot*8], rax, matching the reference emitter's CallIntoSlot
// codegen exactly.
func (cg *CodeGen) emitSlotStore(inst Inst) {
	cg.loadTemp(inst.A, RAX)
	cg.buf.EmitLeaRip(RCX, slotsLabel)
	off8 := byte(inst.Imm * 8)
	cg.buf.EmitBytes(0x48, 0x89, 0x41, off8) // mov [rcx+off8], rax
}
