package main

// Prologue/epilogue and parameter homing. The prologue is the classic
// `push rbp; mov rbp, rsp; sub rsp, frame_size` form; the frame size
// comes from FramePlan so every later [rsp+off] access in this function
// already accounts for the locals and outgoing-args regions.

func (cg *CodeGen) emitPrologue() {
	cg.buf.EmitBytes(0x55)             // push rbp
	cg.movRegReg(RBP, RSP)             // mov rbp, rsp
	if cg.frame.TotalFrameAligned > 0 {
		// sub rsp, imm32 : REX.W 81 /5
		cg.buf.EmitBytes(rexW(0, RSP), 0x81, modrmReg(3, 5, RSP))
		cg.buf.Emit32(cg.frame.TotalFrameAligned)
	}
}

func (cg *CodeGen) emitEpilogueFallthrough() {
	// a well-formed procedure always ends in an explicit RET lowered
	// from ReturnStmt; this is a safety net for a body that somehow
	// falls off the end without one (should not happen post-BuildIR,
	// which synthesises an implicit `return 0;`).
	cg.emitLeaveRet()
}

func (cg *CodeGen) emitLeaveRet() {
	if cg.frame.TotalFrameAligned > 0 {
		cg.movRegReg(RSP, RBP) // mov rsp, rbp
	}
	cg.buf.EmitBytes(0x5D) // pop rbp
	cg.buf.EmitBytes(0xC3) // ret
}

// emitParamHoming stores each incoming register argument (RCX, RDX, R8,
// R9, in that order) into its parameter temp's stack slot, so the rest
// of the function can treat parameters exactly like any other temp.
func (cg *CodeGen) emitParamHoming() {
	for i, temp := range cg.fn.ParamTemp {
		if i >= len(winArgRegs) {
			break // stack-passed parameters beyond the 4th: not reachable by this grammar's call sites
		}
		cg.storeTemp(temp, winArgRegs[i])
	}
}
