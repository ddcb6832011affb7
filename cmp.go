package main

// Comparisons lower to cmp + setcc + movzx, spec.md §4.3's prescribed
// sequence: compare the two operands, materialise the flag into AL via
// the matching SETcc, then zero-extend AL into RAX so the result is a
// normal 0/1 integer usable anywhere another value would be.

// emitCmpSetcc emits `setcc al; movzx rax, al` for the given SETcc
// opcode (second byte of the two-byte 0F 9x form).
func (cg *CodeGen) emitCmpSetcc(setccOp byte) {
	// cmp rax, rcx : REX.W 39 /r, mod=11
	cg.buf.EmitBytes(rexW(RCX, RAX), 0x39, modrmReg(3, RCX, RAX))
	// setcc al : 0F 9x /0, mod=11 reg=0 rm=RAX (8-bit form, no REX needed)
	cg.buf.EmitBytes(0x0F, setccOp, modrmReg(3, 0, RAX))
	// movzx rax, al : REX.W 0F B6 /r, mod=11
	cg.buf.EmitBytes(rexW(RAX, RAX), 0x0F, 0xB6, modrmReg(3, RAX, RAX))
}

func (cg *CodeGen) emitCompare(inst Inst) {
	cg.loadLHSRHS(inst.A, inst.B)
	var op byte
	switch inst.Op {
	case OpCmpEQ:
		op = 0x94 // sete
	case OpCmpNE:
		op = 0x95 // setne
	case OpCmpLT:
		op = 0x9C // setl
	case OpCmpLE:
		op = 0x9E // setle
	case OpCmpGT:
		op = 0x9F // setg
	case OpCmpGE:
		op = 0x9D // setge
	}
	cg.emitCmpSetcc(op)
	if inst.Dst != noTemp {
		cg.storeTemp(inst.Dst, RAX)
	}
}
