package main

// x64 encoding helpers shared by every instruction-family file. Every
// helper emits complete, self-contained byte sequences — this backend
// never re-visits an already-emitted instruction except through the
// buffer's rel32 fixup table (§4.3).

// rexW builds a REX prefix with the W bit (64-bit operand) always set,
// plus R (reg field extension) and B (rm/base field extension) as
// needed for registers R8-R15.
func rexW(reg, rm Register) byte {
	b := byte(0x48)
	if reg >= 8 {
		b |= 0x04
	}
	if rm >= 8 {
		b |= 0x01
	}
	return b
}

func modrmReg(mod byte, reg, rm Register) byte {
	return (mod << 6) | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// emitLoadRspDisp32 emits `mov reg, [rsp+disp32]` (opcode 0x8B) or
// `mov [rsp+disp32], reg` (opcode 0x89) depending on store.
func (cg *CodeGen) emitRspDisp32(store bool, reg Register, disp uint32) {
	op := byte(0x8B)
	if store {
		op = 0x89
	}
	cg.buf.EmitBytes(rexW(reg, RSP), op, modrmReg(2, reg, RSP), 0x24)
	cg.buf.Emit32(disp)
}

// loadTemp emits `mov reg, [rsp+slot(temp)]`.
func (cg *CodeGen) loadTemp(temp int, reg Register) {
	cg.emitRspDisp32(false, reg, cg.frame.LocalsBase+cg.slotOf[temp])
}

// storeTemp emits `mov [rsp+slot(temp)], reg`.
func (cg *CodeGen) storeTemp(temp int, reg Register) {
	cg.emitRspDisp32(true, reg, cg.frame.LocalsBase+cg.slotOf[temp])
}

// movImm64 emits the 10-byte `movabs reg, imm64` form (REX.W + B8+rd +
// imm64), chosen over shorter encodings so every constant — regardless
// of magnitude — is handled identically by one code path.
func (cg *CodeGen) movImm64(reg Register, imm int64) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	cg.buf.EmitBytes(rex, 0xB8+(byte(reg)&7))
	cg.buf.Emit64(uint64(imm))
}

func (cg *CodeGen) emitConst(inst Inst) {
	if inst.Dst == noTemp {
		return
	}
	cg.movImm64(RAX, inst.Imm)
	cg.storeTemp(inst.Dst, RAX)
}

// leaDataAddr emits `lea reg, [rip+disp32]`, leaving the displacement
// to be patched by the PE Builder once dataLabel has a final
// section-relative position.
func (cg *CodeGen) leaDataAddr(reg Register, dataLabel string) {
	cg.buf.EmitLeaRip(reg, dataLabel)
}

// movRegReg emits `mov dst, src` (register to register, opcode 0x89).
func (cg *CodeGen) movRegReg(dst, src Register) {
	cg.buf.EmitBytes(rexW(src, dst), 0x89, modrmReg(3, src, dst))
}
