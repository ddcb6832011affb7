package main

// Unconditional and conditional control transfer. Both forms reserve a
// 4-byte rel32 field via the code buffer's fixup table — since this is a
// one-pass emitter, a forward branch's target offset is not known yet,
// so the buffer patches it after the whole function has been emitted.

func (cg *CodeGen) emitJmp(target string) {
	// JMP rel32 : E9 + rel32
	cg.buf.EmitBytes(0xE9)
	cg.buf.EmitRel32Fixup(target)
}

func (cg *CodeGen) emitJmpIfZero(inst Inst) {
	cg.loadTemp(inst.A, RAX)
	// test rax, rax : REX.W 85 /r, mod=11
	cg.buf.EmitBytes(rexW(RAX, RAX), 0x85, modrmReg(3, RAX, RAX))
	// jz rel32 : 0F 84 + rel32
	cg.buf.EmitBytes(0x0F, 0x84)
	cg.buf.EmitRel32Fixup(inst.Str)
}
