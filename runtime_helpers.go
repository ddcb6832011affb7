package main

// Hand-written runtime support the compiled program links against: a
// minimal process entry trampoline, and print_cstr/print_i64 helpers
// that wrap the three imported kernel32 functions (GetStdHandle,
// WriteFile, ExitProcess). These are assembled once per program, the
// same way the rest of the emitter builds procedures, and called by
// ordinary CALL rel32 fixups from generated code. The entry trampoline
// calls GetStdHandle(-11) exactly once and caches the result at
// g$stdout; print_cstr reads the cached handle from there rather than
// asking for it again on every call.

const (
	rtPrintCstr = "rt$print_cstr"
	rtPrintI64  = "rt$print_i64"
	rtEntry     = "rt$entry"

	stdOutputHandle = -11

	// g$slots is the fixed 16-slot call-into-slot array; g$stdout caches
	// the standard-output handle. Both live in .data regardless of
	// whether a given program uses call-into-slot statements.
	slotsLabel  = "g$slots"
	slotCount   = 16
	stdoutLabel = "g$stdout"
)

func rspDisp32(buf *CodeBuffer, store bool, reg Register, disp uint32) {
	op := byte(0x8B)
	if store {
		op = 0x89
	}
	buf.EmitBytes(rexW(reg, RSP), op, modrmReg(2, reg, RSP), 0x24)
	buf.Emit32(disp)
}

func movImm64Raw(buf *CodeBuffer, reg Register, imm int64) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	buf.EmitBytes(rex, 0xB8+(byte(reg)&7))
	buf.Emit64(uint64(imm))
}

func movRegRegRaw(buf *CodeBuffer, dst, src Register) {
	buf.EmitBytes(rexW(src, dst), 0x89, modrmReg(3, src, dst))
}

func callImportRaw(buf *CodeBuffer, importName string) {
	buf.EmitCallIAT(importName)
}

func subRspImm32(buf *CodeBuffer, n uint32) {
	buf.EmitBytes(rexW(0, RSP), 0x81, modrmReg(3, 5, RSP))
	buf.Emit32(n)
}

func addRspImm32(buf *CodeBuffer, n uint32) {
	buf.EmitBytes(rexW(0, RSP), 0x81, modrmReg(3, 0, RSP))
	buf.Emit32(n)
}

// buildPrintCstrHelper assembles rt$print_cstr(rcx=ptr, rdx=len): writes
// len bytes at ptr to the cached standard output handle at g$stdout.
// Errors from WriteFile are not surfaced — a failed console write is
// not an observable part of this language's semantics.
func buildPrintCstrHelper() *CodeBuffer {
	buf := NewCodeBuffer()
	buf.DefineLabel(rtPrintCstr)
	const frame = 64 // locals: ptr@0 len@8 handle@16 written@24, rest shadow headroom
	buf.EmitBytes(0x55)
	movRegRegRaw(buf, RBP, RSP)
	subRspImm32(buf, frame)
	rspDisp32(buf, true, RCX, 0)  // save ptr
	rspDisp32(buf, true, RDX, 8)  // save len

	buf.EmitMovLoadRip(RAX, stdoutLabel)
	rspDisp32(buf, true, RAX, 16) // save handle

	subRspImm32(buf, 32)
	rspDisp32(buf, false, RCX, 32+16) // handle
	rspDisp32(buf, false, RDX, 32+0)  // ptr
	rspDisp32(buf, false, R8, 32+8)   // len
	// &written : lea r9, [rsp+56]
	buf.EmitBytes(rexW(R9, RSP), 0x8D, modrmReg(2, R9, RSP), 0x24)
	buf.Emit32(56)
	callImportRaw(buf, "WriteFile")
	addRspImm32(buf, 32)

	movRegRegRaw(buf, RSP, RBP)
	buf.EmitBytes(0x5D, 0xC3) // pop rbp; ret
	return buf
}

// buildPrintI64Helper assembles rt$print_i64(rcx=value): converts a
// signed 64-bit value to decimal ASCII followed by a trailing newline in
// a stack buffer, then calls rt$print_cstr with that buffer's address
// and length. The conversion loop is the one piece of hand-rolled
// control flow here, expressed with the same label/fixup mechanism every
// IR-driven branch uses.
func buildPrintI64Helper() *CodeBuffer {
	buf := NewCodeBuffer()
	buf.DefineLabel(rtPrintI64)
	const bufBytes = 32
	const frame = 64 + bufBytes
	const nlPos = 64 + bufBytes - 1 // last buffer byte: trailing '\n'
	buf.EmitBytes(0x55)
	movRegRegRaw(buf, RBP, RSP)
	subRspImm32(buf, frame)
	rspDisp32(buf, true, RCX, 0)  // save value
	rspDisp32(buf, true, RCX, 16) // keep the original value for the sign check

	// mov byte [rsp+nlPos], '\n'
	buf.EmitBytes(0xC6, 0x84, 0x24)
	buf.Emit32(nlPos)
	buf.EmitBytes(0x0A)

	// negative handling: if value < 0, negate it here; the '-' is
	// written in front of the digits once the loop has finished.
	rspDisp32(buf, false, RAX, 0)
	buf.EmitBytes(rexW(RAX, RAX), 0x85, modrmReg(3, RAX, RAX)) // test rax,rax
	notNeg := "rt$i64_notneg"
	buf.EmitBytes(0x0F, 0x89) // jns rel32 (jump if not sign, i.e. >= 0)
	buf.EmitRel32Fixup(notNeg)
	// negate: neg rax
	buf.EmitBytes(rexW(0, RAX), 0xF7, modrmReg(3, 3, RAX))
	rspDisp32(buf, true, RAX, 0)
	buf.DefineLabel(notNeg)

	// digit extraction loop: repeatedly divide by 10, writing digits
	// from the end of the digit region backwards (just before nlPos).
	// r8 = cursor.
	movImm64Raw(buf, R8, int64(nlPos-1))
	loop := "rt$i64_loop"
	buf.DefineLabel(loop)
	rspDisp32(buf, false, RAX, 0)
	buf.EmitBytes(0x48, 0x99) // cqo
	movImm64Raw(buf, RCX, 10)
	buf.EmitBytes(rexW(0, RCX), 0xF7, modrmReg(3, 7, RCX)) // idiv rcx
	// rdx now holds remainder 0..9 ; add '0'
	buf.EmitBytes(rexW(0, RDX), 0x83, modrmReg(3, 0, RDX), 0x30) // add rdx, imm8 '0'
	// store byte at [rsp+r8] : mov [rsp+r8*1+0], dl  (SIB with index=r8, scale=1)
	buf.EmitBytes(0x42, 0x88, 0x14, 0x04) // mov [rsp+r8], dl (REX.X for r8 index, modrm+SIB)
	// rax /= 10 already in rax from idiv quotient
	rspDisp32(buf, true, RAX, 0)
	// r8--
	buf.EmitBytes(0x49, 0xFF, 0xC8) // dec r8 (REX.B FF /1)
	// loop while rax != 0
	rspDisp32(buf, false, RAX, 0)
	buf.EmitBytes(rexW(RAX, RAX), 0x85, modrmReg(3, RAX, RAX))
	buf.EmitBytes(0x0F, 0x85) // jnz rel32
	buf.EmitRel32Fixup(loop)

	// original value < 0: mov byte [rsp+r8], '-'; dec r8
	rspDisp32(buf, false, RAX, 16)
	buf.EmitBytes(rexW(RAX, RAX), 0x85, modrmReg(3, RAX, RAX)) // test rax,rax
	noSign := "rt$i64_nosign"
	buf.EmitBytes(0x0F, 0x89) // jns rel32
	buf.EmitRel32Fixup(noSign)
	buf.EmitBytes(0x42, 0xC6, 0x04, 0x04, '-') // mov byte [rsp+r8], '-' (REX.X for r8 index, modrm+SIB)
	buf.EmitBytes(0x49, 0xFF, 0xC8)            // dec r8
	buf.DefineLabel(noSign)

	// rcx = r8+1 (start of digits), rdx = (nlPos+1) - start = length
	// including the trailing newline.
	buf.EmitBytes(0x4C, 0x89, 0xC1)                        // mov rcx, r8
	buf.EmitBytes(rexW(0, RCX), 0xFF, modrmReg(3, 0, RCX)) // inc rcx
	movImm64Raw(buf, RAX, int64(nlPos+1))
	buf.EmitBytes(0x48, 0x29, 0xC8) // sub rax, rcx  (len = end - start)
	movRegRegRaw(buf, RDX, RAX)     // rdx = length
	buf.EmitBytes(0x48, 0x8D, 0x04, 0x0C) // lea rax, [rsp+rcx]
	movRegRegRaw(buf, RCX, RAX)           // rcx = ptr
	buf.EmitBytes(0xE8)
	buf.EmitCallFixup(rtPrintCstr)

	movRegRegRaw(buf, RSP, RBP)
	buf.EmitBytes(0x5D, 0xC3)
	return buf
}

// buildEntryTrampoline assembles the PE entry point: cache
// GetStdHandle(-11) at g$stdout, call the source program's `main`
// procedure with no arguments, then exit the process with code 0.
// main's return value in RAX is discarded, not forwarded as the exit
// code; no CRT, no argv/argc plumbing.
func buildEntryTrampoline() *CodeBuffer {
	buf := NewCodeBuffer()
	buf.DefineLabel(rtEntry)
	subRspImm32(buf, 40) // shadow + alignment for the calls below
	movImm64Raw(buf, RCX, stdOutputHandle)
	callImportRaw(buf, "GetStdHandle")
	buf.EmitMovStoreRip(RAX, stdoutLabel)

	buf.EmitBytes(0xE8)
	buf.EmitCallFixup(procLabel("main"))
	movImm64Raw(buf, RCX, 0)
	callImportRaw(buf, "ExitProcess")
	// unreachable: ExitProcess does not return.
	buf.EmitBytes(0xC3)
	return buf
}

func (cg *CodeGen) emitPrintInt(inst Inst) {
	cg.loadTemp(inst.A, RCX)
	cg.buf.EmitBytes(0xE8)
	cg.buf.EmitCallFixup(rtPrintI64)
	if inst.Dst != noTemp {
		cg.movImm64(RAX, 0)
		cg.storeTemp(inst.Dst, RAX)
	}
}

func (cg *CodeGen) emitPrintStr(inst Inst) {
	text := cg.fn.StrTable[inst.Imm]
	label := cg.stringPool.Intern(text)
	cg.leaDataAddr(RCX, label)
	cg.movImm64(RDX, int64(len(text)))
	cg.buf.EmitBytes(0xE8)
	cg.buf.EmitCallFixup(rtPrintCstr)
	if inst.Dst != noTemp {
		cg.movImm64(RAX, 0)
		cg.storeTemp(inst.Dst, RAX)
	}
}

func (cg *CodeGen) emitExitProcess(code uint32) {
	cg.movImm64(RCX, int64(code))
	cg.buf.EmitCallIAT("ExitProcess")
}
