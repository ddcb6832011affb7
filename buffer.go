package main

import "encoding/binary"

// Fixup records one unresolved rel32 reference: the code emitter writes
// a placeholder zero when the target label hasn't been seen yet, and
// ResolveFixups patches it once every label in the function has been
// emitted.
type Fixup struct {
	AtOffset int    // position of the 4-byte rel32 field
	InstEnd  int    // offset immediately after the rel32 field
	Target   string // label name this fixup resolves against
}

// CodeBuffer is the one-pass x64 emitter's output: a growing byte buffer
// plus a label table and a fixup list, exactly the "label_offset" /
// "rel32_fixups" pairing spec.md §4.3 names. One CodeBuffer is built per
// procedure; PE Builder concatenates them into the final .text section.
type CodeBuffer struct {
	Bytes        []byte
	Labels       map[string]int
	Fixups       []Fixup
	ExternFixups []ExternFixup
}

func NewCodeBuffer() *CodeBuffer {
	return &CodeBuffer{Labels: make(map[string]int)}
}

func (cb *CodeBuffer) Len() int { return len(cb.Bytes) }

func (cb *CodeBuffer) Emit8(b byte) {
	cb.Bytes = append(cb.Bytes, b)
}

func (cb *CodeBuffer) EmitBytes(bs ...byte) {
	cb.Bytes = append(cb.Bytes, bs...)
}

func (cb *CodeBuffer) Emit32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	cb.Bytes = append(cb.Bytes, tmp[:]...)
}

func (cb *CodeBuffer) Emit64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	cb.Bytes = append(cb.Bytes, tmp[:]...)
}

// DefineLabel records the current offset as the target of name. No check
// is made for an earlier definition: defining the same name again
// replaces the recorded offset, so fixups resolve to the later one.
func (cb *CodeBuffer) DefineLabel(name string) {
	cb.Labels[name] = cb.Len()
}

// EmitRel32Fixup writes a 4-byte zero placeholder for a rel32 operand
// and records the fixup needed to patch it once name's offset is known.
// instEnd is the offset immediately following this 4-byte field — the
// base every x64 relative branch/call measures from.
func (cb *CodeBuffer) EmitRel32Fixup(name string) {
	at := cb.Len()
	cb.Emit32(0)
	cb.Fixups = append(cb.Fixups, Fixup{AtOffset: at, InstEnd: cb.Len(), Target: name})
	_ = at
}

// ResolveFixups patches every recorded rel32 fixup now that all labels in
// the function have been defined. An unresolved target is an internal
// compiler error — the parser/IR builder should never reference a label
// the procedure's statement list doesn't define.
func (cb *CodeBuffer) ResolveFixups() error {
	for _, fx := range cb.Fixups {
		target, ok := cb.Labels[fx.Target]
		if !ok {
			return internalError("unresolved label %q", fx.Target)
		}
		rel := int32(target - fx.InstEnd)
		binary.LittleEndian.PutUint32(cb.Bytes[fx.AtOffset:fx.AtOffset+4], uint32(rel))
	}
	return nil
}

// ExternKind distinguishes the two cross-procedure/cross-section
// references a single function body can make: a direct CALL to another
// procedure (resolved once every procedure's final .text offset is
// known) and a RIP-relative disp32 reference to a data symbol — a
// string literal, an MMIO region buffer, the g$slots/g$stdout globals,
// or an IAT slot (resolved once .rdata/.data/.idata have been placed).
// Both are beyond what one procedure's own one-pass emission can
// resolve, so the PE Builder resolves them during final linking.
type ExternKind int

const (
	ExternCallRel32 ExternKind = iota
	ExternDataRipRel32
)

// ExternFixup is a not-yet-resolvable reference recorded relative to the
// start of this function's own CodeBuffer; the PE Builder rebases
// AtOffset/InstEnd by this function's final offset within the
// concatenated .text section before patching.
type ExternFixup struct {
	AtOffset int
	InstEnd  int
	Kind     ExternKind
	Target   string
}

// EmitCallFixup writes a 4-byte zero placeholder for a direct CALL
// rel32 to another procedure (by its procLabel name).
func (cb *CodeBuffer) EmitCallFixup(procLabelName string) {
	at := cb.Len()
	cb.Emit32(0)
	cb.ExternFixups = append(cb.ExternFixups, ExternFixup{AtOffset: at, InstEnd: cb.Len(), Kind: ExternCallRel32, Target: procLabelName})
}

// EmitDataRipRel32Fixup writes a 4-byte zero placeholder for a
// RIP-relative disp32 operand — the trailing operand of a `lea reg,
// [rip+disp32]`, `mov reg, [rip+disp32]`, `mov [rip+disp32], reg`, or
// `call qword ptr [rip+disp32]` — that will be filled in once
// dataLabel has a final section-relative position. InstEnd is recorded
// exactly as EmitCallFixup does: disp32 is always measured from the
// byte immediately following the field itself.
func (cb *CodeBuffer) EmitDataRipRel32Fixup(dataLabel string) {
	at := cb.Len()
	cb.Emit32(0)
	cb.ExternFixups = append(cb.ExternFixups, ExternFixup{AtOffset: at, InstEnd: cb.Len(), Kind: ExternDataRipRel32, Target: dataLabel})
}

// ripModRM builds the ModRM byte for a RIP-relative operand (mod=00,
// rm=101) with reg as the instruction's register operand/extension.
func ripModRM(reg Register) byte {
	return ((byte(reg) & 7) << 3) | 0x05
}

// EmitLeaRip emits `lea reg, [rip+disp32]`, loading a data symbol's own
// address into reg without dereferencing it.
func (cb *CodeBuffer) EmitLeaRip(reg Register, dataLabel string) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04
	}
	cb.EmitBytes(rex, 0x8D, ripModRM(reg))
	cb.EmitDataRipRel32Fixup(dataLabel)
}

// EmitMovLoadRip emits `mov reg, [rip+disp32]`, loading the 8 bytes
// stored at a data symbol into reg.
func (cb *CodeBuffer) EmitMovLoadRip(reg Register, dataLabel string) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04
	}
	cb.EmitBytes(rex, 0x8B, ripModRM(reg))
	cb.EmitDataRipRel32Fixup(dataLabel)
}

// EmitMovStoreRip emits `mov [rip+disp32], reg`, storing reg's 8 bytes
// at a data symbol.
func (cb *CodeBuffer) EmitMovStoreRip(reg Register, dataLabel string) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04
	}
	cb.EmitBytes(rex, 0x89, ripModRM(reg))
	cb.EmitDataRipRel32Fixup(dataLabel)
}

// EmitCallIAT emits `call qword ptr [rip+disp32]`, indirectly calling
// through a KERNEL32 import's IAT slot rather than loading its address
// into a register first.
func (cb *CodeBuffer) EmitCallIAT(importName string) {
	cb.EmitBytes(0xFF, 0x15)
	cb.EmitDataRipRel32Fixup("iat$" + importName)
}
