package main

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// PE (Portable Executable) layout constants for the fixed Windows x64
// image this backend produces: four sections, no relocation table.
// Every code-to-data/import reference is RIP-relative disp32 (lea/mov/
// call qword ptr [rip+disp32], §4.3), so nothing in .text embeds an
// absolute address and the image can still be loaded at a randomized
// base — no .reloc section is needed for ASLR to apply.
const (
	dosHeaderSize       = 64
	dosStubSize         = 64
	peSignatureSize     = 4
	coffHeaderSize      = 20
	optionalHeaderSize  = 240 // PE32+
	peSectionHeaderSize = 40
	peNumSections       = 4 // .text .rdata .data .idata

	peImageBase    = 0x140000000
	peSectionAlign = 0x1000
	peFileAlign    = 0x200

	scnMemExecute  = 0x20000000
	scnMemRead     = 0x40000000
	scnMemWrite    = 0x80000000
	scnCntCode     = 0x00000020
	scnCntInitData = 0x00000040
)

// importedFunctions lists the only three KERNEL32.dll entry points this
// runtime ever calls, in the order their IAT slots are laid out.
var importedFunctions = []string{"ExitProcess", "GetStdHandle", "WriteFile"}

// NamedBuffer pairs one procedure's emitted machine code with the label
// its ExternFixups (and other procedures' CALLs) know it by.
type NamedBuffer struct {
	Label string
	Buf   *CodeBuffer
}

// LinkInput is everything Link needs beyond the individual CodeBuffers:
// the string pool interned while emitting print() calls, and the MMIO
// regions that need zero-initialized backing storage.
type LinkInput struct {
	Procs   []NamedBuffer
	Pool    *StringPool
	Regions []*MMIORegionDecl
}

// dataLabel records where a symbol referenced by an ExternDataRipRel32
// fixup (a string literal, an MMIO region buffer, a g$slots/g$stdout
// global, or an IAT slot) ends up once sections are laid out, as an RVA.
// RIP-relative disp32 resolution needs no image-base term at all: both
// the instruction and the symbol live in the same image, so their
// difference is identical whether expressed in RVAs or VAs.
type dataLabel struct {
	rva uint32
}

// Link concatenates every procedure's CodeBuffer into .text, places the
// string pool in .rdata and MMIO region storage in .data, builds a
// minimal KERNEL32.dll import table in .idata, resolves every
// ExternFixup now that final addresses are known, and serializes the
// whole thing as a PE32+ executable image. Entry point is rt$entry.
func Link(in LinkInput) ([]byte, error) {
	// .text layout follows in.Procs exactly, with no sorting: declaration
	// order from the caller is preserved for user procedures, and the three
	// runtime helpers and entry trampoline are threaded in by the caller
	// already, so no re-sorting happens here — the caller fixes the
	// order once, and Link must not reshuffle it (rel32 CALLs depend on
	// relative position only, but a stable order still makes generated
	// binaries reproducible across runs for the same input).
	textOffsets := make(map[string]int, len(in.Procs))
	var text bytes.Buffer
	for _, p := range in.Procs {
		textOffsets[p.Label] = text.Len()
		text.Write(p.Buf.Bytes)
	}
	textSize := uint32(text.Len())

	rdataBytes, strLabels := buildRdata(in.Pool)
	dataBytes, dataLabels := buildData(in.Regions)

	textRawSize := alignTo(textSize, peFileAlign)
	rdataRawSize := alignTo(uint32(len(rdataBytes)), peFileAlign)
	dataRawSize := alignTo(uint32(len(dataBytes)), peFileAlign)

	headerSize := alignTo(uint32(dosHeaderSize+dosStubSize+peSignatureSize+coffHeaderSize+
		optionalHeaderSize+peNumSections*peSectionHeaderSize), peFileAlign)

	textRVA := uint32(peSectionAlign)
	rdataRVA := textRVA + alignTo(textSize, peSectionAlign)
	dataRVA := rdataRVA + alignTo(uint32(len(rdataBytes)), peSectionAlign)
	idataRVA := dataRVA + alignTo(uint32(len(dataBytes)), peSectionAlign)

	textRawAddr := headerSize
	rdataRawAddr := textRawAddr + textRawSize
	dataRawAddr := rdataRawAddr + rdataRawSize
	idataRawAddr := dataRawAddr + dataRawSize

	// .idata's own VA doesn't depend on its own size (only on the three
	// sections before it), so one build call is enough: its content
	// embeds idataRVA in several fields, none of which feed back into
	// idataRVA itself.
	idataBytes, iatLabels, err := buildImportTable(idataRVA)
	if err != nil {
		return nil, err
	}
	idataRawSize := alignTo(uint32(len(idataBytes)), peFileAlign)

	// Resolve every symbol an ExternDataRipRel32 fixup can reference to
	// its final RVA.
	symbols := make(map[string]dataLabel)
	for label, off := range strLabels {
		symbols[label] = dataLabel{rva: rdataRVA + uint32(off)}
	}
	for label, off := range dataLabels {
		symbols[label] = dataLabel{rva: dataRVA + uint32(off)}
	}
	for label, off := range iatLabels {
		symbols[label] = dataLabel{rva: idataRVA + uint32(off)}
	}

	textPatched := text.Bytes()
	for _, p := range in.Procs {
		base := textOffsets[p.Label]
		for _, fx := range p.Buf.ExternFixups {
			switch fx.Kind {
			case ExternCallRel32:
				target, ok := textOffsets[fx.Target]
				if !ok {
					return nil, internalError("unresolved procedure %q", fx.Target)
				}
				instEnd := base + fx.InstEnd
				rel := int32(target - instEnd)
				binary.LittleEndian.PutUint32(textPatched[base+fx.AtOffset:], uint32(rel))
			case ExternDataRipRel32:
				sym, ok := symbols[fx.Target]
				if !ok {
					return nil, internalError("unresolved symbol %q", fx.Target)
				}
				instEndRVA := int64(textRVA) + int64(base) + int64(fx.InstEnd)
				rel := int32(int64(sym.rva) - instEndRVA)
				binary.LittleEndian.PutUint32(textPatched[base+fx.AtOffset:], uint32(rel))
			}
		}
	}

	entryOff, ok := textOffsets[rtEntry]
	if !ok {
		return nil, internalError("missing entry trampoline %q", rtEntry)
	}
	entryRVA := textRVA + uint32(entryOff)

	var img bytes.Buffer
	writeDOSHeader(&img)
	writeCOFFAndOptionalHeader(&img, entryRVA, textSize, uint32(len(rdataBytes))+uint32(len(dataBytes)),
		headerSize, idataRVA, uint32(len(idataBytes)))

	writeSectionHeader(&img, ".text", textSize, textRVA, textRawSize, textRawAddr,
		scnCntCode|scnMemExecute|scnMemRead)
	writeSectionHeader(&img, ".rdata", uint32(len(rdataBytes)), rdataRVA, rdataRawSize, rdataRawAddr,
		scnCntInitData|scnMemRead)
	writeSectionHeader(&img, ".data", uint32(len(dataBytes)), dataRVA, dataRawSize, dataRawAddr,
		scnCntInitData|scnMemRead|scnMemWrite)
	writeSectionHeader(&img, ".idata", uint32(len(idataBytes)), idataRVA, idataRawSize, idataRawAddr,
		scnCntInitData|scnMemRead|scnMemWrite)

	padTo(&img, int(headerSize))

	img.Write(textPatched)
	padTo(&img, int(textRawAddr)+int(textRawSize))

	img.Write(rdataBytes)
	padTo(&img, int(rdataRawAddr)+int(rdataRawSize))

	img.Write(dataBytes)
	padTo(&img, int(dataRawAddr)+int(dataRawSize))

	img.Write(idataBytes)
	padTo(&img, int(idataRawAddr)+int(idataRawSize))

	return img.Bytes(), nil
}

func alignTo(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

func padTo(buf *bytes.Buffer, target int) {
	if n := target - buf.Len(); n > 0 {
		buf.Write(make([]byte, n))
	}
}

// buildRdata places every interned print() string literal back to back,
// each followed by a single NUL byte (unused by the runtime, which
// carries its own length, but kept so a %s-style dump is safe).
func buildRdata(pool *StringPool) ([]byte, map[string]int) {
	var buf bytes.Buffer
	offsets := make(map[string]int)
	if pool == nil {
		return nil, offsets
	}
	for _, e := range pool.entries {
		offsets[e.Label] = buf.Len()
		buf.WriteString(e.Text)
		buf.WriteByte(0)
	}
	return buf.Bytes(), offsets
}

// buildData reserves zero-initialized backing storage for every MMIO
// region (in declaration order, labeled mmio$<name>), followed by the
// fixed-size g$slots call-into-slot array and the cached g$stdout
// handle slot every program carries regardless of whether it uses
// either.
func buildData(regions []*MMIORegionDecl) ([]byte, map[string]int) {
	var buf bytes.Buffer
	offsets := make(map[string]int)
	for _, r := range regions {
		offsets[mmioDataLabel(r.Name)] = buf.Len()
		buf.Write(make([]byte, r.Size))
	}
	offsets[slotsLabel] = buf.Len()
	buf.Write(make([]byte, slotCount*8))
	offsets[stdoutLabel] = buf.Len()
	buf.Write(make([]byte, 8))
	return buf.Bytes(), offsets
}

// buildImportTable lays out a single-library (KERNEL32.dll) import
// directory: one IMAGE_IMPORT_DESCRIPTOR, an Import Lookup Table, an
// Import Address Table, a hint/name table, and the DLL name string.
// Returns the section bytes plus a map from "iat$<func>" to that
// function's IAT slot offset within the section (the value every
// `call qword ptr [rip+disp32]` reference to an import resolves to,
// since the loader overwrites that slot with the resolved function
// address at load time and generated code calls through it directly).
func buildImportTable(idataRVA uint32) ([]byte, map[string]int, error) {
	const dllName = "KERNEL32.dll"
	funcs := append([]string(nil), importedFunctions...)
	sort.Strings(funcs) // deterministic hint/name ordering

	const idtSize = 2 * 20 // one descriptor + null terminator
	thunkSize := uint32((len(funcs) + 1) * 8)

	iltOffset := uint32(idtSize)
	iatOffset := iltOffset + thunkSize
	hintsOffset := iatOffset + thunkSize

	hintOffsetOf := make(map[string]uint32, len(funcs))
	cursor := hintsOffset
	for _, fn := range funcs {
		hintOffsetOf[fn] = cursor
		entrySize := 2 + len(fn) + 1
		if entrySize%2 != 0 {
			entrySize++
		}
		cursor += uint32(entrySize)
	}
	nameOffset := cursor

	var buf bytes.Buffer
	w32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	w64 := func(v uint64) { binary.Write(&buf, binary.LittleEndian, v) }

	// Import Directory Table: one descriptor, then a null terminator.
	w32(idataRVA + iltOffset) // OriginalFirstThunk
	w32(0)                    // TimeDateStamp
	w32(0)                    // ForwarderChain
	w32(idataRVA + nameOffset)
	w32(idataRVA + iatOffset)
	buf.Write(make([]byte, 20)) // null descriptor

	// Import Lookup Table.
	for _, fn := range funcs {
		w64(uint64(idataRVA + hintOffsetOf[fn]))
	}
	w64(0)

	// Import Address Table (identical contents; the loader overwrites
	// each slot with the resolved function address at load time, and
	// this backend reads straight out of that slot).
	iatSlotOffset := make(map[string]int)
	for _, fn := range funcs {
		iatSlotOffset[fn] = buf.Len()
		w64(uint64(idataRVA + hintOffsetOf[fn]))
	}
	w64(0)

	// Hint/Name table.
	for _, fn := range funcs {
		binary.Write(&buf, binary.LittleEndian, uint16(0))
		buf.WriteString(fn)
		buf.WriteByte(0)
		if (2+len(fn)+1)%2 != 0 {
			buf.WriteByte(0)
		}
	}

	buf.WriteString(dllName)
	buf.WriteByte(0)

	iatLabels := make(map[string]int, len(funcs))
	for _, fn := range funcs {
		iatLabels["iat$"+fn] = iatSlotOffset[fn]
	}
	return buf.Bytes(), iatLabels, nil
}

func writeDOSHeader(w *bytes.Buffer) {
	w16 := func(v uint16) { binary.Write(w, binary.LittleEndian, v) }
	w32 := func(v uint32) { binary.Write(w, binary.LittleEndian, v) }

	w16(0x5A4D) // "MZ"
	w.Write(make([]byte, 58))
	w32(uint32(dosHeaderSize + dosStubSize)) // e_lfanew

	stub := []byte("This program requires Windows.\r\n$")
	w.Write(stub)
	w.Write(make([]byte, dosStubSize-len(stub)))
}

func writeCOFFAndOptionalHeader(w *bytes.Buffer, entryRVA, codeSize, initDataSize, headersSize,
	idataRVA, idataSize uint32) {
	w16 := func(v uint16) { binary.Write(w, binary.LittleEndian, v) }
	w32 := func(v uint32) { binary.Write(w, binary.LittleEndian, v) }
	w64 := func(v uint64) { binary.Write(w, binary.LittleEndian, v) }

	w32(0x00004550) // "PE\0\0"

	w16(0x8664) // Machine: AMD64
	w16(peNumSections)
	w32(0) // TimeDateStamp: zero for a reproducible build
	w32(0) // symbol table pointer (deprecated)
	w32(0) // symbol count (deprecated)
	w16(optionalHeaderSize)
	w16(0x0022) // EXECUTABLE_IMAGE | LARGE_ADDRESS_AWARE

	w16(0x020B) // PE32+
	w.WriteByte(1)
	w.WriteByte(0)
	w32(codeSize)
	w32(initDataSize)
	w32(0) // uninitialized data size
	w32(entryRVA)
	w32(peSectionAlign) // base of code: start of .text

	w64(peImageBase)
	w32(peSectionAlign)
	w32(peFileAlign)
	w16(6) // major OS version
	w16(0)
	w16(0) // image version
	w16(0)
	w16(6) // major subsystem version
	w16(0)
	w32(0) // Win32VersionValue

	imageEnd := alignTo(idataRVA+idataSize, peSectionAlign)
	w32(imageEnd) // SizeOfImage
	w32(headersSize)

	w32(0)      // checksum
	w16(3)      // subsystem: console
	w16(0x8160) // NX | ASLR | HIGH_ENTROPY | TS_AWARE
	w64(0x100000)
	w64(0x1000)
	w64(0x100000)
	w64(0x1000)
	w32(0)  // loader flags
	w32(16) // number of data directories

	for i := 0; i < 16; i++ {
		if i == 1 { // import directory
			w32(idataRVA)
			w32(idataSize)
		} else {
			w64(0)
		}
	}
}

func writeSectionHeader(w *bytes.Buffer, name string, virtualSize, virtualAddr, rawSize, rawAddr, characteristics uint32) {
	w32 := func(v uint32) { binary.Write(w, binary.LittleEndian, v) }

	nameBytes := make([]byte, 8)
	copy(nameBytes, name)
	w.Write(nameBytes)

	w32(virtualSize)
	w32(virtualAddr)
	w32(rawSize)
	w32(rawAddr)
	w32(0) // relocations pointer
	w32(0) // line numbers pointer
	binary.Write(w, binary.LittleEndian, uint16(0))
	binary.Write(w, binary.LittleEndian, uint16(0))
	w32(characteristics)
}
