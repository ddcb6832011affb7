package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestELfanewMatchesSpecLiteralOffset(t *testing.T) {
	// dosHeaderSize + dosStubSize must equal 0x80 exactly: spec.md
	// pins e_lfanew to this value.
	require.EqualValues(t, 0x80, dosHeaderSize+dosStubSize)
}

func TestOptionalHeaderSizeIsPE32Plus(t *testing.T) {
	require.EqualValues(t, 240, optionalHeaderSize)
}

func minimalLinkInput(t *testing.T) LinkInput {
	t.Helper()
	irProg := buildIR(t, `
		proc main() {
			return 0;
		}
	`)
	pool := NewStringPool()
	link := LinkInput{Pool: pool}
	for _, fn := range irProg.Funcs {
		buf, err := EmitFunction(fn, irProg.Regions, pool, nil)
		require.NoError(t, err)
		link.Procs = append(link.Procs, NamedBuffer{Label: procLabel(fn.Name), Buf: buf})
	}
	for _, nb := range []struct {
		label string
		build func() *CodeBuffer
	}{
		{rtPrintCstr, buildPrintCstrHelper},
		{rtPrintI64, buildPrintI64Helper},
		{rtEntry, buildEntryTrampoline},
	} {
		buf := nb.build()
		require.NoError(t, buf.ResolveFixups())
		link.Procs = append(link.Procs, NamedBuffer{Label: nb.label, Buf: buf})
	}
	return link
}

func TestLinkProducesValidDOSAndPEHeaders(t *testing.T) {
	img, err := Link(minimalLinkInput(t))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(img), 0x200)

	require.Equal(t, byte('M'), img[0])
	require.Equal(t, byte('Z'), img[1])

	elfanew := binary.LittleEndian.Uint32(img[0x3C:0x40])
	require.EqualValues(t, 0x80, elfanew)

	peSig := img[elfanew : elfanew+4]
	require.Equal(t, []byte("PE\x00\x00"), peSig)
}

func TestLinkIsDeterministic(t *testing.T) {
	img1, err := Link(minimalLinkInput(t))
	require.NoError(t, err)
	img2, err := Link(minimalLinkInput(t))
	require.NoError(t, err)
	require.Equal(t, img1, img2)
}

func TestLinkFailsOnUnresolvedCallTarget(t *testing.T) {
	buf := NewCodeBuffer()
	buf.DefineLabel(rtEntry)
	buf.EmitBytes(0xE8)
	buf.EmitCallFixup("proc$does_not_exist")
	require.NoError(t, buf.ResolveFixups())

	_, err := Link(LinkInput{
		Pool:  NewStringPool(),
		Procs: []NamedBuffer{{Label: rtEntry, Buf: buf}},
	})
	require.Error(t, err)
}

func TestBuildDataReservesOneBufferPerRegion(t *testing.T) {
	regions := []*MMIORegionDecl{
		{Name: "A", Size: 16},
		{Name: "B", Size: 32},
	}
	data, labels := buildData(regions)
	// 16 + 32 region bytes, plus the fixed g$slots (16*8) and g$stdout (8)
	// globals every image carries regardless of region count.
	require.Len(t, data, 16+32+slotCount*8+8)
	require.Contains(t, labels, "mmio$A")
	require.Contains(t, labels, "mmio$B")
	require.Less(t, labels["mmio$A"], labels["mmio$B"])
	require.Contains(t, labels, slotsLabel)
	require.Contains(t, labels, stdoutLabel)
	require.Less(t, labels["mmio$B"], labels[slotsLabel])
	require.Less(t, labels[slotsLabel], labels[stdoutLabel])
}

func TestBuildDataAlwaysReservesSlotsAndStdoutWithNoRegions(t *testing.T) {
	data, labels := buildData(nil)
	require.Len(t, data, slotCount*8+8)
	require.Equal(t, 0, labels[slotsLabel])
	require.Equal(t, slotCount*8, labels[stdoutLabel])
}

func TestDllCharacteristicsEnablesASLRAndHighEntropyVA(t *testing.T) {
	img, err := Link(minimalLinkInput(t))
	require.NoError(t, err)
	elfanew := binary.LittleEndian.Uint32(img[0x3C:0x40])
	// DllCharacteristics is the uint16 immediately after Subsystem, which
	// itself starts 0x44 bytes into the optional header (PE32+); the
	// optional header starts 24 bytes past the "PE\0\0" signature.
	off := elfanew + 24 + 0x46
	dllChar := binary.LittleEndian.Uint16(img[off : off+2])
	require.EqualValues(t, 0x8160, dllChar)
}

func TestExternDataRipRel32FixupsAreFourBytes(t *testing.T) {
	// Every data/IAT reference this backend emits is a RIP-relative
	// disp32 fixup, never an absolute 8-byte VA patch (spec.md §4.3).
	buf := NewCodeBuffer()
	buf.EmitLeaRip(RAX, "mmio$A")
	require.Len(t, buf.ExternFixups, 1)
	require.Equal(t, ExternDataRipRel32, buf.ExternFixups[0].Kind)
	require.Equal(t, buf.ExternFixups[0].InstEnd-buf.ExternFixups[0].AtOffset, 4)
}

func TestBuildImportTableIsSortedAlphabetically(t *testing.T) {
	_, iatLabels, err := buildImportTable(0x3000)
	require.NoError(t, err)
	require.Contains(t, iatLabels, "iat$ExitProcess")
	require.Contains(t, iatLabels, "iat$GetStdHandle")
	require.Contains(t, iatLabels, "iat$WriteFile")
	// alphabetical: ExitProcess < GetStdHandle < WriteFile
	require.Less(t, iatLabels["iat$ExitProcess"], iatLabels["iat$GetStdHandle"])
	require.Less(t, iatLabels["iat$GetStdHandle"], iatLabels["iat$WriteFile"])
}
