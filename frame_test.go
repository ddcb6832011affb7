package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFramePlanAlignsLocalsAndOutgoing(t *testing.T) {
	fp := BuildFramePlan(24, 40)
	require.EqualValues(t, 32, fp.LocalsBytes)   // 24 -> 32
	require.EqualValues(t, 48, fp.OutgoingMaxBytes) // 40 -> 48
	require.EqualValues(t, 0, fp.LocalsBase)
	require.EqualValues(t, 32, fp.OutgoingBase)
	require.Zero(t, fp.TotalFrameAligned%16)
}

func TestBuildFramePlanZeroLocalsAndOutgoing(t *testing.T) {
	fp := BuildFramePlan(0, 0)
	require.Zero(t, fp.TotalFrameAligned)
}

func TestFramePlanOperandText(t *testing.T) {
	fp := BuildFramePlan(16, 0)
	require.Equal(t, "qword [rsp]", fp.Local(Width64, 0))
	require.Equal(t, "dword [rsp+8]", fp.Local(Width32, 8))
}
