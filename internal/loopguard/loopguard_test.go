package loopguard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/loopguard"
)

func TestRecordWriteAttemptEscalatesThroughLevels(t *testing.T) {
	d := loopguard.New(2, 4, 3)

	require.Equal(t, loopguard.Permit, d.RecordWriteAttempt("a", "x.go"))
	require.Equal(t, loopguard.Permit, d.RecordWriteAttempt("a", "x.go"))
	require.Equal(t, loopguard.PermitWithEmphasis, d.RecordWriteAttempt("a", "x.go"))
	require.Equal(t, loopguard.PermitWithEmphasis, d.RecordWriteAttempt("a", "x.go"))
	require.Equal(t, loopguard.Detected, d.RecordWriteAttempt("a", "x.go"))
}

func TestRecordWriteAttemptIsPerAgentPerPath(t *testing.T) {
	d := loopguard.New(2, 4, 3)
	for i := 0; i < 5; i++ {
		d.RecordWriteAttempt("a", "x.go")
	}
	require.Equal(t, loopguard.Permit, d.RecordWriteAttempt("b", "x.go"))
	require.Equal(t, loopguard.Permit, d.RecordWriteAttempt("a", "y.go"))
}

func TestResetAgentClearsCounters(t *testing.T) {
	d := loopguard.New(2, 4, 3)
	for i := 0; i < 4; i++ {
		d.RecordWriteAttempt("a", "x.go")
	}
	d.ResetAgent("a")
	require.Equal(t, 0, d.Attempts("a", "x.go"))
	require.Equal(t, loopguard.Permit, d.RecordWriteAttempt("a", "x.go"))
}

func TestRecordReasoningDetectsDuplicatesAndShortCircuits(t *testing.T) {
	d := loopguard.New(2, 4, 3)

	_, sc := d.RecordReasoning("a", "thinking about it")
	require.False(t, sc)

	var dup bool
	for i := 0; i < 3; i++ {
		dup, sc = d.RecordReasoning("a", "thinking about it")
	}
	require.True(t, dup)
	require.True(t, sc)
}

func TestRecordReasoningResetsOnNewLine(t *testing.T) {
	d := loopguard.New(2, 4, 3)
	d.RecordReasoning("a", "line one")
	d.RecordReasoning("a", "line one")
	dup, sc := d.RecordReasoning("a", "line two")
	require.False(t, dup)
	require.False(t, sc)
}
