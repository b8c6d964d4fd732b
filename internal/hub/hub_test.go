package hub_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/runctx"
)

func TestShareArtifactFirstWriteWins(t *testing.T) {
	h := hub.New()

	key1, warn1 := h.ShareArtifact("design_doc", "agent-a", "v1")
	require.Equal(t, "design_doc", key1)
	require.Empty(t, warn1)

	key2, warn2 := h.ShareArtifact("design_doc", "agent-b", "v2")
	require.Equal(t, "design_doc#1", key2)
	require.NotEmpty(t, warn2)

	payload, ok := h.GetArtifact("design_doc")
	require.True(t, ok)
	require.Equal(t, "v1", payload)
}

func TestArtifactsByProducerFindsArtifactsRegardlessOfType(t *testing.T) {
	h := hub.New()
	h.ShareArtifact("design_doc", "agent-a", "v1")
	h.ShareArtifact("api_contract", "agent-a", "v2")
	h.ShareArtifact("design_doc", "agent-b", "v3")

	got := h.ArtifactsByProducer("agent-a")
	require.Len(t, got, 2)
	require.Equal(t, "design_doc", got[0].Key)
	require.Equal(t, "v1", got[0].Payload)
	require.Equal(t, "api_contract", got[1].Key)
	require.Equal(t, "v2", got[1].Payload)

	require.Empty(t, h.ArtifactsByProducer("agent-c"))
}

func TestRegisterFileTracksModifiersNotReplacement(t *testing.T) {
	h := hub.New()
	h.RegisterFile("api.go", "agent-a")
	h.RegisterFile("api.go", "agent-b")
	h.RegisterFile("api.go", "agent-b")

	att, ok := h.FileAttribution("api.go")
	require.True(t, ok)
	require.Equal(t, "agent-a", att.Producer)
	require.Equal(t, []string{"agent-b"}, att.Modifiers)
}

func TestRecordResultPreservesHistoryOnRetry(t *testing.T) {
	h := hub.New()
	h.RecordResult(runctx.AgentResult{AgentID: "a", Success: false, Attempt: 1})
	h.RecordResult(runctx.AgentResult{AgentID: "a", Success: true, Attempt: 2})

	latest, ok := h.LatestResult("a")
	require.True(t, ok)
	require.True(t, latest.Success)
	require.Equal(t, 2, latest.Attempt)
	require.Len(t, h.History("a"), 2)
}

func TestSummarizeCompletedIsFlatStrings(t *testing.T) {
	completed := []runctx.CompletedTask{
		{AgentID: "a", Success: true, FilesCount: 3},
		{AgentID: "b", Success: false, FilesCount: 0},
	}
	summary := hub.SummarizeCompleted(completed)
	require.Equal(t, "a: ok (3 files)\nb: fail (0 files)", summary)
}

func TestSummarizeCompletedEmpty(t *testing.T) {
	require.Equal(t, "No tasks completed yet.", hub.SummarizeCompleted(nil))
}
