package checkpoint_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/checkpoint"
	"swarmkit.dev/swarmkit/internal/runctx"
)

func TestFileStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := checkpoint.NewFileStore(t.TempDir())
	snap, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, snap)
}

func TestFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewFileStore(root)

	original := &checkpoint.Snapshot{
		Completed: []string{"requirements-analyst", "rapid-builder"},
		Failed:    []checkpoint.AgentOutcome{{AgentID: "flaky", Reason: "transport error"}},
		Abandoned: []checkpoint.AgentOutcome{{AgentID: "ghost", Reason: "transitive failure"}},
		Artifacts: map[string]runctx.Artifact{
			"design": {Key: "design", ProducerID: "requirements-analyst", Payload: "v1", Timestamp: time.Now().UTC().Truncate(time.Second)},
		},
		Files: map[string]*runctx.FileAttribution{
			"README.md": {Path: "README.md", Producer: "rapid-builder", Modifiers: []string{"rapid-builder"}},
		},
		TakenAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, store.Save(context.Background(), original))

	loaded, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original.Completed, loaded.Completed)
	require.Equal(t, original.Failed, loaded.Failed)
	require.Equal(t, original.Abandoned, loaded.Abandoned)
	require.Equal(t, "v1", loaded.Artifacts["design"].Payload)
	require.Equal(t, "rapid-builder", loaded.Files["README.md"].Producer)
}

func TestFileStoreSaveOverwritesPreviousCheckpoint(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewFileStore(root)

	require.NoError(t, store.Save(context.Background(), &checkpoint.Snapshot{Completed: []string{"a"}}))
	require.NoError(t, store.Save(context.Background(), &checkpoint.Snapshot{Completed: []string{"a", "b"}}))

	loaded, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, loaded.Completed)
}

func TestWriteFinalContextProducesNamedFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, checkpoint.WriteFinalContext(root, &checkpoint.FinalContext{
		Completed: []string{"a"},
		StartedAt: time.Now().UTC(),
		EndedAt:   time.Now().UTC(),
	}))

	matches, err := filepath.Glob(filepath.Join(root, checkpoint.FinalContextFilename))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}
