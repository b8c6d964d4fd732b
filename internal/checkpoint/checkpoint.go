// Package checkpoint persists and restores run state so an interrupted
// orchestration can resume (spec.md §4.8 "Checkpointing", §6
// checkpoint.json/final_context.json, §8 "Checkpoint-then-resume from any
// point produces a terminal state equal to an uninterrupted run").
package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"swarmkit.dev/swarmkit/internal/runctx"
)

// AgentOutcome is one terminal agent record in a Snapshot.
type AgentOutcome struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot is the full resumable state spec.md §4.8 names:
// "(completed, failed, abandoned, artifact map, file registry)".
type Snapshot struct {
	Completed []string                          `json:"completed"`
	Failed    []AgentOutcome                    `json:"failed"`
	Abandoned []AgentOutcome                     `json:"abandoned"`
	Artifacts map[string]runctx.Artifact         `json:"artifacts"`
	Files     map[string]*runctx.FileAttribution `json:"files"`
	Decisions []runctx.Decision                  `json:"decisions"`
	TakenAt   time.Time                          `json:"taken_at"`
}

// Store persists and restores Snapshots. The Orchestrator calls Save every
// K completions (default 2) and Load once at startup to decide whether to
// resume.
type Store interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context) (*Snapshot, bool, error)
}

// FinalContext is the run's closing summary (spec.md §6
// final_context.json): "artifacts, file registry, completed/failed/
// abandoned sets, timings".
type FinalContext struct {
	Artifacts map[string]runctx.Artifact         `json:"artifacts"`
	Files     map[string]*runctx.FileAttribution `json:"files"`
	Completed []string                           `json:"completed"`
	Failed    []AgentOutcome                     `json:"failed"`
	Abandoned []AgentOutcome                      `json:"abandoned"`
	StartedAt time.Time                          `json:"started_at"`
	EndedAt   time.Time                           `json:"ended_at"`
}

// marshalIndented is the single JSON-encoding seam both Store
// implementations and the final-context writer use, keeping the on-disk
// shape identical everywhere it's written.
func marshalIndented(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
