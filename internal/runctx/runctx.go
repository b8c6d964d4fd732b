// Package runctx defines the data model shared by every kernel component:
// the mutable run context, artifacts, agent results, and the workflow task
// description (spec.md §3). Types here are the single narrow boundary where
// "string-or-dict polymorphism" (spec.md §9) is forbidden — CompletedTask
// renders to one short string and nothing else crosses that seam.
package runctx

import (
	"fmt"
	"sync"
	"time"
)

// AgentTask describes one node of the workflow spec (spec.md §3, §6).
type AgentTask struct {
	ID               string
	RoleTemplateID   string
	DependsOn        []string
	MayParallelize   bool
	Priority         int
	ExpectedDuration time.Duration
	ExpectedDeliverables []string
	Critical         bool
}

// CompletedTask is the only representation of a finished agent's outcome
// that may appear in completed_tasks. It always renders as a short human
// string — never as a nested structure — per spec.md §3's invariant and the
// §9 rearchitecture note fixing the historical string-or-dict bug.
type CompletedTask struct {
	AgentID    string
	Success    bool
	FilesCount int
}

// String renders the completed task as the flat sentence CommunicationHub
// embeds into downstream prompts (spec.md §4.4 SummarizeCompleted).
func (c CompletedTask) String() string {
	status := "ok"
	if !c.Success {
		status = "fail"
	}
	return fmt.Sprintf("%s: %s (%d files)", c.AgentID, status, c.FilesCount)
}

// Artifact is a structured value one agent shares for others to consume
// (spec.md §3). Payload is intentionally `any` — the schemaless structured
// value — but Artifact itself never appears inside CompletedTask.
type Artifact struct {
	Key         string
	ProducerID  string
	Payload     any
	ContentType string
	Timestamp   time.Time
}

// ToolCallRecord is a short summary of one tool invocation made during an
// agent session, kept for AgentResult.ToolCalls.
type ToolCallRecord struct {
	Tool      string
	Arguments map[string]any
	Success   bool
	Summary   string
}

// AgentResult is the outcome of one agent invocation attempt (spec.md §3).
type AgentResult struct {
	AgentID      string
	Success      bool
	ResponseText string
	FilesCreated []string
	ToolCalls    []ToolCallRecord
	Duration     time.Duration
	Error        string
	Attempt      int
}

// FileAttribution tracks who produced and who modified a registered path
// (spec.md §4.4 RegisterFile).
type FileAttribution struct {
	Path      string
	Producer  string
	Modifiers []string
}

// Run is the mutable tuple threaded through one orchestration run (spec.md
// §3 "Run context"). Concurrent-safe: multiple agent sessions read/write it
// from within a wave.
//
// The artifacts map and per-agent file attributions named in spec.md §3 are
// owned by CommunicationHub (package hub), not duplicated here, so there is
// exactly one writer for each.
type Run struct {
	ProjectRoot  string
	Requirements map[string]any

	mu             sync.RWMutex
	completedTasks []CompletedTask
	decisions      []Decision
	currentAgent   string
}

// Decision records one record_decision tool call (spec.md §4.3 mandatory tools).
type Decision struct {
	AgentID   string
	Decision  string
	Rationale string
	Timestamp time.Time
}

// NewRun constructs an empty Run rooted at projectRoot.
func NewRun(projectRoot string, requirements map[string]any) *Run {
	return &Run{
		ProjectRoot:  projectRoot,
		Requirements: requirements,
	}
}

// CurrentAgent returns the agent id presently executing, set by the
// orchestrator before invoking AgentRunner.
func (r *Run) CurrentAgent() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentAgent
}

// SetCurrentAgent records which agent is about to run.
func (r *Run) SetCurrentAgent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentAgent = id
}

// AppendCompleted records a finished agent's short summary.
func (r *Run) AppendCompleted(c CompletedTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completedTasks = append(r.completedTasks, c)
}

// CompletedTasks returns a snapshot of every recorded completion.
func (r *Run) CompletedTasks() []CompletedTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CompletedTask, len(r.completedTasks))
	copy(out, r.completedTasks)
	return out
}

// RecordDecision appends a decision to the run's decision log.
func (r *Run) RecordDecision(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

// Decisions returns a snapshot of every recorded decision.
func (r *Run) Decisions() []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Decision, len(r.decisions))
	copy(out, r.decisions)
	return out
}
