// Package hub implements CommunicationHub (spec.md §4.4): the sole owner of
// the artifact map, file→producer attribution, per-agent result history, and
// the flat completed-task summary every prompt is built from.
package hub

import (
	"fmt"
	"sync"

	"swarmkit.dev/swarmkit/internal/runctx"
)

// Hub is the CommunicationHub. Zero value is not usable; build with New.
type Hub struct {
	mu sync.RWMutex

	results       map[string][]runctx.AgentResult // agentID -> history, latest last
	artifacts     map[string]runctx.Artifact      // key (possibly suffixed) -> artifact
	artifactSeq   map[string]int                  // base type -> count, for suffixing
	artifactOrder []string                        // sharing order, for ArtifactsByProducer
	files         map[string]*runctx.FileAttribution
	messages      []Message
}

// Message is one entry in the inter-agent message log.
type Message struct {
	From string
	To   string
	Body string
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{
		results:     make(map[string][]runctx.AgentResult),
		artifacts:   make(map[string]runctx.Artifact),
		artifactSeq: make(map[string]int),
		files:       make(map[string]*runctx.FileAttribution),
	}
}

// RecordResult stores an agent's outcome. Overwriting attempts are appended
// to history rather than discarded (spec.md §4.4 "overwrite on retry;
// previous attempt preserved in history").
func (h *Hub) RecordResult(r runctx.AgentResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[r.AgentID] = append(h.results[r.AgentID], r)
}

// LatestResult returns the most recent recorded result for agentID, if any.
func (h *Hub) LatestResult(agentID string) (runctx.AgentResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist := h.results[agentID]
	if len(hist) == 0 {
		return runctx.AgentResult{}, false
	}
	return hist[len(hist)-1], true
}

// History returns every recorded attempt for agentID, oldest first.
func (h *Hub) History(agentID string) []runctx.AgentResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist := h.results[agentID]
	out := make([]runctx.AgentResult, len(hist))
	copy(out, hist)
	return out
}

// ShareArtifact stores payload under artifactType. First write for a type
// wins the bare key; subsequent writes of the same type are stored under a
// suffixed key and reported as a warning (spec.md §4.4, §9 open-question
// decision: first-writer-wins over silent overwrite).
func (h *Hub) ShareArtifact(artifactType, producer string, payload any) (key string, warning string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.artifactSeq[artifactType]
	h.artifactSeq[artifactType] = n + 1

	key = artifactType
	if n > 0 {
		key = fmt.Sprintf("%s#%d", artifactType, n)
		warning = fmt.Sprintf("artifact type %q already shared; stored under %q", artifactType, key)
	}
	h.artifacts[key] = runctx.Artifact{
		Key:        key,
		ProducerID: producer,
		Payload:    payload,
	}
	h.artifactOrder = append(h.artifactOrder, key)
	return key, warning
}

// GetArtifact returns the payload stored under the bare type key, or nil if
// none has been shared yet.
func (h *Hub) GetArtifact(artifactType string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.artifacts[artifactType]
	if !ok {
		return nil, false
	}
	return a.Payload, true
}

// RegisterFile records producer as the author of path the first time it is
// seen; subsequent registrations append producer as a modifier rather than
// replacing the original author (spec.md §4.4 register_file).
func (h *Hub) RegisterFile(path, producer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	att, ok := h.files[path]
	if !ok {
		h.files[path] = &runctx.FileAttribution{Path: path, Producer: producer}
		return
	}
	if att.Producer == producer {
		return
	}
	for _, m := range att.Modifiers {
		if m == producer {
			return
		}
	}
	att.Modifiers = append(att.Modifiers, producer)
}

// FileAttribution returns the recorded attribution for path, if registered.
func (h *Hub) FileAttribution(path string) (runctx.FileAttribution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	att, ok := h.files[path]
	if !ok {
		return runctx.FileAttribution{}, false
	}
	return *att, true
}

// ArtifactsByProducer returns every artifact producer shared, in sharing
// order. GetArtifact is keyed by artifact_type, which producer isn't part
// of, so a prompt wanting "whatever a dependency produced" (spec.md
// §4.8(2d.iii) "artifacts matching a's declared interests") looks them up
// this way instead.
func (h *Hub) ArtifactsByProducer(producer string) []runctx.Artifact {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []runctx.Artifact
	for _, key := range h.artifactOrder {
		a := h.artifacts[key]
		if a.ProducerID == producer {
			out = append(out, a)
		}
	}
	return out
}

// AllArtifacts returns a snapshot of every shared artifact, keyed the same
// way ShareArtifact stored them. Used by the Orchestrator to build
// checkpoint.Snapshot and the closing final_context.json (spec.md §4.8, §6).
func (h *Hub) AllArtifacts() map[string]runctx.Artifact {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]runctx.Artifact, len(h.artifacts))
	for k, v := range h.artifacts {
		out[k] = v
	}
	return out
}

// AllFiles returns a snapshot of the full file->attribution registry, for
// the same checkpoint/final-context use as AllArtifacts.
func (h *Hub) AllFiles() map[string]*runctx.FileAttribution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*runctx.FileAttribution, len(h.files))
	for k, v := range h.files {
		cp := *v
		out[k] = &cp
	}
	return out
}

// RestoreArtifact seeds one artifact entry during checkpoint resume,
// bypassing the first-writer-wins suffixing ShareArtifact applies (the
// checkpoint already recorded the key the original write settled on).
func (h *Hub) RestoreArtifact(key string, a runctx.Artifact) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.artifacts[key]; !exists {
		h.artifactOrder = append(h.artifactOrder, key)
	}
	h.artifacts[key] = a
}

// RestoreFile seeds one file attribution during checkpoint resume.
func (h *Hub) RestoreFile(path string, att *runctx.FileAttribution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *att
	h.files[path] = &cp
}

// PostMessage appends one entry to the inter-agent message log.
func (h *Hub) PostMessage(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// MessagesTo returns every message addressed to agentID, in post order.
func (h *Hub) MessagesTo(agentID string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Message
	for _, m := range h.messages {
		if m.To == agentID {
			out = append(out, m)
		}
	}
	return out
}

// SummarizeCompleted renders completed as the flat sequence of short
// strings prompts are built from (spec.md §4.4 summarize_completed). Nested
// structures never cross this boundary — CompletedTask.String() is the only
// renderer.
func SummarizeCompleted(completed []runctx.CompletedTask) string {
	if len(completed) == 0 {
		return "No tasks completed yet."
	}
	var b []byte
	for i, c := range completed {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, []byte(c.String())...)
	}
	return string(b)
}
