// Package loopguard implements LoopDetector (spec.md §4.5): per-(agent,path)
// write-attempt accounting with a soft cap (emphasis) and hard cap
// (termination), plus a separate duplicate-reasoning-text tracker.
package loopguard

import (
	"fmt"
	"sync"
)

// Level is the admission decision loopguard returns for a write attempt.
type Level int

const (
	// Permit means attempts <= soft_cap; no special handling.
	Permit Level = iota
	// PermitWithEmphasis means soft_cap < attempts <= hard_cap: allow, but
	// the caller should tag the next prompt with the prior failure.
	PermitWithEmphasis
	// Detected means attempts > hard_cap: the agent's session must terminate.
	Detected
)

type key struct {
	agent string
	path  string
}

// Detector tracks write-attempt pressure and reasoning-text repetition.
type Detector struct {
	softCap int
	hardCap int
	reasoningCap int

	mu       sync.Mutex
	attempts map[key]int

	reasoningMu   sync.Mutex
	lastReasoning map[string]string
	reasoningRuns map[string]int
}

// New builds a Detector with the given soft/hard write-attempt caps
// (spec.md §4.5, defaults 2 and 4) and reasoning-text dedup cap.
func New(softCap, hardCap, reasoningCap int) *Detector {
	if softCap <= 0 {
		softCap = 2
	}
	if hardCap <= 0 {
		hardCap = 4
	}
	if reasoningCap <= 0 {
		reasoningCap = 3
	}
	return &Detector{
		softCap:       softCap,
		hardCap:       hardCap,
		reasoningCap:  reasoningCap,
		attempts:      make(map[key]int),
		lastReasoning: make(map[string]string),
		reasoningRuns: make(map[string]int),
	}
}

// RecordWriteAttempt increments the (agent, path) counter and returns the
// admission level for this attempt (spec.md §4.5, §4.3 step 8).
func (d *Detector) RecordWriteAttempt(agent, path string) Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key{agent: agent, path: path}
	d.attempts[k]++
	n := d.attempts[k]

	switch {
	case n <= d.softCap:
		return Permit
	case n <= d.hardCap:
		return PermitWithEmphasis
	default:
		return Detected
	}
}

// Attempts returns the current (agent, path) attempt count without mutating it.
func (d *Detector) Attempts(agent, path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[key{agent: agent, path: path}]
}

// ResetAgent clears every (agent, *) counter on completion or abandonment
// (spec.md §4.5 "Counter resets on agent completion or abandonment").
func (d *Detector) ResetAgent(agent string) {
	d.mu.Lock()
	for k := range d.attempts {
		if k.agent == agent {
			delete(d.attempts, k)
		}
	}
	d.mu.Unlock()

	d.reasoningMu.Lock()
	delete(d.lastReasoning, agent)
	delete(d.reasoningRuns, agent)
	d.reasoningMu.Unlock()
}

// LoopDetectedError describes a (agent, path) pair that exceeded hard_cap
// (spec.md §4.5). Nothing in this module returns it: the Invoker reports a
// Detected attempt as a toolerrors.LoopDetected ToolError instead.
type LoopDetectedError struct {
	Agent string
	Path  string
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("loop detected: agent %s exceeded write-attempt cap on %s", e.Agent, e.Path)
}

// RecordReasoning feeds one reasoning-text line for agent and reports
// whether it is a repeat of the immediately preceding line. When the same
// line repeats beyond reasoningCap times in a row, shouldShortCircuit is
// true, signalling the AgentRunner to end the session early (spec.md §4.5).
func (d *Detector) RecordReasoning(agent, line string) (isDuplicate, shouldShortCircuit bool) {
	d.reasoningMu.Lock()
	defer d.reasoningMu.Unlock()

	if d.lastReasoning[agent] == line && line != "" {
		d.reasoningRuns[agent]++
		isDuplicate = true
	} else {
		d.lastReasoning[agent] = line
		d.reasoningRuns[agent] = 1
	}
	shouldShortCircuit = d.reasoningRuns[agent] > d.reasoningCap
	return isDuplicate, shouldShortCircuit
}
