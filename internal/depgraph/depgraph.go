// Package depgraph implements DependencyGraph (spec.md §4.7): the
// pending/ready/running/completed/failed/abandoned state machine that
// tracks which agents are eligible to run given a workflow spec's
// depends_on edges, and hands the Orchestrator deterministic waves.
package depgraph

import (
	"fmt"
	"sort"
)

// State is the set an agent currently occupies. Every agent is in exactly
// one State at any time (spec.md §3 "DependencyGraph state" invariant).
type State int

const (
	Pending State = iota
	Ready
	Running
	Completed
	Failed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Node is one agent task tracked by the graph (spec.md §3 "Workflow spec").
type Node struct {
	AgentID        string
	DependsOn      []string
	MayParallelize bool
	Priority       int
	Depth          int
	Critical       bool

	state        State
	attempt      int
	abandonedWhy string
}

// Graph is the DependencyGraph. Not concurrency-safe on its own — the
// Orchestrator owns it and calls into it only between waves (spec.md §4.8
// step 2e: "await the entire wave before recompute_ready").
type Graph struct {
	nodes      map[string]*Node
	order      []string // insertion order, for stable depth computation
	maxRetries int
}

// New builds a Graph from nodes, computing each node's depth (longest path
// from a root) for the tie-break rule. maxRetries is the retry budget
// before a failed agent is abandoned (spec.md §4.7, default 2).
func New(nodes []Node, maxRetries int) (*Graph, error) {
	if maxRetries < 0 {
		maxRetries = 2
	}
	g := &Graph{nodes: make(map[string]*Node, len(nodes)), maxRetries: maxRetries}
	for i := range nodes {
		n := nodes[i]
		n.state = Pending
		if _, dup := g.nodes[n.AgentID]; dup {
			return nil, fmt.Errorf("depgraph: duplicate agent id %q", n.AgentID)
		}
		g.nodes[n.AgentID] = &n
		g.order = append(g.order, n.AgentID)
	}
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("depgraph: agent %q depends on unknown agent %q", id, dep)
			}
		}
	}
	if err := computeDepths(g); err != nil {
		return nil, err
	}
	return g, nil
}

// computeDepths assigns each node's depth as 1 + max(depth of its
// dependencies), detecting cycles (workflowspec validates acyclicity ahead
// of scheduling, but depgraph never trusts that blindly).
func computeDepths(g *Graph) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	mark := make(map[string]int, len(g.nodes))
	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		switch mark[id] {
		case done:
			return g.nodes[id].Depth, nil
		case visiting:
			return 0, fmt.Errorf("depgraph: cycle detected at agent %q", id)
		}
		mark[id] = visiting
		depth := 0
		for _, dep := range g.nodes[id].DependsOn {
			d, err := visit(dep)
			if err != nil {
				return 0, err
			}
			if d+1 > depth {
				depth = d + 1
			}
		}
		g.nodes[id].Depth = depth
		mark[id] = done
		return depth, nil
	}
	for _, id := range g.order {
		if _, err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Outcome is what mark() records for an agent leaving Running. LoopDetected
// skips the retry budget entirely (spec.md §4.8 "On failure beyond budget
// or LoopDetected: escalate recovery") — the agent lands directly in
// Failed rather than re-entering Pending for another attempt.
type Outcome struct {
	Success      bool
	Reason       string
	LoopDetected bool
}

// RecomputeReady moves every Pending agent whose dependencies are all
// Completed into Ready, and abandons (with reason "transitive failure") any
// Pending agent with an Abandoned dependency (spec.md §4.7 recompute_ready).
// Returns the agent ids newly abandoned this call, for the Orchestrator to
// cascade.
func (g *Graph) RecomputeReady() []string {
	var newlyAbandoned []string
	changed := true
	for changed {
		changed = false
		for _, id := range g.order {
			n := g.nodes[id]
			if n.state != Pending {
				continue
			}
			if _, ok := g.firstAbandonedDependency(n); ok {
				n.state = Abandoned
				n.abandonedWhy = "transitive failure"
				newlyAbandoned = append(newlyAbandoned, id)
				changed = true
				continue
			}
			if g.allCompleted(n.DependsOn) {
				n.state = Ready
				changed = true
			}
		}
	}
	return newlyAbandoned
}

func (g *Graph) firstAbandonedDependency(n *Node) (string, bool) {
	for _, dep := range n.DependsOn {
		if g.nodes[dep].state == Abandoned {
			return dep, true
		}
	}
	return "", false
}

func (g *Graph) allCompleted(deps []string) bool {
	for _, dep := range deps {
		if g.nodes[dep].state != Completed {
			return false
		}
	}
	return true
}

// NextWave returns up to maxParallel Ready agents to launch concurrently
// (spec.md §4.7 next_wave). If the highest-priority Ready agent does not
// allow parallelization, the wave contains only that agent. The returned
// agents are ordered by the tie-break rule (depth ascending, then
// priority, then agent_id lexicographic) but are NOT yet marked Running —
// callers must call MarkRunning for each before launching it.
func (g *Graph) NextWave(maxParallel int) []string {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	ready := g.readySortedByTieBreak()
	if len(ready) == 0 {
		return nil
	}
	head := g.nodes[ready[0]]
	if !head.MayParallelize {
		return ready[:1]
	}
	wave := make([]string, 0, maxParallel)
	for _, id := range ready {
		if !g.nodes[id].MayParallelize {
			break
		}
		wave = append(wave, id)
		if len(wave) == maxParallel {
			break
		}
	}
	if len(wave) == 0 {
		return ready[:1]
	}
	return wave
}

func (g *Graph) readySortedByTieBreak() []string {
	var ids []string
	for _, id := range g.order {
		if g.nodes[id].state == Ready {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.AgentID < b.AgentID
	})
	return ids
}

// MarkRunning transitions a Ready agent into Running. Called by the
// Orchestrator when it launches a wave.
func (g *Graph) MarkRunning(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("depgraph: unknown agent %q", id)
	}
	if n.state != Ready {
		return fmt.Errorf("depgraph: agent %q is %s, not ready", id, n.state)
	}
	n.state = Running
	return nil
}

// Mark records the outcome of a Running agent (spec.md §4.7 mark(agent,
// outcome)). On failure within the retry budget the agent returns to
// Pending, picked up on the next RecomputeReady call. On failure beyond
// budget (or immediately, if LoopDetected) the agent lands in Failed — a
// transient state the Orchestrator must resolve via ForceComplete,
// Substitute, or Abandon before the next RecomputeReady call, so that
// recovery escalation (spec.md §4.8) runs before transitive-failure
// cascade, not after it.
func (g *Graph) Mark(id string, outcome Outcome) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("depgraph: unknown agent %q", id)
	}
	if n.state != Running {
		return fmt.Errorf("depgraph: agent %q is %s, not running", id, n.state)
	}
	if outcome.Success {
		n.state = Completed
		return nil
	}
	n.attempt++
	if !outcome.LoopDetected && n.attempt <= g.maxRetries {
		n.state = Pending
		return nil
	}
	n.state = Failed
	n.abandonedWhy = outcome.Reason
	return nil
}

// ForceComplete transitions a Failed agent to Completed. Used when direct
// synthesis (spec.md §4.8 "Direct synthesis") has delivered every expected
// deliverable on the agent's behalf, so its dependents may proceed as if
// it had succeeded normally.
func (g *Graph) ForceComplete(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("depgraph: unknown agent %q", id)
	}
	if n.state != Failed {
		return fmt.Errorf("depgraph: agent %q is %s, not failed", id, n.state)
	}
	n.state = Completed
	n.abandonedWhy = ""
	return nil
}

// Substitute implements the "Handoff" recovery step (spec.md §4.8): failedID
// must be Failed. A new node is inserted in Ready state, every existing
// node that depends on failedID is rewired to depend on the substitute
// instead, and failedID is marked Abandoned with reason "handed off to
// <newID>" — terminal, but no longer blocking anyone since its dependents
// now point elsewhere.
func (g *Graph) Substitute(failedID, newID string, node Node) error {
	failed, ok := g.nodes[failedID]
	if !ok {
		return fmt.Errorf("depgraph: unknown agent %q", failedID)
	}
	if failed.state != Failed {
		return fmt.Errorf("depgraph: agent %q is %s, not failed", failedID, failed.state)
	}
	if _, dup := g.nodes[newID]; dup {
		return fmt.Errorf("depgraph: substitute id %q already tracked", newID)
	}

	node.AgentID = newID
	node.state = Ready
	node.Depth = failed.Depth
	g.nodes[newID] = &node
	g.order = append(g.order, newID)

	for _, id := range g.order {
		if id == newID {
			continue
		}
		n := g.nodes[id]
		for i, dep := range n.DependsOn {
			if dep == failedID {
				n.DependsOn[i] = newID
			}
		}
	}

	failed.state = Abandoned
	failed.abandonedWhy = fmt.Sprintf("handed off to %s", newID)
	return nil
}

// Restore force-sets id's state during checkpoint resume (spec.md §4.8
// "Resumption loads the file, places recorded agents in their terminal
// sets"). Only valid before the first RecomputeReady call of a resumed run.
func (g *Graph) Restore(id string, state State, reason string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("depgraph: unknown agent %q", id)
	}
	n.state = state
	n.abandonedWhy = reason
	return nil
}

// Attempt returns how many times id has left Running on failure so far.
func (g *Graph) Attempt(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return n.attempt
}

// FailedAgents returns every agent currently in the transient Failed state,
// in declaration order, for the Orchestrator's recovery-escalation pass.
func (g *Graph) FailedAgents() []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].state == Failed {
			out = append(out, id)
		}
	}
	return out
}

// State returns the current state of id.
func (g *Graph) State(id string) (State, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return 0, false
	}
	return n.state, true
}

// AbandonedReason returns why id was abandoned, if it was.
func (g *Graph) AbandonedReason(id string) string {
	n, ok := g.nodes[id]
	if !ok {
		return ""
	}
	return n.abandonedWhy
}

// Dependents returns every agent whose depends_on includes id, transitively.
func (g *Graph) Dependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(target string) {
		for _, other := range g.order {
			if seen[other] {
				continue
			}
			for _, dep := range g.nodes[other].DependsOn {
				if dep == target {
					seen[other] = true
					walk(other)
					break
				}
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for _, other := range g.order {
		if seen[other] {
			out = append(out, other)
		}
	}
	return out
}

// Abandon force-transitions id (and, if cascade is true, its transitive
// dependents) to Abandoned with reason. Used by the Orchestrator's
// "abandon with dependents" recovery step (spec.md §4.8).
func (g *Graph) Abandon(id, reason string, cascade bool) []string {
	abandoned := []string{}
	if n, ok := g.nodes[id]; ok && n.state != Abandoned {
		n.state = Abandoned
		n.abandonedWhy = reason
		abandoned = append(abandoned, id)
	}
	if cascade {
		for _, dep := range g.Dependents(id) {
			if n := g.nodes[dep]; n.state != Abandoned {
				n.state = Abandoned
				n.abandonedWhy = "transitive failure"
				abandoned = append(abandoned, dep)
			}
		}
	}
	return abandoned
}

// Counts summarizes the graph's state sets, used for the deadlock check
// (spec.md §4.8 step 2b) and the Done condition.
type Counts struct {
	Pending, Ready, Running, Completed, Failed, Abandoned int
}

// Snapshot returns the current Counts across every tracked agent.
func (g *Graph) Snapshot() Counts {
	var c Counts
	for _, id := range g.order {
		switch g.nodes[id].state {
		case Pending:
			c.Pending++
		case Ready:
			c.Ready++
		case Running:
			c.Running++
		case Completed:
			c.Completed++
		case Failed:
			c.Failed++
		case Abandoned:
			c.Abandoned++
		}
	}
	return c
}

// Done reports whether pending ∪ ready ∪ running is empty (spec.md §4.8
// step 2's loop condition).
func (c Counts) Done() bool {
	return c.Pending == 0 && c.Ready == 0 && c.Running == 0
}

// Deadlocked reports the §4.8 step 2b condition: nothing ready or running
// but agents remain pending.
func (c Counts) Deadlocked() bool {
	return c.Ready == 0 && c.Running == 0 && c.Pending > 0
}

// Node returns a copy of the tracked node for inspection (prompt-building,
// critical-path checks), or false if id is unknown.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	return cp, true
}

// Agents returns every tracked agent id in declaration order.
func (g *Graph) Agents() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
