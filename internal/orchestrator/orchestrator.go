// Package orchestrator implements the Orchestrator (spec.md §4.8): the
// top-level loop that drives a DependencyGraph to completion, launching
// waves of AgentRunner sessions, recovering failed agents through handoff,
// direct synthesis, or abandonment, and checkpointing progress.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"swarmkit.dev/swarmkit/internal/agentrun"
	"swarmkit.dev/swarmkit/internal/checkpoint"
	"swarmkit.dev/swarmkit/internal/config"
	"swarmkit.dev/swarmkit/internal/depgraph"
	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/lockmgr"
	"swarmkit.dev/swarmkit/internal/loopguard"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/synth"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolkit"
)

// Result is what Run returns: the closing summary plus the process exit
// code spec.md §6 defines (0 on all-completed-or-safely-abandoned, non-zero
// on deadlock or an unrecovered critical abandonment).
type Result struct {
	ExitCode int
	Final    checkpoint.FinalContext
}

// Orchestrator owns the run's DependencyGraph and drives it to completion.
// Not safe to call Run concurrently from two goroutines on the same value.
type Orchestrator struct {
	cfg      config.RunnerConfig
	graph    *depgraph.Graph
	tasks    map[string]runctx.AgentTask
	run      *runctx.Run
	hub      *hub.Hub
	locks    *lockmgr.Coordinator
	loop     *loopguard.Detector
	synth    *synth.Synthesizer
	invoker  *toolkit.Invoker
	registry *toolkit.Registry
	runner   *agentrun.Runner
	store    checkpoint.Store
	logger   telemetry.Logger
	metrics  telemetry.Metrics

	critical map[string]bool

	mu               sync.Mutex
	completionsSince int
}

// New builds an Orchestrator for tasks, wiring every kernel component it
// drives. store may be nil to disable checkpointing entirely.
func New(
	cfg config.RunnerConfig,
	tasks []runctx.AgentTask,
	run *runctx.Run,
	h *hub.Hub,
	locks *lockmgr.Coordinator,
	loop *loopguard.Detector,
	syn *synth.Synthesizer,
	invoker *toolkit.Invoker,
	registry *toolkit.Registry,
	runner *agentrun.Runner,
	store checkpoint.Store,
	logger telemetry.Logger,
	metrics telemetry.Metrics,
) (*Orchestrator, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}

	nodes := make([]depgraph.Node, 0, len(tasks))
	byID := make(map[string]runctx.AgentTask, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, depgraph.Node{
			AgentID:        t.ID,
			DependsOn:      t.DependsOn,
			MayParallelize: t.MayParallelize,
			Priority:       t.Priority,
			Critical:       t.Critical,
		})
		byID[t.ID] = t
	}
	g, err := depgraph.New(nodes, cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build graph: %w", err)
	}

	critical := make(map[string]bool, len(cfg.CriticalAgents))
	for _, id := range cfg.CriticalAgents {
		critical[id] = true
	}
	for _, t := range tasks {
		if t.Critical {
			critical[t.ID] = true
		}
	}

	return &Orchestrator{
		cfg: cfg, graph: g, tasks: byID, run: run, hub: h, locks: locks, loop: loop,
		synth: syn, invoker: invoker, registry: registry, runner: runner, store: store,
		logger: logger, metrics: metrics, critical: critical,
	}, nil
}

// Resume loads the most recent checkpoint, if any, and seeds the graph and
// hub from it (spec.md §4.8 "Resumption loads the file, places recorded
// agents in their terminal sets, and continues from recompute_ready"). Safe
// to call even when no checkpoint exists; it is then a no-op.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	snap, ok, err := o.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load checkpoint: %w", err)
	}
	if !ok {
		return nil
	}

	for _, id := range snap.Completed {
		if err := o.graph.Restore(id, depgraph.Completed, ""); err != nil {
			return fmt.Errorf("orchestrator: restore %s: %w", id, err)
		}
		o.run.AppendCompleted(runctx.CompletedTask{AgentID: id, Success: true})
	}
	for _, f := range snap.Failed {
		if err := o.graph.Restore(f.AgentID, depgraph.Failed, f.Reason); err != nil {
			return fmt.Errorf("orchestrator: restore %s: %w", f.AgentID, err)
		}
	}
	for _, a := range snap.Abandoned {
		if err := o.graph.Restore(a.AgentID, depgraph.Abandoned, a.Reason); err != nil {
			return fmt.Errorf("orchestrator: restore %s: %w", a.AgentID, err)
		}
		o.run.AppendCompleted(runctx.CompletedTask{AgentID: a.AgentID, Success: false})
	}
	for key, art := range snap.Artifacts {
		o.hub.RestoreArtifact(key, art)
	}
	for path, att := range snap.Files {
		o.hub.RestoreFile(path, att)
	}
	for _, d := range snap.Decisions {
		o.run.RecordDecision(d)
	}

	o.logger.Info(ctx, "resumed from checkpoint",
		"completed", len(snap.Completed), "failed", len(snap.Failed), "abandoned", len(snap.Abandoned))
	return nil
}

// Run drives the graph to completion (spec.md §4.8 top-level algorithm).
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	startedAt := time.Now().UTC()

	for {
		for _, id := range o.graph.RecomputeReady() {
			o.loop.ResetAgent(id)
			o.logger.Warn(ctx, "agent abandoned by transitive failure", "agent", id)
		}

		snap := o.graph.Snapshot()
		if snap.Done() {
			break
		}
		if snap.Deadlocked() {
			o.logger.Error(ctx, "dependency graph deadlocked", "pending", snap.Pending)
			return o.finalize(ctx, startedAt, 1)
		}

		wave := o.graph.NextWave(o.cfg.MaxParallel)
		if len(wave) == 0 {
			o.logger.Error(ctx, "no ready agents but graph not done or deadlocked; aborting")
			return o.finalize(ctx, startedAt, 1)
		}
		for _, id := range wave {
			if err := o.graph.MarkRunning(id); err != nil {
				o.logger.Error(ctx, "mark running failed", "agent", id, "err", err.Error())
			}
		}

		o.launchWave(ctx, wave)

		if err := o.resolveFailed(ctx); err != nil {
			o.logger.Error(ctx, "recovery escalation failed", "err", err.Error())
			return o.finalize(ctx, startedAt, 1)
		}

		if ctx.Err() != nil {
			// launchWave already awaited every session in the wave above,
			// which is the grace period spec.md §5 describes — sessions
			// observe ctx cancellation through their own deadline-derived
			// context and return rather than being killed out from under
			// a held lock.
			return o.finalize(ctx, startedAt, 1)
		}
	}

	exitCode := 0
	if o.hasUnrecoveredCriticalAbandonment() {
		exitCode = 1
	}
	return o.finalize(ctx, startedAt, exitCode)
}

// launchWave runs every agent in wave concurrently, staggering launches by
// inter_launch_delay to smooth bursts against the shared rate limiter
// (spec.md §4.6 Pacing), and awaits the entire wave before returning (spec.md
// §4.8 step 2e).
func (o *Orchestrator) launchWave(ctx context.Context, wave []string) {
	var wg sync.WaitGroup
	for i, id := range wave {
		wg.Add(1)
		go func(id string, idx int) {
			defer wg.Done()
			if idx > 0 && o.cfg.InterLaunchDelay > 0 {
				select {
				case <-time.After(time.Duration(idx) * o.cfg.InterLaunchDelay):
				case <-ctx.Done():
				}
			}
			o.runOne(ctx, id)
		}(id, i)
	}
	wg.Wait()
}

// runOne runs one agent session to completion and records its outcome on
// the graph and hub.
func (o *Orchestrator) runOne(ctx context.Context, id string) {
	task := o.tasks[id]
	attempt := o.graph.Attempt(id) + 1

	ic := &toolkit.InvocationContext{
		Agent: id, Run: o.run, Hub: o.hub, Locks: o.locks, Loop: o.loop,
		Synth: o.synth, ProjectRoot: o.run.ProjectRoot, Logger: o.logger,
	}
	o.run.SetCurrentAgent(id)

	systemPrompt, userPrompt := o.buildPrompt(task, attempt)
	start := time.Now()
	result := o.runner.Run(ctx, ic, systemPrompt, userPrompt, attempt)
	o.metrics.RecordTimer("agent_session_duration", time.Since(start), "agent", id)

	o.loop.ResetAgent(id)
	o.locks.ReleaseAll(id)
	o.hub.RecordResult(result)

	if result.Success {
		if err := o.graph.Mark(id, depgraph.Outcome{Success: true}); err != nil {
			o.logger.Error(ctx, "mark completed failed", "agent", id, "err", err.Error())
			return
		}
		o.run.AppendCompleted(runctx.CompletedTask{AgentID: id, Success: true, FilesCount: len(result.FilesCreated)})
		o.metrics.IncCounter("agents_completed", 1, "agent", id)
		o.checkpointIfDue(ctx)
		return
	}

	loopDetected := strings.Contains(result.Error, "repeatedly failing to provide content for") ||
		strings.Contains(result.Error, "repeated the same reasoning text beyond the dedup cap")
	if err := o.graph.Mark(id, depgraph.Outcome{Success: false, Reason: result.Error, LoopDetected: loopDetected}); err != nil {
		o.logger.Error(ctx, "mark failure failed", "agent", id, "err", err.Error())
		return
	}
	o.metrics.IncCounter("agents_failed_attempt", 1, "agent", id)
	o.logger.Warn(ctx, "agent attempt failed", "agent", id, "attempt", attempt, "err", result.Error)
}

// resolveFailed applies recovery escalation (spec.md §4.8) to every agent
// currently sitting in the transient Failed state, one full wave at a time,
// before the next RecomputeReady call can cascade them to dependents.
func (o *Orchestrator) resolveFailed(ctx context.Context) error {
	for _, id := range o.graph.FailedAgents() {
		reason := o.graph.AbandonedReason(id)
		if err := o.escalate(ctx, id, reason); err != nil {
			return err
		}
	}
	return nil
}

// escalate applies the three-way recovery ladder to one failed agent:
// handoff, then direct synthesis, then abandon-with-dependents.
func (o *Orchestrator) escalate(ctx context.Context, id, reason string) error {
	if substituteID, ok := o.cfg.Handoffs[id]; ok && substituteID != "" {
		if _, alreadyInGraph := o.tasks[substituteID]; !alreadyInGraph {
			original := o.tasks[id]
			if err := o.graph.Substitute(id, substituteID, depgraph.Node{
				MayParallelize: original.MayParallelize,
				Priority:       original.Priority,
				Critical:       original.Critical,
			}); err != nil {
				return fmt.Errorf("orchestrator: handoff %s -> %s: %w", id, substituteID, err)
			}
			o.tasks[substituteID] = runctx.AgentTask{
				ID:                   substituteID,
				RoleTemplateID:       original.RoleTemplateID,
				DependsOn:            original.DependsOn,
				MayParallelize:       original.MayParallelize,
				Priority:             original.Priority,
				ExpectedDeliverables: original.ExpectedDeliverables,
				Critical:             original.Critical,
			}
			o.logger.Warn(ctx, "agent handed off", "agent", id, "substitute", substituteID, "reason", reason)
			o.metrics.IncCounter("agents_handed_off", 1, "agent", id)
			return nil
		}
	}

	if o.synthesizeDeliverables(ctx, id) {
		if err := o.graph.ForceComplete(id); err != nil {
			return fmt.Errorf("orchestrator: force-complete %s: %w", id, err)
		}
		o.run.AppendCompleted(runctx.CompletedTask{AgentID: id, Success: true})
		o.logger.Warn(ctx, "agent recovered via direct synthesis", "agent", id, "reason", reason)
		o.metrics.IncCounter("agents_synthesized", 1, "agent", id)
		return nil
	}

	abandoned := o.graph.Abandon(id, reason, true)
	for _, a := range abandoned {
		o.loop.ResetAgent(a)
	}
	o.logger.Error(ctx, "agent abandoned with dependents", "agent", id, "reason", reason, "cascaded", len(abandoned)-1)
	o.metrics.IncCounter("agents_abandoned", float64(len(abandoned)), "agent", id)
	return nil
}

// synthesizeDeliverables writes every one of id's expected_deliverables
// that does not already exist, through the normal tool pipeline, attributed
// to "orchestrator" (spec.md §4.8 "Direct synthesis"). Returns whether every
// declared deliverable now exists.
func (o *Orchestrator) synthesizeDeliverables(ctx context.Context, id string) bool {
	task := o.tasks[id]
	if len(task.ExpectedDeliverables) == 0 {
		return false
	}

	ic := &toolkit.InvocationContext{
		Agent: "orchestrator", Run: o.run, Hub: o.hub, Locks: o.locks, Loop: o.loop,
		Synth: o.synth, ProjectRoot: o.run.ProjectRoot, Logger: o.logger,
	}

	allDelivered := true
	for _, path := range task.ExpectedDeliverables {
		if _, ok := o.hub.FileAttribution(path); ok {
			continue
		}
		outcome := o.invoker.Invoke(ctx, ic, "write_file", map[string]any{"path": path, "content": ""}, 30*time.Second)
		if outcome.Err != nil {
			o.logger.Error(ctx, "direct synthesis failed", "agent", id, "path", path, "err", outcome.Err.Error())
			allDelivered = false
		}
	}
	return allDelivered
}

// checkpointIfDue saves a checkpoint once checkpoint_every completions have
// accumulated since the last save (spec.md §4.8 "Checkpointing").
func (o *Orchestrator) checkpointIfDue(ctx context.Context) {
	if o.store == nil || o.cfg.CheckpointEvery <= 0 {
		return
	}
	o.mu.Lock()
	o.completionsSince++
	due := o.completionsSince >= o.cfg.CheckpointEvery
	if due {
		o.completionsSince = 0
	}
	o.mu.Unlock()
	if !due {
		return
	}
	snap := o.snapshot()
	if err := o.store.Save(ctx, &snap); err != nil {
		o.logger.Error(ctx, "checkpoint save failed", "err", err.Error())
	}
}

func (o *Orchestrator) snapshot() checkpoint.Snapshot {
	var completed []string
	var failed, abandoned []checkpoint.AgentOutcome
	for _, id := range o.graph.Agents() {
		state, ok := o.graph.State(id)
		if !ok {
			continue
		}
		switch state {
		case depgraph.Completed:
			completed = append(completed, id)
		case depgraph.Failed:
			failed = append(failed, checkpoint.AgentOutcome{AgentID: id, Reason: o.graph.AbandonedReason(id)})
		case depgraph.Abandoned:
			abandoned = append(abandoned, checkpoint.AgentOutcome{AgentID: id, Reason: o.graph.AbandonedReason(id)})
		}
	}
	return checkpoint.Snapshot{
		Completed: completed,
		Failed:    failed,
		Abandoned: abandoned,
		Artifacts: o.hub.AllArtifacts(),
		Files:     o.hub.AllFiles(),
		Decisions: o.run.Decisions(),
		TakenAt:   time.Now().UTC(),
	}
}

// finalize writes final_context.json and returns the Result the caller
// turns into a process exit code (spec.md §6).
func (o *Orchestrator) finalize(ctx context.Context, startedAt time.Time, exitCode int) (Result, error) {
	snap := o.snapshot()
	fc := checkpoint.FinalContext{
		Artifacts: snap.Artifacts,
		Files:     snap.Files,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Abandoned: snap.Abandoned,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
	}
	if err := checkpoint.WriteFinalContext(o.run.ProjectRoot, &fc); err != nil {
		return Result{ExitCode: 1, Final: fc}, fmt.Errorf("orchestrator: write final context: %w", err)
	}
	o.logger.Info(ctx, "run finished",
		"exit_code", exitCode, "completed", len(fc.Completed), "failed", len(fc.Failed), "abandoned", len(fc.Abandoned))
	return Result{ExitCode: exitCode, Final: fc}, nil
}

// hasUnrecoveredCriticalAbandonment reports spec.md §6/§7's "critical
// abandonment" exit condition: a configured critical agent ended up
// Abandoned (handoff and direct synthesis both failed for it).
func (o *Orchestrator) hasUnrecoveredCriticalAbandonment() bool {
	for id := range o.critical {
		if state, ok := o.graph.State(id); ok && state == depgraph.Abandoned {
			return true
		}
	}
	return false
}

// buildPrompt renders the system and user prompt for one agent invocation
// (spec.md §4.8 step 2d). Role-template bodies are out of scope (spec.md
// Non-goals "prompt template bodies"); this renders the structural context
// every role template is expected to receive.
func (o *Orchestrator) buildPrompt(task runctx.AgentTask, attempt int) (system, user string) {
	system = fmt.Sprintf("You are agent %q, role template %q, working under project root %s.",
		task.ID, task.RoleTemplateID, o.run.ProjectRoot)

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task.ID)
	fmt.Fprintf(&b, "Completed work so far:\n%s\n\n", hub.SummarizeCompleted(o.run.CompletedTasks()))

	if len(task.ExpectedDeliverables) > 0 {
		fmt.Fprintf(&b, "Expected deliverables: %s\n\n", strings.Join(task.ExpectedDeliverables, ", "))
	}

	for _, dep := range task.DependsOn {
		for _, a := range o.hub.ArtifactsByProducer(dep) {
			fmt.Fprintf(&b, "Artifact from %s (%s): %v\n", dep, a.Key, a.Payload)
		}
	}

	if attempt > 1 {
		if prior, ok := o.hub.LatestResult(task.ID); ok && prior.Error != "" {
			fmt.Fprintf(&b, "\nPrevious attempt failed: %s\nAddress this before calling complete_task.\n", prior.Error)
		}
	}

	return system, b.String()
}
