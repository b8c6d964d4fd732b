package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/agentrun"
	"swarmkit.dev/swarmkit/internal/checkpoint"
	"swarmkit.dev/swarmkit/internal/config"
	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/llmclient"
	"swarmkit.dev/swarmkit/internal/lockmgr"
	"swarmkit.dev/swarmkit/internal/loopguard"
	"swarmkit.dev/swarmkit/internal/orchestrator"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/synth"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolkit"
)

// harness bundles the kernel components an Orchestrator needs, all wired to
// a shared project root and a single scripted FakeClient. Every test task
// is built non-parallelizable so waves run strictly one agent at a time,
// keeping the FakeClient's scripted response order deterministic.
type harness struct {
	cfg      config.RunnerConfig
	run      *runctx.Run
	hub      *hub.Hub
	locks    *lockmgr.Coordinator
	loop     *loopguard.Detector
	synth    *synth.Synthesizer
	registry *toolkit.Registry
	invoker  *toolkit.Invoker
	store    checkpoint.Store
}

func newHarness(t *testing.T, root string) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectRoot = root
	cfg.MaxParallel = 2
	cfg.InterLaunchDelay = 0
	cfg.CheckpointEvery = 1

	registry := toolkit.NewRegistry()
	require.NoError(t, toolkit.RegisterMandatoryTools(registry, cfg.CommandTimeout))

	return &harness{
		cfg:      cfg,
		run:      runctx.NewRun(root, nil),
		hub:      hub.New(),
		locks:    lockmgr.New(cfg.LockTTL),
		loop:     loopguard.New(cfg.SoftCap, cfg.HardCap, cfg.ReasoningDedupCap),
		synth:    synth.New(cfg.ContentSynthesisFloor),
		registry: registry,
		invoker:  toolkit.NewInvoker(registry),
		store:    checkpoint.NewFileStore(root),
	}
}

func (h *harness) newOrchestrator(t *testing.T, tasks []runctx.AgentTask, fake llmclient.Client) *orchestrator.Orchestrator {
	t.Helper()
	runner := agentrun.New(fake, h.invoker, h.registry, agentrun.NewPacer(100000), telemetry.NewNoopLogger())
	o, err := orchestrator.New(h.cfg, tasks, h.run, h.hub, h.locks, h.loop, h.synth, h.invoker, h.registry, runner, h.store, telemetry.NewNoopLogger(), telemetry.NewNoopMetrics())
	require.NoError(t, err)
	return o
}

func completeTaskResponse(summary string) llmclient.Response {
	return llmclient.Response{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "complete_task", Arguments: map[string]any{"summary": summary}}}}
}

func loopingWriteResponses(path string, n int) []llmclient.Response {
	out := make([]llmclient.Response, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, llmclient.Response{
			ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": path}}},
		})
	}
	return out
}

func TestRunCompletesLinearWorkflow(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	tasks := []runctx.AgentTask{
		{ID: "a", RoleTemplateID: "analyst"},
		{ID: "b", RoleTemplateID: "builder", DependsOn: []string{"a"}},
	}
	fake := llmclient.NewFakeClient(completeTaskResponse("a done"), completeTaskResponse("b done"))
	o := h.newOrchestrator(t, tasks, fake)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.ElementsMatch(t, []string{"a", "b"}, result.Final.Completed)
	require.Empty(t, result.Final.Failed)
	require.Empty(t, result.Final.Abandoned)

	_, err = os.Stat(filepath.Join(root, checkpoint.FinalContextFilename))
	require.NoError(t, err)
}

func TestRunAbandonsWithDependentsWhenNoRecoveryApplies(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	tasks := []runctx.AgentTask{
		{ID: "a", RoleTemplateID: "analyst"},
		{ID: "b", RoleTemplateID: "builder", DependsOn: []string{"a"}},
	}
	// hard_cap defaults to 4: the 5th identical write attempt triggers
	// LoopDetected, which skips the retry budget and lands "a" in Failed.
	fake := llmclient.NewFakeClient(loopingWriteResponses("stuck.txt", 6)...)
	o := h.newOrchestrator(t, tasks, fake)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.ElementsMatch(t, []string{"a", "b"}, result.Final.Abandoned)
	require.Empty(t, result.Final.Completed)
}

func TestRunRecoversFailedAgentViaDirectSynthesis(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	tasks := []runctx.AgentTask{
		{ID: "a", RoleTemplateID: "analyst", ExpectedDeliverables: []string{"design.md"}},
		{ID: "b", RoleTemplateID: "builder", DependsOn: []string{"a"}},
	}
	responses := loopingWriteResponses("stuck.txt", 6)
	responses = append(responses, completeTaskResponse("b done"))
	fake := llmclient.NewFakeClient(responses...)
	o := h.newOrchestrator(t, tasks, fake)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.ElementsMatch(t, []string{"a", "b"}, result.Final.Completed)
	require.Empty(t, result.Final.Abandoned)

	att, ok := h.hub.FileAttribution("design.md")
	require.True(t, ok)
	require.Equal(t, "orchestrator", att.Producer)

	_, err = os.Stat(filepath.Join(root, "design.md"))
	require.NoError(t, err)
}

func TestRunHandsOffFailedAgentToConfiguredSubstitute(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)
	h.cfg.Handoffs = map[string]string{"a": "a-v2"}

	tasks := []runctx.AgentTask{
		{ID: "a", RoleTemplateID: "analyst"},
		{ID: "b", RoleTemplateID: "builder", DependsOn: []string{"a"}},
	}
	responses := loopingWriteResponses("stuck.txt", 6)
	responses = append(responses, completeTaskResponse("a-v2 done"), completeTaskResponse("b done"))
	fake := llmclient.NewFakeClient(responses...)
	o := h.newOrchestrator(t, tasks, fake)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.ElementsMatch(t, []string{"a-v2", "b"}, result.Final.Completed)
	require.Len(t, result.Final.Abandoned, 1)
	require.Equal(t, "a", result.Final.Abandoned[0].AgentID)
	require.Contains(t, result.Final.Abandoned[0].Reason, "a-v2")
}

func TestResumeSeedsGraphFromCheckpoint(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	require.NoError(t, h.store.Save(context.Background(), &checkpoint.Snapshot{
		Completed: []string{"a"},
		Artifacts: map[string]runctx.Artifact{},
		Files:     map[string]*runctx.FileAttribution{},
	}))

	tasks := []runctx.AgentTask{
		{ID: "a", RoleTemplateID: "analyst"},
		{ID: "b", RoleTemplateID: "builder", DependsOn: []string{"a"}},
	}
	fake := llmclient.NewFakeClient(completeTaskResponse("b done"))
	o := h.newOrchestrator(t, tasks, fake)

	require.NoError(t, o.Resume(context.Background()))
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.ElementsMatch(t, []string{"a", "b"}, result.Final.Completed)
	require.Len(t, fake.Calls(), 1) // only "b" actually invoked the LLM
}

func TestRunRespectsContextCancellation(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	tasks := []runctx.AgentTask{{ID: "a", RoleTemplateID: "analyst"}}
	fake := llmclient.NewFakeClient(completeTaskResponse("a done"))
	o := h.newOrchestrator(t, tasks, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, runErr := o.Run(ctx)
	require.NoError(t, runErr)
	require.Equal(t, 1, result.ExitCode)
}
