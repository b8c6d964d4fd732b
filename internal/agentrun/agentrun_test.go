package agentrun_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/agentrun"
	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/llmclient"
	"swarmkit.dev/swarmkit/internal/loopguard"
	"swarmkit.dev/swarmkit/internal/lockmgr"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/synth"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolkit"
)

func newHarness(t *testing.T, root string) (*toolkit.Invoker, *toolkit.Registry, *toolkit.InvocationContext) {
	t.Helper()
	registry := toolkit.NewRegistry()
	require.NoError(t, toolkit.RegisterMandatoryTools(registry, 5*time.Second))
	ic := &toolkit.InvocationContext{
		Agent:       "agent-a",
		Run:         runctx.NewRun(root, nil),
		Hub:         hub.New(),
		Locks:       lockmgr.New(5 * time.Minute),
		Loop:        loopguard.New(2, 4, 3),
		Synth:       synth.New(512),
		ProjectRoot: root,
		Logger:      telemetry.NewNoopLogger(),
	}
	return toolkit.NewInvoker(registry), registry, ic
}

func TestRunCompletesOnCompleteTaskCall(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	fake := llmclient.NewFakeClient(llmclient.Response{
		ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "complete_task", Arguments: map[string]any{"summary": "wrote the readme"}}},
	})

	runner := agentrun.New(fake, inv, registry, agentrun.NewPacer(1000), telemetry.NewNoopLogger())
	result := runner.Run(context.Background(), ic, "you are an agent", "do the task", 1)

	require.True(t, result.Success)
	require.Empty(t, result.Error)
	require.Len(t, fake.Calls(), 1)
}

func TestRunFallsBackToTerminalTextWithoutCompleteTask(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	fake := llmclient.NewFakeClient(llmclient.Response{Text: "all done, no more tools needed"})
	runner := agentrun.New(fake, inv, registry, agentrun.NewPacer(1000), telemetry.NewNoopLogger())
	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.True(t, result.Success)
	require.Equal(t, "all done, no more tools needed", result.ResponseText)
}

func TestRunTerminatesOnLoopDetection(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	responses := make([]llmclient.Response, 0, 6)
	for i := 0; i < 6; i++ {
		responses = append(responses, llmclient.Response{
			ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": "stuck.go"}}},
		})
	}
	fake := llmclient.NewFakeClient(responses...)
	runner := agentrun.New(fake, inv, registry, agentrun.NewPacer(1000), telemetry.NewNoopLogger())
	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.False(t, result.Success)
	require.Contains(t, result.Error, "repeatedly failing to provide content for")
}

func TestRunExhaustsToolCallBudget(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	var responses []llmclient.Response
	for i := 0; i < agentrun.DefaultToolCallBudget+2; i++ {
		responses = append(responses, llmclient.Response{
			ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "record_decision", Arguments: map[string]any{"decision": "keep going", "rationale": "still working"}}},
		})
	}
	fake := llmclient.NewFakeClient(responses...)
	runner := agentrun.New(fake, inv, registry, agentrun.NewPacer(10000), telemetry.NewNoopLogger())
	runner.ToolCallBudget = 3
	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.False(t, result.Success)
	require.Contains(t, result.Error, "tool-call budget")
}

func TestPacerPauseDelaysSubsequentWait(t *testing.T) {
	p := agentrun.NewPacer(6000)
	p.Pause(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunShortCircuitsOnRepeatedReasoningText(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	var responses []llmclient.Response
	for i := 0; i < 6; i++ {
		responses = append(responses, llmclient.Response{
			Text:      "thinking about how to proceed",
			ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "record_decision", Arguments: map[string]any{"decision": "keep going", "rationale": "still working"}}},
		})
	}
	fake := llmclient.NewFakeClient(responses...)
	runner := agentrun.New(fake, inv, registry, agentrun.NewPacer(10000), telemetry.NewNoopLogger())
	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.False(t, result.Success)
	require.Contains(t, result.Error, "repeated the same reasoning text")
	// The reasoning cap (3) should cut the session off well before the
	// tool-call budget ever comes into play.
	require.Less(t, len(fake.Calls()), agentrun.DefaultToolCallBudget)
}

// errorScriptClient returns a scripted sequence of errors before finally
// succeeding, to exercise completeWithBackoff's retry/rate-limit paths
// without a real provider.
type errorScriptClient struct {
	mu    sync.Mutex
	errs  []error
	final llmclient.Response
	calls int
}

func (c *errorScriptClient) Complete(_ context.Context, _ *llmclient.Request) (*llmclient.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return &c.final, nil
}

func TestCompleteWithBackoffDoesNotCountRateLimitsAgainstRetryBudget(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	errs := make([]error, 0, 10)
	for i := 0; i < 10; i++ {
		errs = append(errs, fmt.Errorf("provider returned 429 too many requests"))
	}
	client := &errorScriptClient{
		errs:  errs,
		final: llmclient.Response{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "complete_task", Arguments: map[string]any{"summary": "done"}}}},
	}

	runner := agentrun.New(client, inv, registry, agentrun.NewPacer(100000), telemetry.NewNoopLogger())
	runner.MaxRetries = 2
	runner.BackoffBase = time.Millisecond
	runner.BackoffCap = 5 * time.Millisecond

	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.True(t, result.Success, "10 rate-limit errors exceed MaxRetries=2 but must never be counted against the budget")
}

func TestCompleteWithBackoffStillExhaustsBudgetOnNonRateLimitErrors(t *testing.T) {
	root := t.TempDir()
	inv, registry, ic := newHarness(t, root)

	errs := make([]error, 0, 5)
	for i := 0; i < 5; i++ {
		errs = append(errs, fmt.Errorf("transport reset by peer"))
	}
	client := &errorScriptClient{
		errs:  errs,
		final: llmclient.Response{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "complete_task", Arguments: map[string]any{"summary": "done"}}}},
	}

	runner := agentrun.New(client, inv, registry, agentrun.NewPacer(100000), telemetry.NewNoopLogger())
	runner.MaxRetries = 2
	runner.BackoffBase = time.Millisecond
	runner.BackoffCap = 5 * time.Millisecond

	result := runner.Run(context.Background(), ic, "sys", "do the task", 1)

	require.False(t, result.Success)
	require.Contains(t, result.Error, "transport error")
}
