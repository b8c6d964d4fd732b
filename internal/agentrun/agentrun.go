// Package agentrun implements AgentRunner (spec.md §4.6): the session loop
// that drives one agent's chat-with-tools conversation from its initial
// prompt through to an AgentResult, dispatching every tool-use request
// through toolkit.Invoker and enforcing the kernel's budget, timeout,
// backoff, and pacing rules.
package agentrun

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"swarmkit.dev/swarmkit/internal/llmclient"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolkit"
)

// Defaults mirror spec.md §4.6's stated limits.
const (
	DefaultToolCallBudget  = 30
	DefaultWallClock       = 5 * time.Minute
	DefaultInterLaunchGap  = 3 * time.Second
	DefaultMaxRetries      = 5
	DefaultBackoffBase     = 1 * time.Second
	DefaultBackoffCap      = 60 * time.Second
	wrapUpThreshold        = 30 * time.Second
	wrapUpMessage          = "Time is nearly up for this task. Finish the current file and call complete_task now with a summary of what was accomplished."
)

// Runner drives one agent's chat-with-tools session to completion.
type Runner struct {
	Client   llmclient.Client
	Invoker  *toolkit.Invoker
	Pacer    *Pacer
	Logger   telemetry.Logger
	Registry *toolkit.Registry

	ToolCallBudget int
	WallClock      time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// New builds a Runner with spec.md §4.6 defaults applied to any zero field.
func New(client llmclient.Client, invoker *toolkit.Invoker, registry *toolkit.Registry, pacer *Pacer, logger telemetry.Logger) *Runner {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if pacer == nil {
		pacer = NewPacer(20)
	}
	return &Runner{
		Client:         client,
		Invoker:        invoker,
		Pacer:          pacer,
		Logger:         logger,
		Registry:       registry,
		ToolCallBudget: DefaultToolCallBudget,
		WallClock:      DefaultWallClock,
		MaxRetries:     DefaultMaxRetries,
		BackoffBase:    DefaultBackoffBase,
		BackoffCap:     DefaultBackoffCap,
	}
}

// Run opens a session for one agent and drives it to an AgentResult (spec.md
// §4.6 run(agent_id, prompt, ctx) -> AgentResult). attempt is the 1-based
// retry count, recorded on the result for the orchestrator's escalation
// ladder.
func (r *Runner) Run(ctx context.Context, ic *toolkit.InvocationContext, systemPrompt, userPrompt string, attempt int) runctx.AgentResult {
	start := time.Now()
	deadline := start.Add(r.WallClock)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result := runctx.AgentResult{AgentID: ic.Agent, Attempt: attempt}

	messages := []llmclient.Message{{Role: llmclient.RoleUser, Text: userPrompt}}
	tools := toolDefs(r.Registry)

	warnedWrapUp := false
	calls := 0
	for calls < r.ToolCallBudget {
		if remaining := time.Until(deadline); remaining <= 0 {
			result.Success = false
			result.Error = "wall-clock timeout before completion"
			result.Duration = time.Since(start)
			return result
		} else if remaining < wrapUpThreshold && !warnedWrapUp {
			messages = append(messages, llmclient.Message{Role: llmclient.RoleUser, Text: wrapUpMessage})
			warnedWrapUp = true
		}

		resp, err := r.completeWithBackoff(ctx, &llmclient.Request{System: systemPrompt, Messages: messages, Tools: tools})
		if err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("transport error: %v", err)
			result.Duration = time.Since(start)
			return result
		}

		if resp.Text != "" {
			result.ResponseText = resp.Text
		}
		messages = append(messages, llmclient.Message{Role: llmclient.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})

		if ic.Loop != nil {
			if _, shortCircuit := ic.Loop.RecordReasoning(ic.Agent, resp.Text); shortCircuit {
				result.Success = false
				result.Error = "agent repeated the same reasoning text beyond the dedup cap"
				result.Duration = time.Since(start)
				return result
			}
		}

		if len(resp.ToolCalls) == 0 {
			// No tool call: treat the terminal text as the fallback
			// completion signal (spec.md §4.6 "complete_task is
			// authoritative; fall back to terminal text").
			result.Success = true
			result.Duration = time.Since(start)
			return result
		}

		toolResults := make([]llmclient.ToolResult, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls++
			toolResult, done, completeOK := r.dispatch(ctx, ic, tc)
			toolResults = append(toolResults, toolResult)
			result.ToolCalls = append(result.ToolCalls, runctx.ToolCallRecord{
				Tool:      tc.Name,
				Arguments: tc.Arguments,
				Success:   toolResult.IsError == false,
				Summary:   toolResult.Content,
			})
			if toolResult.IsError && isLoopDetected(toolResult.Content) {
				result.Success = false
				result.Error = toolResult.Content
				result.Duration = time.Since(start)
				return result
			}
			if tc.Name == "write_file" && toolResult.IsError == false {
				if p, ok := tc.Arguments["path"].(string); ok && p != "" {
					result.FilesCreated = append(result.FilesCreated, p)
				}
			}
			if done {
				result.Success = completeOK
				result.Duration = time.Since(start)
				return result
			}
		}
		messages = append(messages, llmclient.Message{Role: llmclient.RoleTool, ToolResults: toolResults})
	}

	result.Success = false
	result.Error = fmt.Sprintf("tool-call budget of %d exhausted before completion", r.ToolCallBudget)
	result.Duration = time.Since(start)
	return result
}

// dispatch invokes one tool call through the Invoker and reports whether
// this call is the session's terminal complete_task.
func (r *Runner) dispatch(ctx context.Context, ic *toolkit.InvocationContext, tc llmclient.ToolCall) (res llmclient.ToolResult, done bool, completeOK bool) {
	outcome := r.Invoker.Invoke(ctx, ic, tc.Name, tc.Arguments, 30*time.Second)
	if outcome.Err != nil {
		return llmclient.ToolResult{ToolCallID: tc.ID, Content: outcome.Err.Error(), IsError: true}, false, false
	}
	content := fmt.Sprintf("%v", outcome.Output)
	if tc.Name == "complete_task" {
		return llmclient.ToolResult{ToolCallID: tc.ID, Content: content}, true, true
	}
	return llmclient.ToolResult{ToolCallID: tc.ID, Content: content}, false, false
}

// completeWithBackoff gates the call on the process-wide Pacer, then issues
// it, retrying transport errors with exponential backoff plus jitter, capped
// at r.BackoffCap (spec.md §4.6 "Resilience", grounded on the teacher's
// AdaptiveRateLimiter retry loop). A 429/rate-limit response pauses the
// process-wide Pacer and retries indefinitely on its own counter — it never
// consumes the session's bounded retry budget (spec.md §7 "Rate-limit: 429
// or equivalent → global pause; never counted against the session's retry
// budget").
func (r *Runner) completeWithBackoff(ctx context.Context, req *llmclient.Request) (*llmclient.Response, error) {
	var lastErr error
	rateLimitStreak := 0
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if err := r.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := r.Client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if isRateLimited(err) {
			delay := r.backoffDelay(rateLimitStreak)
			rateLimitStreak++
			r.Logger.Warn(ctx, "llm rate limited, pausing", "delay", delay.String(), "err", err.Error())
			r.Pacer.Pause(delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			attempt-- // does not count against the retry budget
			continue
		}
		if attempt == r.MaxRetries {
			break
		}
		delay := r.backoffDelay(attempt)
		r.Logger.Warn(ctx, "llm transport error, retrying", "attempt", attempt, "delay", delay.String(), "err", err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *Runner) backoffDelay(attempt int) time.Duration {
	base := r.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	backoffCap := r.BackoffCap
	if backoffCap <= 0 {
		backoffCap = DefaultBackoffCap
	}
	d := base << uint(attempt)
	if d <= 0 || d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// isRateLimited reports whether err looks like a provider 429/throttle
// response. Adapters return these wrapped as plain errors (no adapter in
// this module exposes a typed rate-limit error), so detection is
// string-based, same as the signal the teacher's AdaptiveRateLimiter reads
// off the raw provider error.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

func toolDefs(registry *toolkit.Registry) []llmclient.ToolDef {
	if registry == nil {
		return nil
	}
	specs := registry.Catalog()
	defs := make([]llmclient.ToolDef, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, llmclient.ToolDef{Name: s.Name, Description: s.Description, ParamSchema: s.ParamSchema})
	}
	return defs
}

// isLoopDetected recognizes the toolerrors message the Invoker returns when
// the LoopDetector escalates to Detected (spec.md §4.5, §4.6): the runner
// terminates the session rather than feeding the agent another retry.
func isLoopDetected(msg string) bool {
	return strings.Contains(msg, "repeatedly failing to provide content for")
}
