package toolkit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"swarmkit.dev/swarmkit/internal/runctx"
)

// RegisterMandatoryTools declares the minimum tool surface spec.md §4.3
// requires: write_file, read_file, run_command, record_decision,
// share_artifact, verify_deliverables, dependency_check, complete_task.
func RegisterMandatoryTools(r *Registry, defaultCommandTimeout time.Duration) error {
	tools := []struct {
		spec    *Spec
		aliases []string
	}{
		{writeFileSpec(), []string{"write_file_tool"}},
		{readFileSpec(), []string{"read_file_tool"}},
		{runCommandSpec(defaultCommandTimeout), []string{"run_command_tool", "execute_command"}},
		{recordDecisionSpec(), []string{"record_decision_tool"}},
		{shareArtifactSpec(), []string{"share_artifact_tool"}},
		{verifyDeliverablesSpec(), nil},
		{dependencyCheckSpec(), nil},
		{completeTaskSpec(), []string{"complete_task_tool", "finish_task"}},
	}
	for _, t := range tools {
		if err := r.Register(t.spec, t.aliases...); err != nil {
			return fmt.Errorf("toolkit: register %s: %w", t.spec.Name, err)
		}
	}
	return nil
}

func writeFileSpec() *Spec {
	return &Spec{
		Name:        "write_file",
		Description: "Write content to a file at path, creating parent directories as needed.",
		Properties:  []string{"path", "content", "reasoning"},
		Required:    []string{"path", "content"},
		Defaults:    map[string]any{"content": ""},
		Mutating:    true,
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      stringSchema("file path, relative to the project root"),
				"content":   stringSchema("file content to write"),
				"reasoning": stringSchema("optional rationale shown in the next prompt on retry"),
			},
			"required": []string{"path"},
		}),
		Handler: handleWriteFile,
	}
}

type writeFileArgs struct {
	Path    string `arg:"path"`
	Content string `arg:"content"`
}

func handleWriteFile(_ context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	var a writeFileArgs
	if err := bindStruct(args, &a); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", a.Path, err)
	}
	return map[string]any{"path": a.Path, "bytes_written": len(a.Content)}, nil
}

func readFileSpec() *Spec {
	return &Spec{
		Name:        "read_file",
		Description: "Read and return the content of a file at path.",
		Properties:  []string{"path"},
		Required:    []string{"path"},
		ParamSchema: mustJSON(map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": stringSchema("file path, relative to the project root")},
			"required":   []string{"path"},
		}),
		Handler: handleReadFile,
	}
}

func handleReadFile(_ context.Context, _ *InvocationContext, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return map[string]any{"path": path, "content": string(data)}, nil
}

func runCommandSpec(defaultTimeout time.Duration) *Spec {
	if defaultTimeout <= 0 {
		defaultTimeout = 120 * time.Second
	}
	return &Spec{
		Name:        "run_command",
		Description: "Run a shell command with a bounded timeout.",
		Properties:  []string{"cmd", "cwd", "timeout"},
		Required:    []string{"cmd"},
		Defaults:    map[string]any{"timeout": defaultTimeout.Seconds()},
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd":     stringSchema("shell command to execute"),
				"cwd":     stringSchema("working directory, relative to the project root"),
				"timeout": map[string]any{"type": "number", "description": "timeout in seconds"},
			},
			"required": []string{"cmd"},
		}),
		Handler: handleRunCommand,
	}
}

func handleRunCommand(ctx context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	cmdStr, _ := args["cmd"].(string)
	cwd, _ := args["cwd"].(string)
	if cwd == "" {
		cwd = ic.ProjectRoot
	}
	seconds, _ := args["timeout"].(float64)
	if seconds <= 0 {
		seconds = 120
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", cmdStr)
	cmd.Dir = cwd
	out, err := cmd.CombinedOutput()
	result := map[string]any{"output": string(out)}
	if err != nil {
		result["error"] = err.Error()
	}
	return result, nil
}

func recordDecisionSpec() *Spec {
	return &Spec{
		Name:        "record_decision",
		Description: "Record a decision and its rationale in the run log.",
		Properties:  []string{"decision", "rationale"},
		Required:    []string{"decision", "rationale"},
		Defaults:    map[string]any{"rationale": "not provided"},
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"decision":  stringSchema("the decision made"),
				"rationale": stringSchema("why this decision was made"),
			},
			"required": []string{"decision", "rationale"},
		}),
		Handler: handleRecordDecision,
	}
}

func handleRecordDecision(_ context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	decision, _ := args["decision"].(string)
	rationale, _ := args["rationale"].(string)
	ic.Run.RecordDecision(runctx.Decision{
		AgentID:   ic.Agent,
		Decision:  decision,
		Rationale: rationale,
	})
	return map[string]any{"recorded": true}, nil
}

func shareArtifactSpec() *Spec {
	return &Spec{
		Name:        "share_artifact",
		Description: "Share a structured artifact for other agents to consume.",
		Properties:  []string{"artifact_type", "content", "description"},
		Required:    []string{"artifact_type", "content"},
		Defaults:    map[string]any{"artifact_type": "general", "content": map[string]any{}},
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"artifact_type": stringSchema("well-known artifact type key"),
				"content":       map[string]any{"description": "artifact payload"},
				"description":   stringSchema("optional human-readable description"),
			},
			"required": []string{"artifact_type", "content"},
		}),
		Handler: handleShareArtifact,
	}
}

func handleShareArtifact(_ context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	artifactType, _ := args["artifact_type"].(string)
	key, warning := ic.Hub.ShareArtifact(artifactType, ic.Agent, args["content"])
	result := map[string]any{"key": key}
	if warning != "" {
		result["warning"] = warning
	}
	return result, nil
}

func verifyDeliverablesSpec() *Spec {
	return &Spec{
		Name:        "verify_deliverables",
		Description: "Check that every listed deliverable path exists on disk.",
		Properties:  []string{"deliverables"},
		Required:    []string{"deliverables"},
		Defaults:    map[string]any{"deliverables": []any{}},
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"deliverables": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"deliverables"},
		}),
		Handler: handleVerifyDeliverables,
	}
}

func handleVerifyDeliverables(_ context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	raw, _ := args["deliverables"].([]any)
	missing := []string{}
	for _, item := range raw {
		path, _ := item.(string)
		if path == "" {
			continue
		}
		resolved := path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(ic.ProjectRoot, path)
		}
		if _, err := os.Stat(resolved); err != nil {
			missing = append(missing, path)
		}
	}
	return map[string]any{"missing": missing, "satisfied": len(missing) == 0}, nil
}

func dependencyCheckSpec() *Spec {
	return &Spec{
		Name:        "dependency_check",
		Description: "Check whether the named agent's work has completed.",
		Properties:  []string{"agent_name"},
		Required:    []string{"agent_name"},
		ParamSchema: mustJSON(map[string]any{
			"type":       "object",
			"properties": map[string]any{"agent_name": stringSchema("agent id to check")},
			"required":   []string{"agent_name"},
		}),
		Handler: handleDependencyCheck,
	}
}

func handleDependencyCheck(_ context.Context, ic *InvocationContext, args map[string]any) (any, error) {
	agentName, _ := args["agent_name"].(string)
	result, ok := ic.Hub.LatestResult(agentName)
	if !ok {
		return map[string]any{"completed": false}, nil
	}
	return map[string]any{"completed": true, "success": result.Success}, nil
}

func completeTaskSpec() *Spec {
	return &Spec{
		Name:        "complete_task",
		Description: "Mark the current agent's task complete with a summary.",
		Properties:  []string{"summary", "artifacts"},
		Required:    []string{"summary"},
		Defaults:    map[string]any{"summary": "Task completed"},
		ParamSchema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary":   stringSchema("summary of the completed work"),
				"artifacts": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"summary"},
		}),
		Handler: handleCompleteTask,
	}
}

func handleCompleteTask(_ context.Context, _ *InvocationContext, args map[string]any) (any, error) {
	summary, _ := args["summary"].(string)
	return map[string]any{"summary": summary, "complete": true}, nil
}
