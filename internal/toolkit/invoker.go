// Package toolkit implements ToolRegistry & Invoker (spec.md §4.3): a
// declared-schema tool catalog plus the single pipeline every tool call
// passes through — name normalization, argument repair, default filling,
// placeholder detection, path resolution, lock acquisition, handler
// invocation, loop-detector accounting, and side-effect recording.
package toolkit

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/loopguard"
	"swarmkit.dev/swarmkit/internal/lockmgr"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/synth"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolerrors"
)

// Handler is the typed seam every tool implements. args has already been
// through name normalization, alias repair, default filling, and path
// resolution by the time a Handler sees it.
type Handler func(ctx context.Context, ic *InvocationContext, args map[string]any) (any, error)

// InvocationContext carries everything a Handler needs: which agent is
// calling, and the kernel's shared components (spec.md §4.3, §4.4, §4.1).
type InvocationContext struct {
	Agent       string
	Run         *runctx.Run
	Hub         *hub.Hub
	Locks       *lockmgr.Coordinator
	Loop        *loopguard.Detector
	Synth       *synth.Synthesizer
	ProjectRoot string
	Logger      telemetry.Logger
}

// Result is what the Invoker returns for one tool call: either a handler
// result or a structured error, never both, and it never panics on
// contention (spec.md §4.3 step 6, §7).
type Result struct {
	Output   any
	Err      *toolerrors.ToolError
	Warnings []string
}

// Registry holds every declared tool and the legacy-name alias table
// (spec.md §4.3 step 1).
type Registry struct {
	specs   map[string]*Spec
	aliases map[string]string // legacy name -> canonical name
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]*Spec),
		aliases: make(map[string]string),
	}
}

// Register adds spec to the catalog, compiling its parameter schema.
func (r *Registry) Register(spec *Spec, legacyAliases ...string) error {
	if err := spec.compileSchema(); err != nil {
		return err
	}
	r.specs[spec.Name] = spec
	for _, alias := range legacyAliases {
		r.aliases[alias] = spec.Name
	}
	return nil
}

// Catalog returns every registered Spec, for publishing to the LLM as the
// tool catalog.
func (r *Registry) Catalog() []*Spec {
	out := make([]*Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}

// normalize resolves a legacy alias to its canonical tool name (spec.md
// §4.3 step 1, e.g. write_file_tool -> write_file).
func (r *Registry) normalize(name string) string {
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	if strings.HasSuffix(name, "_tool") {
		trimmed := strings.TrimSuffix(name, "_tool")
		if _, ok := r.specs[trimmed]; ok {
			return trimmed
		}
	}
	return name
}

// aliasSubstitutions is the universal alternate-key -> canonical-key table
// (spec.md §4.3 step 2). A tool's own declared Properties always win: an
// alternate key is only renamed when the tool does not already declare a
// canonical parameter of that name.
var aliasSubstitutions = map[string]string{
	"data":        "content",
	"artifact":    "content",
	"files":       "deliverables",
	"reason":      "rationale",
	"task":        "summary",
	"description": "summary",
}

var placeholderRe = regexp.MustCompile(`(?i)todo|fixme|add content|placeholder`)

const placeholderThreshold = 64

// Invoker runs the full tool-call pipeline against a Registry.
type Invoker struct {
	registry *Registry
}

// NewInvoker builds an Invoker bound to registry.
func NewInvoker(registry *Registry) *Invoker {
	return &Invoker{registry: registry}
}

// Invoke runs one tool call end to end (spec.md §4.3 steps 1-9).
func (inv *Invoker) Invoke(ctx context.Context, ic *InvocationContext, toolName string, rawArgs map[string]any, waitTimeout time.Duration) Result {
	canonical := inv.registry.normalize(toolName)
	spec, ok := inv.registry.specs[canonical]
	if !ok {
		return Result{Err: toolerrors.NewKind(toolerrors.UnknownTool, fmt.Sprintf("unknown tool %q", toolName))}
	}

	args, warnings := repairArgs(spec, rawArgs)
	warnings = append(warnings, fillDefaults(spec, args)...)

	if w := resolvePlaceholderContent(ic, args); w != "" {
		warnings = append(warnings, w)
	}

	if w, err := resolvePaths(ic, spec, args); err != nil {
		return Result{Err: err, Warnings: warnings}
	} else if w != "" {
		warnings = append(warnings, w)
	}

	if err := spec.validate(args); err != nil {
		return Result{Err: toolerrors.NewKind(toolerrors.InvalidArguments, fmt.Sprintf("invalid arguments for %s: %v", spec.Name, err)), Warnings: warnings}
	}

	var lockedPath string
	if spec.Mutating {
		if p, ok := args["path"].(string); ok && p != "" {
			waitFor := waitTimeout
			if waitFor <= 0 {
				waitFor = 30 * time.Second
			}
			outcome := ic.Locks.Acquire(ctx, p, ic.Agent, lockmgr.Exclusive, waitFor)
			switch outcome {
			case lockmgr.Denied:
				return Result{Err: toolerrors.NewKind(toolerrors.LockDenied, fmt.Sprintf("lock denied for %s", p)), Warnings: warnings}
			case lockmgr.TimedOut:
				return Result{Err: toolerrors.NewKind(toolerrors.LockTimedOut, fmt.Sprintf("lock timed out for %s", p)), Warnings: warnings}
			}
			lockedPath = p
		}
	}
	if lockedPath != "" {
		defer ic.Locks.Release(lockedPath, ic.Agent)
	}

	if spec.Mutating && lockedPath != "" {
		level := ic.Loop.RecordWriteAttempt(ic.Agent, lockedPath)
		if level == loopguard.Detected {
			return Result{Err: toolerrors.NewKind(toolerrors.LoopDetected, fmt.Sprintf("repeatedly failing to provide content for %s", lockedPath)), Warnings: warnings}
		}
		if level == loopguard.PermitWithEmphasis {
			warnings = append(warnings, fmt.Sprintf("attempt pressure rising for %s; prior attempts did not complete the write", lockedPath))
		}
	}

	out, err := spec.Handler(ctx, ic, args)
	if err != nil {
		return Result{Err: toolerrors.FromError(err), Warnings: warnings}
	}

	if lockedPath != "" {
		registered := lockedPath
		if rel, err := filepath.Rel(ic.ProjectRoot, lockedPath); err == nil && !strings.HasPrefix(rel, "..") {
			registered = rel
		}
		ic.Hub.RegisterFile(registered, ic.Agent)
	}

	return Result{Output: out, Warnings: warnings}
}

// repairArgs applies alias substitution (spec.md §4.3 step 2): alternate
// keys map to canonical keys and are always removed from the result, even
// when the canonical key was already present (the canonical value wins).
func repairArgs(spec *Spec, rawArgs map[string]any) (map[string]any, []string) {
	canonicalSet := make(map[string]bool, len(spec.Properties))
	for _, p := range spec.Properties {
		canonicalSet[p] = true
	}

	out := make(map[string]any, len(rawArgs))
	var warnings []string
	for k, v := range rawArgs {
		if canonicalSet[k] {
			out[k] = v
			continue
		}
		target, hasAlias := aliasSubstitutions[k]
		if hasAlias && canonicalSet[target] {
			if _, already := out[target]; !already {
				if _, rawHasCanonical := rawArgs[target]; !rawHasCanonical {
					out[target] = v
				}
			}
			warnings = append(warnings, fmt.Sprintf("%s: alternate key %q mapped to %q", spec.Name, k, target))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s: dropped unknown argument %q", spec.Name, k))
	}
	return out, warnings
}

// fillDefaults fills any missing required canonical parameter with its
// declared default (spec.md §4.3 step 3).
func fillDefaults(spec *Spec, args map[string]any) []string {
	var warnings []string
	for _, req := range spec.Required {
		if _, ok := args[req]; ok {
			continue
		}
		if def, ok := spec.Defaults[req]; ok {
			args[req] = def
			warnings = append(warnings, fmt.Sprintf("%s: missing required %q filled with default", spec.Name, req))
		}
	}
	return warnings
}

// resolvePlaceholderContent fills genuinely missing write_file content
// (spec.md §4.3 step 3) and replaces undersized, placeholder-looking
// content with synthesized output (step 4).
func resolvePlaceholderContent(ic *InvocationContext, args map[string]any) string {
	content, ok := args["content"].(string)
	if !ok {
		return ""
	}
	path, _ := args["path"].(string)
	if content == "" {
		args["content"] = string(ic.Synth.Synthesize(path, &synth.Hint{}))
		return fmt.Sprintf("content for %q missing; filled with synthesized content", path)
	}
	if len(content) >= placeholderThreshold || !placeholderRe.MatchString(content) {
		return ""
	}
	args["content"] = string(ic.Synth.Synthesize(path, &synth.Hint{}))
	return fmt.Sprintf("content for %q looked like a placeholder; replaced with synthesized content", path)
}

// resolvePaths resolves the "path" and "cwd" string arguments relative to
// ic.ProjectRoot, rejecting absolute paths outside it (spec.md §4.3 step 5).
func resolvePaths(ic *InvocationContext, spec *Spec, args map[string]any) (string, *toolerrors.ToolError) {
	for _, key := range []string{"path", "cwd"} {
		raw, ok := args[key].(string)
		if !ok || raw == "" {
			continue
		}
		resolved, err := resolveWithinRoot(ic.ProjectRoot, raw)
		if err != nil {
			return "", toolerrors.NewKind(toolerrors.PathResolution, fmt.Sprintf("%s: %s: %s", spec.Name, key, err.Error()))
		}
		args[key] = resolved
	}
	return "", nil
}

func resolveWithinRoot(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.Join(root, path), nil
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes project root %q", path, root)
	}
	return path, nil
}
