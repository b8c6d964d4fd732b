// Package workflowspec loads the declarative workflow document (spec.md §6
// "Workflow spec (input file)") and validates it before DependencyGraph
// ever sees it: every depends_on reference must exist and the graph must
// be acyclic (spec.md §8 "workflow with cycles -> rejected before
// scheduling starts").
package workflowspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"swarmkit.dev/swarmkit/internal/depgraph"
	"swarmkit.dev/swarmkit/internal/runctx"
)

// Task is one parsed agent task (spec.md §6 minimum fields).
type Task struct {
	ID                  string   `yaml:"id" json:"id"`
	DependsOn           []string `yaml:"depends_on" json:"depends_on"`
	Parallelizable      bool     `yaml:"parallelizable" json:"parallelizable"`
	RoleTemplateID      string   `yaml:"role_template_id" json:"role_template_id"`
	ExpectedDeliverables []string `yaml:"expected_deliverables" json:"expected_deliverables"`
	Priority            int      `yaml:"priority" json:"priority"`
	ExpectedDuration    string   `yaml:"expected_duration" json:"expected_duration"`
	Critical            bool     `yaml:"critical" json:"critical"`
}

// Document is the top-level workflow spec document.
type Document struct {
	Tasks []Task `yaml:"tasks" json:"tasks"`
}

// Load reads and validates a workflow spec document from path. Files ending
// in .yaml, .yml or .json are all decoded with gopkg.in/yaml.v3 (plain JSON
// is a legal YAML subset); any other extension is rejected.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflowspec: read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return nil, fmt.Errorf("workflowspec: unsupported extension %q for %s", ext, path)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflowspec: parse %s: %w", path, err)
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks id uniqueness, that every depends_on reference exists,
// and that the dependency graph is acyclic, ahead of any scheduling. An
// empty task list is valid: the orchestrator treats an empty graph as done
// immediately, and spec.md §8 requires an empty workflow to exit 0 rather
// than error.
func Validate(doc *Document) error {
	seen := make(map[string]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("workflowspec: task with empty id")
		}
		if seen[t.ID] {
			return fmt.Errorf("workflowspec: duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range doc.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("workflowspec: task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	if _, err := ToGraphNodes(doc); err != nil {
		return err
	}
	return nil
}

// ToGraphNodes converts the document into depgraph.Node values, also
// exercising depgraph's own cycle detection as a second, independently
// grounded check.
func ToGraphNodes(doc *Document) ([]depgraph.Node, error) {
	nodes := make([]depgraph.Node, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		nodes = append(nodes, depgraph.Node{
			AgentID:        t.ID,
			DependsOn:      t.DependsOn,
			MayParallelize: t.Parallelizable,
			Priority:       t.Priority,
			Critical:       t.Critical,
		})
	}
	if _, err := depgraph.New(nodes, 2); err != nil {
		return nil, fmt.Errorf("workflowspec: %w", err)
	}
	return nodes, nil
}

// ToAgentTasks converts the document into runctx.AgentTask values for the
// Orchestrator's prompt-building step.
func ToAgentTasks(doc *Document) []runctx.AgentTask {
	out := make([]runctx.AgentTask, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		dur, _ := time.ParseDuration(t.ExpectedDuration)
		out = append(out, runctx.AgentTask{
			ID:                   t.ID,
			RoleTemplateID:       t.RoleTemplateID,
			DependsOn:            t.DependsOn,
			MayParallelize:       t.Parallelizable,
			Priority:             t.Priority,
			ExpectedDuration:     dur,
			ExpectedDeliverables: t.ExpectedDeliverables,
			Critical:             t.Critical,
		})
	}
	return out
}
