package workflowspec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/workflowspec"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidWorkflow(t *testing.T) {
	path := writeSpec(t, `
tasks:
  - id: requirements-analyst
    parallelizable: false
    role_template_id: analyst
  - id: rapid-builder
    depends_on: [requirements-analyst]
    parallelizable: true
    role_template_id: builder
    expected_deliverables: [README.md]
`)
	doc, err := workflowspec.Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 2)

	tasks := workflowspec.ToAgentTasks(doc)
	require.Equal(t, "rapid-builder", tasks[1].ID)
	require.Equal(t, []string{"requirements-analyst"}, tasks[1].DependsOn)
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	path := writeSpec(t, `
tasks:
  - id: a
    depends_on: [ghost]
`)
	_, err := workflowspec.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown task")
}

func TestLoadRejectsCycle(t *testing.T) {
	path := writeSpec(t, `
tasks:
  - id: a
    depends_on: [b]
  - id: b
    depends_on: [a]
`)
	_, err := workflowspec.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	path := writeSpec(t, `
tasks:
  - id: a
  - id: a
`)
	_, err := workflowspec.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.txt")
	require.NoError(t, os.WriteFile(path, []byte("tasks: []"), 0o644))
	_, err := workflowspec.Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsEmptyTaskList(t *testing.T) {
	path := writeSpec(t, `tasks: []`)
	doc, err := workflowspec.Load(path)
	require.NoError(t, err)
	require.Empty(t, doc.Tasks)
}

func TestLoadAcceptsJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tasks":[{"id":"a"}]}`), 0o644))
	doc, err := workflowspec.Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 1)
}
