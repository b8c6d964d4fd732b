package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersRunAndResume(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
	require.True(t, names["resume"])
}

func TestBuildKernelRejectsMissingWorkflowFlag(t *testing.T) {
	_, err := buildKernel(context.Background(), &kernelFlags{provider: "fake"})
	require.Error(t, err)
}

func TestBuildKernelWiresFakeProviderAgainstWorkflowFile(t *testing.T) {
	root := t.TempDir()
	workflow := filepath.Join(root, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflow, []byte("tasks:\n  - id: a\n    role_template_id: analyst\n"), 0o644))

	k, err := buildKernel(context.Background(), &kernelFlags{
		workflowPath: workflow,
		configPath:   filepath.Join(root, "missing.toml"),
		envPath:      filepath.Join(root, "missing.env"),
		projectRoot:  root,
		provider:     "fake",
	})
	require.NoError(t, err)
	require.NotNil(t, k.orch)
}

func TestBuildKernelRejectsUnknownProvider(t *testing.T) {
	root := t.TempDir()
	workflow := filepath.Join(root, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflow, []byte("tasks:\n  - id: a\n"), 0o644))

	_, err := buildKernel(context.Background(), &kernelFlags{
		workflowPath: workflow,
		projectRoot:  root,
		provider:     "does-not-exist",
	})
	require.Error(t, err)
}
