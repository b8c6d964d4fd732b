package llmclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/llmclient"
)

func TestFakeClientReplaysScriptedResponsesInOrder(t *testing.T) {
	fake := llmclient.NewFakeClient(
		llmclient.Response{Text: "first"},
		llmclient.Response{Text: "second"},
	)

	r1, err := fake.Complete(context.Background(), &llmclient.Request{Messages: []llmclient.Message{{Role: llmclient.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "first", r1.Text)

	r2, err := fake.Complete(context.Background(), &llmclient.Request{Messages: []llmclient.Message{{Role: llmclient.RoleUser, Text: "hi again"}}})
	require.NoError(t, err)
	require.Equal(t, "second", r2.Text)

	require.Len(t, fake.Calls(), 2)
}

func TestFakeClientErrorsWhenExhausted(t *testing.T) {
	fake := llmclient.NewFakeClient(llmclient.Response{Text: "only"})
	_, err := fake.Complete(context.Background(), &llmclient.Request{Messages: []llmclient.Message{{Role: llmclient.RoleUser, Text: "hi"}}})
	require.NoError(t, err)

	_, err = fake.Complete(context.Background(), &llmclient.Request{Messages: []llmclient.Message{{Role: llmclient.RoleUser, Text: "hi"}}})
	require.Error(t, err)
}
