package synth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"swarmkit.dev/swarmkit/internal/synth"
)

func TestSynthesizeIsDeterministic(t *testing.T) {
	s := synth.New(512)
	hint := &synth.Hint{ProjectName: "acme", Symbol: "Widget"}

	a := s.Synthesize("src/widget.go", hint)
	b := s.Synthesize("src/widget.go", hint)
	require.Equal(t, a, b)
}

func TestSynthesizeGoSkeletonUsesSymbol(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("pkg/thing.go", &synth.Hint{Symbol: "Thing"})
	require.Contains(t, string(out), "func Thing() bool")
}

func TestSynthesizeJSONMeetsFloor(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("config.json", nil)
	require.GreaterOrEqual(t, len(out), 512)
	require.Contains(t, string(out), `"name"`)
}

func TestSynthesizeMarkdownUsesTitleFromFilename(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("docs/getting_started.md", nil)
	require.Contains(t, string(out), "# Getting Started")
	require.Contains(t, string(out), "## Overview")
}

func TestSynthesizeEnvExampleSkipsFloor(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize(".env.example", &synth.Hint{ProjectName: "acme"})
	require.Less(t, len(out), 512)
	require.Contains(t, string(out), "APP_ENV=development")
}

func TestSynthesizeDockerfile(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("Dockerfile", &synth.Hint{ProjectName: "acme"})
	require.Contains(t, string(out), "FROM alpine:latest")
}

func TestSynthesizeUnknownExtensionUsesBannerOrEmpty(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("data.bin", nil)
	require.LessOrEqual(t, len(out), 0)
}

func TestSynthesizeUnknownCommentedExtensionGetsBanner(t *testing.T) {
	s := synth.New(512)
	out := s.Synthesize("script.sh", nil)
	require.Contains(t, string(out), "# script.sh: generated placeholder")
}
