// Package config loads the kernel's tunables from a TOML file, an optional
// .env file, and the process environment (increasing precedence in that
// order), grounded on nevindra-oasis's BurntSushi/toml config loading and
// vanducng-goclaw's .env-based bootstrap via github.com/joho/godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// RunnerConfig carries every tunable named across spec.md §4/§5/§9.
type RunnerConfig struct {
	// ProjectRoot is the directory all file operations are confined to.
	ProjectRoot string `toml:"project_root"`

	// MaxParallel bounds how many agents a wave may admit (spec.md §5, default 3).
	MaxParallel int `toml:"max_parallel"`

	// MaxRetries is the retry budget before an agent is abandoned (spec.md §4.7, default 2).
	MaxRetries int `toml:"max_retries"`

	// SoftCap is the write-attempt count after which LoopDetector starts
	// tagging calls for emphasis (spec.md §4.5, §9, default 2).
	SoftCap int `toml:"soft_cap"`

	// HardCap is the write-attempt count beyond which LoopDetector fires
	// (spec.md §4.5, §9, default 4).
	HardCap int `toml:"hard_cap"`

	// ReasoningDedupCap bounds consecutive identical reasoning lines before
	// the AgentRunner short-circuits the session (spec.md §4.5).
	ReasoningDedupCap int `toml:"reasoning_dedup_cap"`

	// LockTTL is the default exclusive/shared lock lifetime (spec.md §3, default 5m).
	LockTTL time.Duration `toml:"lock_ttl"`

	// LockWaitTimeout is loaded but not read by any component: the
	// AgentRunner and the Orchestrator's direct synthesis both pass a fixed
	// 30s lock wait to the Invoker.
	LockWaitTimeout time.Duration `toml:"lock_wait_timeout"`

	// MaxToolCallsPerSession caps tool calls per agent invocation (spec.md §4.6, default 30).
	MaxToolCallsPerSession int `toml:"max_tool_calls_per_session"`

	// SessionWallClock bounds one agent invocation's wall-clock time (spec.md §4.6, default 5m).
	SessionWallClock time.Duration `toml:"session_wall_clock"`

	// CommandTimeout bounds run_command's default per-call timeout (spec.md §5, default 120s).
	CommandTimeout time.Duration `toml:"command_timeout"`

	// RateLimitPerMinute bounds outbound LLM calls process-wide (spec.md §4.6, default 20).
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`

	// InterLaunchDelay smooths bursts when a wave is admitted (spec.md §4.6, default 3s).
	InterLaunchDelay time.Duration `toml:"inter_launch_delay"`

	// BackoffCap bounds exponential backoff on transport errors (spec.md §4.6, default 60s).
	BackoffCap time.Duration `toml:"backoff_cap"`

	// CheckpointEvery sets how many completions elapse between checkpoints (spec.md §4.8, default 2).
	CheckpointEvery int `toml:"checkpoint_every"`

	// ShutdownGrace bounds how long a cancelled run waits for in-flight
	// sessions before killing them (spec.md §5, default 30s).
	ShutdownGrace time.Duration `toml:"shutdown_grace"`

	// ContentSynthesisFloor is the minimum byte length ContentSynthesizer
	// guarantees for formats where smaller isn't semantically complete
	// (spec.md §4.2, default 512).
	ContentSynthesisFloor int `toml:"content_synthesis_floor"`

	// CriticalAgents names agent ids whose abandonment makes the run exit
	// non-zero (spec.md §6, §7).
	CriticalAgents []string `toml:"critical_agents"`

	// Handoffs maps an abandoned agent id to its static substitute
	// (spec.md §4.8 "Handoff", §9 "Supplemented features").
	Handoffs map[string]string `toml:"handoffs"`
}

// Default returns the documented defaults for every field.
func Default() RunnerConfig {
	return RunnerConfig{
		ProjectRoot:            ".",
		MaxParallel:            3,
		MaxRetries:             2,
		SoftCap:                2,
		HardCap:                4,
		ReasoningDedupCap:      3,
		LockTTL:                5 * time.Minute,
		LockWaitTimeout:        30 * time.Second,
		MaxToolCallsPerSession: 30,
		SessionWallClock:       5 * time.Minute,
		CommandTimeout:         120 * time.Second,
		RateLimitPerMinute:     20,
		InterLaunchDelay:       3 * time.Second,
		BackoffCap:             60 * time.Second,
		CheckpointEvery:        2,
		ShutdownGrace:          30 * time.Second,
		ContentSynthesisFloor:  512,
		Handoffs:               map[string]string{},
	}
}

// Load reads tomlPath (if it exists), applies envPath via godotenv (if it
// exists), then overlays process environment variables prefixed SWARMKIT_,
// returning a fully populated RunnerConfig.
func Load(tomlPath, envPath string) (RunnerConfig, error) {
	cfg := Default()

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			if _, err := toml.DecodeFile(tomlPath, &cfg); err != nil {
				return cfg, fmt.Errorf("config: decode %s: %w", tomlPath, err)
			}
		}
	}

	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return cfg, fmt.Errorf("config: load %s: %w", envPath, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *RunnerConfig) {
	if v := os.Getenv("SWARMKIT_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v, ok := envInt("SWARMKIT_MAX_PARALLEL"); ok {
		cfg.MaxParallel = v
	}
	if v, ok := envInt("SWARMKIT_SOFT_CAP"); ok {
		cfg.SoftCap = v
	}
	if v, ok := envInt("SWARMKIT_HARD_CAP"); ok {
		cfg.HardCap = v
	}
	if v, ok := envDuration("SWARMKIT_LOCK_TTL"); ok {
		cfg.LockTTL = v
	}
	if v, ok := envInt("SWARMKIT_RATE_LIMIT_PER_MINUTE"); ok {
		cfg.RateLimitPerMinute = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
