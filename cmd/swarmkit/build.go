package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"swarmkit.dev/swarmkit/internal/agentrun"
	"swarmkit.dev/swarmkit/internal/checkpoint"
	"swarmkit.dev/swarmkit/internal/config"
	"swarmkit.dev/swarmkit/internal/coordinator"
	"swarmkit.dev/swarmkit/internal/hub"
	"swarmkit.dev/swarmkit/internal/llmclient"
	"swarmkit.dev/swarmkit/internal/lockmgr"
	"swarmkit.dev/swarmkit/internal/loopguard"
	"swarmkit.dev/swarmkit/internal/orchestrator"
	"swarmkit.dev/swarmkit/internal/runctx"
	"swarmkit.dev/swarmkit/internal/synth"
	"swarmkit.dev/swarmkit/internal/telemetry"
	"swarmkit.dev/swarmkit/internal/toolkit"
	"swarmkit.dev/swarmkit/internal/workflowspec"
)

// kernelFlags carries every flag shared by run and resume: the two
// subcommands only differ in whether Resume is called before Run.
type kernelFlags struct {
	workflowPath string
	configPath   string
	envPath      string
	projectRoot  string

	provider    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	awsRegion   string

	otel bool

	redisAddr string
	runID     string

	mongoURI        string
	mongoDatabase   string
	mongoCollection string
}

func addKernelFlags(fs *pflag.FlagSet, f *kernelFlags) {
	fs.StringVar(&f.workflowPath, "workflow", "", "path to the workflow spec document (yaml/json)")
	fs.StringVar(&f.configPath, "config", "swarmkit.toml", "path to the TOML config file")
	fs.StringVar(&f.envPath, "env", ".env", "path to an optional .env file")
	fs.StringVar(&f.projectRoot, "project-root", ".", "directory all file operations are confined to")

	fs.StringVar(&f.provider, "provider", "fake", "LLM provider: anthropic, openai, bedrock, or fake")
	fs.StringVar(&f.apiKey, "api-key", "", "API key for the chosen provider (anthropic/openai)")
	fs.StringVar(&f.model, "model", "", "default model identifier for the chosen provider")
	fs.IntVar(&f.maxTokens, "max-tokens", 4096, "max output tokens per LLM call (anthropic/bedrock)")
	fs.Float64Var(&f.temperature, "temperature", 0.2, "sampling temperature (anthropic/bedrock)")
	fs.StringVar(&f.awsRegion, "aws-region", "us-east-1", "AWS region for the bedrock provider")

	fs.BoolVar(&f.otel, "otel", false, "record metrics through the global OpenTelemetry meter provider instead of no-ops")

	fs.StringVar(&f.redisAddr, "redis-addr", "", "optional Redis address for cross-process run leasing")
	fs.StringVar(&f.runID, "run-id", "", "run id for the Redis lease and Mongo checkpoint document (defaults to \"run:\" followed by the --workflow path)")

	fs.StringVar(&f.mongoURI, "mongo-uri", "", "optional MongoDB connection string; checkpoints go to a file otherwise")
	fs.StringVar(&f.mongoDatabase, "mongo-database", "swarmkit", "MongoDB database name for checkpoints")
	fs.StringVar(&f.mongoCollection, "mongo-collection", "checkpoints", "MongoDB collection name for checkpoints")
}

// kernel bundles every live component an Orchestrator needs, plus anything
// the caller must clean up on exit.
type kernel struct {
	orch      *orchestrator.Orchestrator
	cfg       config.RunnerConfig
	lease     *coordinator.RunLease
	mongoConn *mongodriver.Client
}

func (k *kernel) Close(ctx context.Context) {
	if k.lease != nil {
		_ = k.lease.Release(ctx)
	}
	if k.mongoConn != nil {
		_ = k.mongoConn.Disconnect(ctx)
	}
}

// buildKernel wires config, telemetry, every kernel component named in
// spec.md §4, and the Orchestrator, from f.
func buildKernel(ctx context.Context, f *kernelFlags) (*kernel, error) {
	if f.workflowPath == "" {
		return nil, fmt.Errorf("swarmkit: --workflow is required")
	}

	cfg, err := config.Load(f.configPath, f.envPath)
	if err != nil {
		return nil, err
	}
	if f.projectRoot != "." {
		cfg.ProjectRoot = f.projectRoot
	}

	doc, err := workflowspec.Load(f.workflowPath)
	if err != nil {
		return nil, err
	}
	tasks := workflowspec.ToAgentTasks(doc)

	logger := telemetry.NewSlogLogger(slog.Default())
	metrics := telemetry.NewNoopMetrics()
	if f.otel {
		metrics = telemetry.NewOtelMetrics()
	}

	client, err := buildLLMClient(ctx, f)
	if err != nil {
		return nil, err
	}

	run := runctx.NewRun(cfg.ProjectRoot, nil)
	h := hub.New()
	locks := lockmgr.New(cfg.LockTTL)
	loop := loopguard.New(cfg.SoftCap, cfg.HardCap, cfg.ReasoningDedupCap)
	syn := synth.New(cfg.ContentSynthesisFloor)
	registry := toolkit.NewRegistry()
	if err := toolkit.RegisterMandatoryTools(registry, cfg.CommandTimeout); err != nil {
		return nil, fmt.Errorf("swarmkit: register tools: %w", err)
	}
	invoker := toolkit.NewInvoker(registry)
	pacer := agentrun.NewPacer(cfg.RateLimitPerMinute)
	runner := agentrun.New(client, invoker, registry, pacer, logger)
	if cfg.MaxToolCallsPerSession > 0 {
		runner.ToolCallBudget = cfg.MaxToolCallsPerSession
	}
	if cfg.SessionWallClock > 0 {
		runner.WallClock = cfg.SessionWallClock
	}
	if cfg.BackoffCap > 0 {
		runner.BackoffCap = cfg.BackoffCap
	}

	runID := f.runID
	if runID == "" {
		runID = runIDFromPath(f.workflowPath)
	}

	store, mongoConn, err := buildCheckpointStore(ctx, f, cfg.ProjectRoot, runID)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(cfg, tasks, run, h, locks, loop, syn, invoker, registry, runner, store, logger, metrics)
	if err != nil {
		return nil, err
	}

	k := &kernel{orch: orch, cfg: cfg, mongoConn: mongoConn}

	if f.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		lease, err := coordinator.Acquire(ctx, rdb, runID, cfg.SessionWallClock*time.Duration(len(tasks)+1))
		if err != nil {
			return nil, fmt.Errorf("swarmkit: acquire run lease: %w", err)
		}
		k.lease = lease
	}

	return k, nil
}

func runIDFromPath(path string) string {
	return fmt.Sprintf("run:%s", path)
}

func buildCheckpointStore(ctx context.Context, f *kernelFlags, projectRoot, runID string) (checkpoint.Store, *mongodriver.Client, error) {
	if f.mongoURI == "" {
		return checkpoint.NewFileStore(projectRoot), nil, nil
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongodriver.Connect(options.Client().ApplyURI(f.mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("swarmkit: connect mongo: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("swarmkit: ping mongo: %w", err)
	}
	coll := client.Database(f.mongoDatabase).Collection(f.mongoCollection)
	store, err := checkpoint.NewMongoStore(coll, runID, 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	return store, client, nil
}

func buildLLMClient(ctx context.Context, f *kernelFlags) (llmclient.Client, error) {
	switch f.provider {
	case "fake":
		return llmclient.NewFakeClient(), nil
	case "anthropic":
		return llmclient.NewAnthropicClientFromAPIKey(f.apiKey, f.model, f.maxTokens, f.temperature)
	case "openai":
		return llmclient.NewOpenAIClientFromAPIKey(f.apiKey, f.model)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.awsRegion))
		if err != nil {
			return nil, fmt.Errorf("swarmkit: load aws config: %w", err)
		}
		rt := bedrockruntime.NewFromConfig(awsCfg)
		return llmclient.NewBedrockClient(rt, f.model, f.maxTokens, float32(f.temperature))
	default:
		return nil, fmt.Errorf("swarmkit: unknown provider %q", f.provider)
	}
}
