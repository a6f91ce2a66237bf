// =============================================================================
// swarm CLI — drive a multi-agent code-generation swarm against a goal
// =============================================================================
//
// Usage:
//
//	swarm run --goal "build a REST API for todos"
//	swarm run --goal "..." --config swarm.yaml
//	swarm version
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentinel-swarm/swarmkit/internal/swarm"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/config"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runSwarm(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSwarm(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	goal := fs.String("goal", "", "natural-language goal for the swarm to decompose and execute")
	configPath := fs.String("config", "", "path to a swarm config YAML file")
	logFormat := fs.String("log-format", "console", "log encoding: console or json")
	metricsNamespace := fs.String("metrics-namespace", "swarm", "Prometheus metric namespace, empty disables metrics")
	attestKey := fs.String("attest-key", "", "HMAC secret enabling per-output attestation, empty disables it")
	redisAddr := fs.String("redis-addr", "", "Redis address (host:port) for shared prompt caching, empty keeps the cache process-local")
	fs.Parse(args)

	if *goal == "" {
		fmt.Fprintln(os.Stderr, "run: --goal is required")
		os.Exit(1)
	}

	cfg := config.DefaultSwarmConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(*logFormat)
	defer logger.Sync()

	logger.Info("starting swarm run",
		zap.String("version", Version),
		zap.String("goal", *goal))

	provider := llmclient.NewMockProvider("cli-demo", nil)

	rt := swarm.New(swarm.Options{
		Config:           cfg,
		ProviderName:     provider.Name(),
		Provider:         provider,
		AttestationKey:   []byte(*attestKey),
		MetricsNamespace: *metricsNamespace,
		RedisAddr:        *redisAddr,
		Logger:           logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxExecutionTime+5*time.Second)
	defer cancel()

	result, err := rt.Run(ctx, *goal)
	if err != nil {
		logger.Fatal("swarm run failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("failed to marshal result", zap.Error(err))
	}
	fmt.Println(string(out))
}

func printVersion() {
	fmt.Printf("swarm %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`swarm - multi-agent code-generation orchestrator

Usage:
  swarm <command> [options]

Commands:
  run       Decompose a goal and run the swarm to completion
  version   Show version information
  help      Show this help message

Options for 'run':
  --goal <text>               Natural-language goal (required)
  --config <path>              Path to a swarm config YAML file
  --log-format <console|json>  Log encoding (default console)
  --metrics-namespace <name>   Prometheus namespace, empty disables metrics
  --attest-key <secret>        HMAC secret enabling per-output attestation
  --redis-addr <host:port>     Redis address for shared prompt caching, empty keeps it process-local

Examples:
  swarm run --goal "build an authenticated REST API for todos"
  swarm run --goal "add retry logic to the payment worker" --config swarm.yaml
  swarm version`)
}

func initLogger(format string) *zap.Logger {
	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller())
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
