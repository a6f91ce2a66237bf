// Package swarm wires every subsystem (config, memory, bus, consensus,
// conflict, predictor, balancer, llmclient, agent, coordinator, telemetry,
// attestation) into the single entry point a caller needs: Run a Goal
// against a SwarmConfig and get back a signed, observed ExecutionResult.
package swarm

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/attestation"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/config"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/coordinator"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/telemetry"
)

// Runtime bundles a Coordinator with the attestation signer and telemetry
// collector that wrap every run.
type Runtime struct {
	coordinator *coordinator.Coordinator
	signer      *attestation.Signer
	telemetry   *telemetry.Collector
}

// Options configures a Runtime's construction.
type Options struct {
	Config           config.SwarmConfig
	ProviderName     string
	Provider         llmclient.Provider
	AttestationKey   []byte // empty disables per-output signing
	MetricsNamespace string
	RedisAddr        string        // empty keeps the façade's prompt cache process-local
	RedisCacheTTL    time.Duration // zero defaults to one hour
	Logger           *zap.Logger
}

// New builds a fully wired Runtime: an llmclient.Facade registered with
// the caller's Provider, a telemetry Collector (skipped when
// MetricsNamespace is empty), an attestation Signer (skipped when
// AttestationKey is empty), and a Coordinator tying them together.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	llmCfg := llmclient.DefaultConfig()
	llmCfg.MaxRetries = opts.Config.LLMRetryCount
	if opts.RedisAddr != "" {
		ttl := opts.RedisCacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		llmCfg.Cache = llmclient.NewRedisCache(rdb, ttl, logger)
	}
	facade := llmclient.New(llmCfg, logger)
	facade.Register(opts.Provider)

	coord := coordinator.New(opts.Config, opts.ProviderName, facade, logger)

	var tel *telemetry.Collector
	if opts.MetricsNamespace != "" {
		tel = telemetry.New(opts.MetricsNamespace, logger)
		coord.WithTelemetry(tel)
	}

	var signer *attestation.Signer
	if len(opts.AttestationKey) > 0 {
		signer = attestation.NewSigner(opts.AttestationKey, opts.Config.MaxExecutionTime)
	}

	return &Runtime{coordinator: coord, signer: signer, telemetry: tel}
}

// Result is an ExecutionResult plus a per-output attestation token map
// (empty when attestation is disabled).
type Result struct {
	swarmtypes.ExecutionResult
	Attestations map[string]string // TaskID -> signed token
}

// Run decomposes goal, drives the swarm to completion (or the configured
// deadline), and signs every successful output.
func (r *Runtime) Run(ctx context.Context, goalText string) (Result, error) {
	goal := swarmtypes.NewGoal(goalText)

	execResult, err := r.coordinator.Run(ctx, goal)
	if err != nil {
		return Result{}, err
	}

	res := Result{ExecutionResult: execResult}
	if r.signer != nil {
		res.Attestations = make(map[string]string, len(execResult.Outputs))
		for _, out := range execResult.Outputs {
			token, signErr := r.signer.Sign(out)
			if signErr != nil {
				continue
			}
			res.Attestations[out.TaskID] = token
		}
	}
	return res, nil
}

// Coordinator exposes the underlying Coordinator for callers that need
// direct access to the bus, memory, or balancer (e.g. a status endpoint).
func (r *Runtime) Coordinator() *coordinator.Coordinator { return r.coordinator }

// Telemetry exposes the metrics collector, if configured.
func (r *Runtime) Telemetry() *telemetry.Collector { return r.telemetry }
