// Package config defines SwarmConfig, the single external input besides the
// Goal text itself, and its validation/loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// SwarmConfig configures one swarm run. All fields carry documented
// defaults; out-of-range values are rejected with an InvalidConfigError at
// Validate time rather than discovered mid-run.
type SwarmConfig struct {
	QuorumThreshold      float64       `yaml:"quorum_threshold"`
	ConsensusInterval    time.Duration `yaml:"consensus_interval"`
	ProposalWindow       time.Duration `yaml:"proposal_window"`
	MaxConcurrentLLM     int           `yaml:"max_concurrent_llm"`
	MaxAgents            int           `yaml:"max_agents"`
	MaxExecutionTime     time.Duration `yaml:"max_execution_time"`
	MaxMemoryMB          int           `yaml:"max_memory_mb"`
	MaxTokenBudget       int           `yaml:"max_token_budget"`
	EnablePrediction     bool          `yaml:"enable_prediction"`
	EnableBalancing      bool          `yaml:"enable_balancing"`
	EnableCircuitBreaker bool          `yaml:"enable_circuit_breaker"`
	LLMRetryCount        int           `yaml:"llm_retry_count"`
	LLMCallTimeout       time.Duration `yaml:"llm_call_timeout"`
	GracePeriod          time.Duration `yaml:"grace_period"`
	WorkingMemorySweep   time.Duration `yaml:"working_memory_sweep"`
	InsightTTL           time.Duration `yaml:"insight_ttl"`
	PredictorFreshness   time.Duration `yaml:"predictor_freshness"`
	HeartbeatStuckAfter  time.Duration `yaml:"heartbeat_stuck_after"`
	SlowLatencyThreshold time.Duration `yaml:"slow_latency_threshold"`
}

// DefaultSwarmConfig returns the documented defaults from spec §4 and §6.
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		QuorumThreshold:      0.75,
		ConsensusInterval:    100 * time.Millisecond,
		ProposalWindow:       5 * time.Second,
		MaxConcurrentLLM:     3,
		MaxAgents:            32,
		MaxExecutionTime:     120 * time.Second,
		MaxMemoryMB:          512,
		MaxTokenBudget:       0, // 0 means unbounded
		EnablePrediction:     true,
		EnableBalancing:      true,
		EnableCircuitBreaker: true,
		LLMRetryCount:        2,
		LLMCallTimeout:       30 * time.Second,
		GracePeriod:          5 * time.Second,
		WorkingMemorySweep:   30 * time.Second,
		InsightTTL:           60 * time.Second,
		PredictorFreshness:   60 * time.Second,
		HeartbeatStuckAfter:  60 * time.Second,
		SlowLatencyThreshold: 5 * time.Second,
	}
}

// Validate normalizes nothing; unlike the teacher's breaker/retry configs,
// an invalid SwarmConfig is a caller error that must be rejected, not
// silently corrected, since it is the external entry point's contract.
func (c SwarmConfig) Validate() error {
	if c.QuorumThreshold <= 0.0 || c.QuorumThreshold > 1.0 {
		return &swarmtypes.InvalidConfigError{Field: "quorum_threshold", Reason: "must be in (0.0, 1.0]"}
	}
	if c.ConsensusInterval <= 0 {
		return &swarmtypes.InvalidConfigError{Field: "consensus_interval", Reason: "must be positive"}
	}
	if c.ProposalWindow <= 0 {
		return &swarmtypes.InvalidConfigError{Field: "proposal_window", Reason: "must be positive"}
	}
	if c.MaxConcurrentLLM < 1 {
		return &swarmtypes.InvalidConfigError{Field: "max_concurrent_llm", Reason: "must be at least 1"}
	}
	if c.MaxAgents < 1 {
		return &swarmtypes.InvalidConfigError{Field: "max_agents", Reason: "must be at least 1"}
	}
	if c.MaxExecutionTime <= 0 {
		return &swarmtypes.InvalidConfigError{Field: "max_execution_time", Reason: "must be positive"}
	}
	if c.LLMRetryCount < 0 {
		return &swarmtypes.InvalidConfigError{Field: "llm_retry_count", Reason: "must be non-negative"}
	}
	if c.LLMCallTimeout <= 0 {
		return &swarmtypes.InvalidConfigError{Field: "llm_call_timeout", Reason: "must be positive"}
	}
	return nil
}

// LoadFile reads a YAML SwarmConfig, starting from defaults and overlaying
// whatever fields the file sets, then validates the result.
func LoadFile(path string) (SwarmConfig, error) {
	cfg := DefaultSwarmConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read swarm config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse swarm config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
