package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultSwarmConfig()
	require.NoError(t, cfg.Validate())
}

func TestQuorumThresholdZeroRejected(t *testing.T) {
	cfg := DefaultSwarmConfig()
	cfg.QuorumThreshold = 0.0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quorum_threshold")
}

func TestQuorumThresholdOneAccepted(t *testing.T) {
	cfg := DefaultSwarmConfig()
	cfg.QuorumThreshold = 1.0
	assert.NoError(t, cfg.Validate())
}

func TestMaxConcurrentLLMMustBePositive(t *testing.T) {
	cfg := DefaultSwarmConfig()
	cfg.MaxConcurrentLLM = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_llm")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/swarm.yaml")
	assert.Error(t, err)
}
