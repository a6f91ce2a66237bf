package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/config"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
)

func TestRuntimeRunProducesSignedOutputs(t *testing.T) {
	cfg := config.DefaultSwarmConfig()
	cfg.MaxExecutionTime = 5 * time.Second
	cfg.LLMRetryCount = 1

	provider := llmclient.NewMockProvider("mock", func(req llmclient.Request) (string, error) {
		return "```go:output.go\npackage main\n```\n", nil
	})

	rt := New(Options{
		Config:           cfg,
		ProviderName:     "mock",
		Provider:         provider,
		AttestationKey:   []byte("test-secret"),
		MetricsNamespace: "swarm_runtime_test",
	})

	result, err := rt.Run(context.Background(), "build a todo list cli")
	require.NoError(t, err)
	assert.False(t, result.Abandoned)
	assert.NotEmpty(t, result.Outputs)
	assert.Len(t, result.Attestations, len(result.Outputs))
}

func TestRuntimeRunWithoutAttestationOrMetrics(t *testing.T) {
	cfg := config.DefaultSwarmConfig()
	cfg.MaxExecutionTime = 5 * time.Second

	provider := llmclient.NewMockProvider("mock", func(req llmclient.Request) (string, error) {
		return "```go:output.go\npackage main\n```\n", nil
	})

	rt := New(Options{Config: cfg, ProviderName: "mock", Provider: provider})
	result, err := rt.Run(context.Background(), "build a todo list cli")
	require.NoError(t, err)
	assert.Nil(t, result.Attestations)
	assert.Nil(t, rt.Telemetry())
}
