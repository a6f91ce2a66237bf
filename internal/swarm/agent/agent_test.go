package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func testAgent(t *testing.T, style swarmtypes.CollaborationStyle, responder func(llmclient.Request) (string, error)) (*Agent, *memory.Layered, *bus.Bus) {
	t.Helper()
	goal := swarmtypes.NewGoal("build an api")
	id := swarmtypes.DeriveAgentID(goal.Hash, swarmtypes.CapabilityCodeGen, 0)
	personality := swarmtypes.AgentPersonality{Creativity: 0.5, Thoroughness: 0.8, RiskTolerance: 0.2, CollaborationStyle: style}

	cfg := llmclient.DefaultConfig()
	cfg.MaxRetries = 1
	cfg.RetryInitialWait = time.Millisecond
	facade := llmclient.New(cfg, nil)
	facade.Register(llmclient.NewMockProvider("mock", responder))

	mem := memory.NewLayered(memory.Config{}, nil)
	b := bus.New(nil)

	a := New(id, swarmtypes.CapabilityCodeGen, personality, "mock", facade, mem, b, nil)
	return a, mem, b
}

func TestExecuteProducesParsedFiles(t *testing.T) {
	a, _, _ := testAgent(t, swarmtypes.StyleContributor, func(req llmclient.Request) (string, error) {
		return "<thinking>planning the handler</thinking>\n```go:main.go\npackage main\n```\n", nil
	})

	task := swarmtypes.Task{ID: "t1", Description: "implement the handler", Capability: swarmtypes.CapabilityCodeGen}
	out, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)

	require.Len(t, out.Files, 1)
	assert.Equal(t, "main.go", out.Files[0].Path)
	assert.Contains(t, out.ThinkingTrace, "planning the handler")
	assert.Equal(t, swarmtypes.AgentCompleted, a.Status())
}

func TestExecuteLeaderSharesPattern(t *testing.T) {
	a, mem, b := testAgent(t, swarmtypes.StyleLeader, func(req llmclient.Request) (string, error) {
		return "```go:main.go\npackage main\n```\n", nil
	})

	sub := b.Subscribe(swarmtypes.AgentID{})
	task := swarmtypes.Task{ID: "t1", Description: "implement the handler", Capability: swarmtypes.CapabilityCodeGen}
	_, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)

	_, ok := mem.Procedural.Get("pattern:t1")
	assert.True(t, ok)

	select {
	case msg := <-sub:
		assert.Equal(t, bus.KindPatternShare, msg.Kind)
	default:
		t.Fatal("expected a PatternShare broadcast")
	}
}

func TestExecutePropagatesProviderError(t *testing.T) {
	a, _, _ := testAgent(t, swarmtypes.StyleContributor, func(req llmclient.Request) (string, error) {
		return "", assert.AnError
	})

	task := swarmtypes.Task{ID: "t2", Description: "do something"}
	_, err := a.Execute(context.Background(), task, nil)
	require.Error(t, err)
	assert.Equal(t, swarmtypes.AgentFailed, a.Status())
}

func TestInvalidTransitionRejected(t *testing.T) {
	assert.False(t, CanTransition(swarmtypes.AgentQuarantined, swarmtypes.AgentRunning))
	assert.True(t, CanTransition(swarmtypes.AgentIdle, swarmtypes.AgentRunning))
}
