package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/config"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func TestDecomposeBaselineFourTasks(t *testing.T) {
	goal := swarmtypes.NewGoal("build a todo list cli")
	tasks := Decompose(goal)
	require.Len(t, tasks, 4)

	byID := make(map[string]swarmtypes.Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}
	assert.Contains(t, byID, "architecture")
	assert.Contains(t, byID, "codegen")
	assert.Contains(t, byID, "testing")
	assert.Contains(t, byID, "documentation")
	assert.Equal(t, []string{"architecture"}, byID["codegen"].DependsOn)
}

func TestDecomposeAddsAPIAndSecurityTasks(t *testing.T) {
	goal := swarmtypes.NewGoal("build an authenticated REST api for payments")
	tasks := Decompose(goal)

	var hasAPI, hasSecurity bool
	for _, task := range tasks {
		if task.ID == "api_design" {
			hasAPI = true
		}
		if task.ID == "security_audit" {
			hasSecurity = true
		}
	}
	assert.True(t, hasAPI)
	assert.True(t, hasSecurity)
}

func TestBuildDAGDetectsFullCycle(t *testing.T) {
	tasks := []swarmtypes.Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"c"}},
		{ID: "c", DependsOn: []string{"a"}},
	}
	_, err := BuildDAG(tasks)
	require.Error(t, err)

	var cycleErr *swarmtypes.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Cycle, 3)
	assert.Contains(t, cycleErr.Cycle, "a")
	assert.Contains(t, cycleErr.Cycle, "b")
	assert.Contains(t, cycleErr.Cycle, "c")
}

func TestBuildDAGRejectsUnknownDependency(t *testing.T) {
	tasks := []swarmtypes.Task{{ID: "a", DependsOn: []string{"missing"}}}
	_, err := BuildDAG(tasks)
	assert.Error(t, err)
}

func TestBuildDAGAcceptsValidGraph(t *testing.T) {
	tasks := Decompose(swarmtypes.NewGoal("build a todo list cli"))
	byID, err := BuildDAG(tasks)
	require.NoError(t, err)
	assert.Len(t, byID, 4)
}

func TestReadyTasksOrderedByPriorityThenID(t *testing.T) {
	byID := map[string]swarmtypes.Task{
		"low":  {ID: "low", State: swarmtypes.TaskPending, Priority: 0.1},
		"b":    {ID: "b", State: swarmtypes.TaskPending, Priority: 0.9},
		"a":    {ID: "a", State: swarmtypes.TaskPending, Priority: 0.9},
		"done": {ID: "done", State: swarmtypes.TaskCompleted},
		"gated": {ID: "gated", State: swarmtypes.TaskPending, Priority: 1.0, DependsOn: []string{"low"}},
	}
	ready := readyTasks(byID)
	require.Len(t, ready, 3)
	assert.Equal(t, "a", ready[0].ID)
	assert.Equal(t, "b", ready[1].ID)
	assert.Equal(t, "low", ready[2].ID)
}

func TestCoordinatorRunCompletesSimpleGoal(t *testing.T) {
	cfg := config.DefaultSwarmConfig()
	cfg.MaxExecutionTime = 5 * time.Second
	cfg.MaxConcurrentLLM = 2
	cfg.EnablePrediction = false

	llmCfg := llmclient.DefaultConfig()
	llmCfg.MaxRetries = 1
	llmCfg.RetryInitialWait = time.Millisecond
	facade := llmclient.New(llmCfg, nil)
	facade.Register(llmclient.NewMockProvider("mock", func(req llmclient.Request) (string, error) {
		return "```go:output.go\npackage main\n```\n", nil
	}))

	coord := New(cfg, "mock", facade, nil)
	goal := swarmtypes.NewGoal("build a todo list cli")

	result, err := coord.Run(context.Background(), goal)
	require.NoError(t, err)

	assert.False(t, result.Abandoned)
	assert.GreaterOrEqual(t, len(result.Outputs), 4)
	assert.Empty(t, result.BlockedTasks)
}

func TestCoordinatorRunAbandonsOnDeadline(t *testing.T) {
	cfg := config.DefaultSwarmConfig()
	cfg.MaxExecutionTime = 20 * time.Millisecond
	cfg.MaxConcurrentLLM = 1

	llmCfg := llmclient.DefaultConfig()
	llmCfg.MaxRetries = 1
	facade := llmclient.New(llmCfg, nil)
	facade.Register(llmclient.NewMockProvider("mock", func(req llmclient.Request) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "", nil
	}))

	coord := New(cfg, "mock", facade, nil)
	goal := swarmtypes.NewGoal("build a todo list cli")

	result, err := coord.Run(context.Background(), goal)
	require.NoError(t, err)
	assert.True(t, result.Abandoned)
}
