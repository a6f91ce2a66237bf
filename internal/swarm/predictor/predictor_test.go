package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func TestPredictNextMatchesAuthTrigger(t *testing.T) {
	p := New(true, nil)
	task := swarmtypes.Task{ID: "t1", Description: "Implement auth middleware for the API"}

	predictions := p.PredictNext(task)
	require.NotEmpty(t, predictions)

	found := false
	for _, pr := range predictions {
		if pr.PredictedTask.Capability == swarmtypes.CapabilitySecurityAudit {
			found = true
			assert.InDelta(t, 0.95*0.95, pr.CombinedConfidence, 0.0001)
		}
	}
	assert.True(t, found, "auth trigger must surface a security-audit prediction")
}

func TestPredictNextDisabledReturnsNil(t *testing.T) {
	p := New(false, nil)
	task := swarmtypes.Task{ID: "t1", Description: "Implement auth middleware"}
	assert.Nil(t, p.PredictNext(task))
}

func TestPredictNextSortedByDescendingConfidence(t *testing.T) {
	p := New(true, nil)
	task := swarmtypes.Task{ID: "t1", Description: "Build the api and database layer"}

	predictions := p.PredictNext(task)
	require.NotEmpty(t, predictions)
	for i := 1; i < len(predictions); i++ {
		assert.GreaterOrEqual(t, predictions[i-1].CombinedConfidence, predictions[i].CombinedConfidence)
	}
}

func TestPrefetchAndTake(t *testing.T) {
	p := New(true, nil)
	goal := swarmtypes.NewGoal("build a thing")

	p.PrefetchAgent(goal.Hash, swarmtypes.CapabilityTesting, "Write auth tests")
	assert.Equal(t, 1, p.PrefetchCount())

	_, ok := p.TakePrefetched(swarmtypes.CapabilityTesting)
	assert.True(t, ok)
	assert.Equal(t, 0, p.PrefetchCount())

	_, ok = p.TakePrefetched(swarmtypes.CapabilityTesting)
	assert.False(t, ok)
}

func TestCleanupPrefetchesDiscardsStale(t *testing.T) {
	p := New(true, nil)
	goal := swarmtypes.NewGoal("build a thing")

	p.PrefetchAgent(goal.Hash, swarmtypes.CapabilityTesting, "stale one")
	time.Sleep(5 * time.Millisecond)

	discarded := p.CleanupPrefetches(time.Millisecond)
	assert.Equal(t, 1, discarded)
	assert.Equal(t, 0, p.PrefetchCount())
}

func TestLearnPatternNewTriggerStartsAtHalf(t *testing.T) {
	p := New(true, nil)
	p.LearnPattern("new_feature", []PredictedTask{
		{Capability: swarmtypes.CapabilityTesting, Description: "Write feature tests", Delay: time.Second, Confidence: 0.8},
	})

	task := swarmtypes.Task{ID: "t2", Description: "Ship the new_feature rollout"}
	predictions := p.PredictNext(task)
	var learned float64
	for _, pat := range p.patterns {
		if pat.Trigger == "new_feature" {
			learned = pat.Confidence
		}
	}
	assert.InDelta(t, 0.5, learned, 0.0001)
	// 0.5 x 0.8 = 0.4 is under the 0.6 gate, so the new trigger predicts
	// nothing until it has been reinforced.
	assert.Empty(t, predictions)
}

func TestLearnPatternExistingTriggerReinforces(t *testing.T) {
	p := New(true, nil)
	p.LearnPattern("auth", nil)

	task := swarmtypes.Task{ID: "t3", Description: "Review auth flows"}
	predictions := p.PredictNext(task)
	require.NotEmpty(t, predictions)

	found := false
	for _, pr := range predictions {
		if pr.PredictedTask.Capability == swarmtypes.CapabilitySecurityAudit {
			found = true
			assert.InDelta(t, 0.96*0.95, pr.CombinedConfidence, 0.0001)
		}
	}
	assert.True(t, found)
}

func TestRecordOutcomeTracksAccuracy(t *testing.T) {
	p := New(true, nil)
	p.RecordOutcome(true)
	p.RecordOutcome(false)

	acc := p.AccuracySnapshot()
	assert.Equal(t, 2, acc.TotalPredictions)
	assert.Equal(t, 1, acc.CorrectPredictions)
	assert.Equal(t, 1, acc.FalsePositives)
}
