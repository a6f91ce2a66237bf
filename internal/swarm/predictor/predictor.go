// Package predictor implements the predictive pre-spawner: a library of
// trigger->predicted-task patterns, confidence-gated pre-allocation of
// agents ahead of demand, a freshness sweep over the prefetch queue, and
// reinforcement of pattern confidence from observed outcomes.
//
// Ported from original_source's crates/sentinel-agent-native/src/swarm/
// predictor.rs (PredictiveOrchestrator): the three built-in trigger
// patterns ("auth", "api", "database") and their exact confidence numbers
// are carried over unchanged, as are the +0.01-capped-at-1.0 reinforcement
// rule and the 0.5 starting confidence for newly learned patterns.
package predictor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

const confidenceThreshold = 0.6
const minConfidenceFloor = 0.05

// PredictedTask is one follow-on task a TaskPattern anticipates.
type PredictedTask struct {
	Capability  swarmtypes.Capability
	Description string
	Delay       time.Duration
	Confidence  float64
}

// TaskPattern maps a trigger substring to its predicted follow-on tasks.
type TaskPattern struct {
	Trigger         string
	PredictedTasks  []PredictedTask
	Confidence      float64
	OccurrenceCount int
}

// Prediction is one pattern match surfaced by PredictNext.
type Prediction struct {
	PredictedTask    PredictedTask
	SourceTrigger    string
	SourceTaskID     string
	CombinedConfidence float64
}

// Accuracy tracks prediction outcomes for observability.
type Accuracy struct {
	TotalPredictions    int
	CorrectPredictions  int
	FalsePositives      int
}

// prefetched is an Agent allocated ahead of demand, held until claimed or
// swept for staleness.
type prefetched struct {
	capability    swarmtypes.Capability
	personality   swarmtypes.AgentPersonality
	spawnedAt     time.Time
	predictedTask string
}

// Predictor is the predictive pre-spawner.
type Predictor struct {
	enabled bool

	mu       sync.RWMutex
	patterns []TaskPattern

	queueMu sync.Mutex
	queue   []prefetched

	accMu    sync.Mutex
	accuracy Accuracy

	logger *zap.Logger
}

// New constructs a Predictor seeded with the built-in trigger patterns.
func New(enabled bool, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		enabled: enabled,
		logger:  logger.With(zap.String("component", "predictor")),
		patterns: []TaskPattern{
			{
				Trigger: "auth",
				PredictedTasks: []PredictedTask{
					{Capability: swarmtypes.CapabilitySecurityAudit, Description: "Security audit of auth system", Delay: 2 * time.Second, Confidence: 0.95},
					{Capability: swarmtypes.CapabilityTesting, Description: "Write auth tests", Delay: 5 * time.Second, Confidence: 0.90},
				},
				Confidence:      0.95,
				OccurrenceCount: 100,
			},
			{
				Trigger: "api",
				PredictedTasks: []PredictedTask{
					{Capability: swarmtypes.CapabilityTesting, Description: "Write API tests", Delay: 3 * time.Second, Confidence: 0.88},
					{Capability: swarmtypes.CapabilityDocumentation, Description: "Document API endpoints", Delay: 4 * time.Second, Confidence: 0.85},
				},
				Confidence:      0.90,
				OccurrenceCount: 85,
			},
			{
				Trigger: "database",
				PredictedTasks: []PredictedTask{
					{Capability: swarmtypes.CapabilityTesting, Description: "Write database tests", Delay: 4 * time.Second, Confidence: 0.82},
				},
				Confidence:      0.85,
				OccurrenceCount: 60,
			},
		},
	}
}

// Enabled reports whether prediction is active for this run.
func (p *Predictor) Enabled() bool { return p.enabled }

// PredictNext matches a completed task's description against every
// trigger and returns, sorted by descending combined confidence, every
// predicted follow-on whose pattern-confidence x per-task-confidence meets
// the 0.6 threshold.
func (p *Predictor) PredictNext(task swarmtypes.Task) []Prediction {
	if !p.enabled {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	desc := strings.ToLower(task.Description)
	var out []Prediction
	for _, pattern := range p.patterns {
		if !strings.Contains(desc, pattern.Trigger) {
			continue
		}
		for _, pt := range pattern.PredictedTasks {
			combined := pt.Confidence * pattern.Confidence
			if combined < confidenceThreshold {
				continue
			}
			out = append(out, Prediction{
				PredictedTask:      pt,
				SourceTrigger:      pattern.Trigger,
				SourceTaskID:       task.ID,
				CombinedConfidence: combined,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CombinedConfidence > out[j].CombinedConfidence })
	return out
}

// PrefetchAgent pre-allocates an agent of the given capability, holding it
// in the prefetch queue until claimed via TakePrefetched or swept as stale.
func (p *Predictor) PrefetchAgent(goalHash swarmtypes.GoalHash, capability swarmtypes.Capability, predictedTask string) {
	entry := prefetched{
		capability:    capability,
		personality:   swarmtypes.DerivePersonality(goalHash, capability),
		spawnedAt:     time.Now(),
		predictedTask: predictedTask,
	}
	p.queueMu.Lock()
	p.queue = append(p.queue, entry)
	p.queueMu.Unlock()
	p.logger.Debug("prefetched agent", zap.String("capability", string(capability)))
}

// TakePrefetched claims and removes the first queued pre-allocation of the
// requested capability, if any.
func (p *Predictor) TakePrefetched(capability swarmtypes.Capability) (swarmtypes.AgentPersonality, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for i, entry := range p.queue {
		if entry.capability == capability {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return entry.personality, true
		}
	}
	return swarmtypes.AgentPersonality{}, false
}

// PrefetchCount reports the number of queued pre-allocations.
func (p *Predictor) PrefetchCount() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// CleanupPrefetches discards pre-allocations older than the configured
// freshness window, since an unclaimed pre-spawn still occupies a seat in
// the agent cap.
func (p *Predictor) CleanupPrefetches(window time.Duration) int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	now := time.Now()
	kept := p.queue[:0]
	discarded := 0
	for _, entry := range p.queue {
		if now.Sub(entry.spawnedAt) < window {
			kept = append(kept, entry)
		} else {
			discarded++
		}
	}
	p.queue = kept
	if discarded > 0 {
		p.decayUnclaimed(discarded)
	}
	return discarded
}

// decayUnclaimed lowers every pattern's confidence by 0.01 per discarded
// pre-allocation, floored at minConfidenceFloor. Pre-allocations do not
// record which pattern produced them, so all patterns decay alike, not only
// the one whose prediction went unclaimed.
func (p *Predictor) decayUnclaimed(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.patterns {
		c := p.patterns[i].Confidence - 0.01*float64(count)
		if c < minConfidenceFloor {
			c = minConfidenceFloor
		}
		p.patterns[i].Confidence = c
	}
}

// RecordOutcome logs whether a prior prediction was actually needed.
func (p *Predictor) RecordOutcome(actuallyNeeded bool) {
	p.accMu.Lock()
	defer p.accMu.Unlock()
	p.accuracy.TotalPredictions++
	if actuallyNeeded {
		p.accuracy.CorrectPredictions++
	} else {
		p.accuracy.FalsePositives++
	}
}

// AccuracySnapshot returns a copy of the running accuracy counters.
func (p *Predictor) AccuracySnapshot() Accuracy {
	p.accMu.Lock()
	defer p.accMu.Unlock()
	return p.accuracy
}

// LearnPattern reinforces an existing trigger's confidence (+0.01, capped
// at 1.0) or, for a brand-new trigger, registers it starting at 0.5.
func (p *Predictor) LearnPattern(trigger string, predicted []PredictedTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.patterns {
		if p.patterns[i].Trigger == trigger {
			p.patterns[i].OccurrenceCount++
			p.patterns[i].Confidence = min1(p.patterns[i].Confidence + 0.01)
			return
		}
	}
	p.patterns = append(p.patterns, TaskPattern{
		Trigger:         trigger,
		PredictedTasks:  predicted,
		Confidence:      0.5,
		OccurrenceCount: 1,
	})
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
