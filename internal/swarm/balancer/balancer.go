// Package balancer implements swarm auto-balancing and auto-healing:
// heartbeat-driven health classification, exponential-moving-average
// latency tracking, and the handle_slow/handle_stuck/handle_failed action
// table.
//
// Ported from original_source's crates/sentinel-agent-native/src/swarm/
// balancer.rs (SwarmBalancer): the alpha=0.3 EMA smoothing factor, the
// 5000ms slow threshold, and the 60s heartbeat-staleness-to-Stuck
// threshold are carried over unchanged.
package balancer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

const (
	emaAlpha           = 0.3
	slowLatencyMs      = 5000.0
	stuckHeartbeatSecs = 60
)

// HealthStatus is the closed set of classifications a monitored agent can
// carry.
type HealthStatus string

const (
	HealthHealthy    HealthStatus = "healthy"
	HealthSlow       HealthStatus = "slow"
	HealthStuck      HealthStatus = "stuck"
	HealthOverloaded HealthStatus = "overloaded"
	HealthFailed     HealthStatus = "failed"
)

// AgentHealth is the balancer's bookkeeping record for one agent.
type AgentHealth struct {
	AgentID            swarmtypes.AgentID
	Status             HealthStatus
	LastHeartbeat      time.Time
	TasksCompleted     int
	TasksFailed        int
	AvgResponseTimeMs  float64
	FailureReason      string
	HeartbeatStaleSecs int64
}

// RebalanceStrategy is the action a health check can trigger.
type RebalanceStrategy string

const (
	StrategySpawnHelper  RebalanceStrategy = "spawn_helper"
	StrategyRedistribute RebalanceStrategy = "redistribute"
	StrategyReplace      RebalanceStrategy = "replace"
	StrategyQuarantine   RebalanceStrategy = "quarantine"
)

// Stats accumulates counters across the balancer's lifetime.
type Stats struct {
	HealthChecks      int
	Rebalances        int
	AgentReplacements int
	Quarantines       int
}

// Balancer monitors agent health and issues rebalance/replace/quarantine
// decisions. It never removes an agent from the Coordinator's live set
// itself; RemoveFunc, when set, is called to do so, keeping ownership of
// the agent map with its single caller.
type Balancer struct {
	mu     sync.RWMutex
	health map[swarmtypes.AgentID]*AgentHealth
	stats  Stats

	bus    *bus.Bus
	logger *zap.Logger

	// RemoveFunc, if set, is invoked when the balancer decides an agent must
	// be taken out of circulation (stuck or failed).
	RemoveFunc func(swarmtypes.AgentID)
}

// New constructs a Balancer.
func New(b *bus.Bus, logger *zap.Logger) *Balancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Balancer{
		health: make(map[swarmtypes.AgentID]*AgentHealth),
		bus:    b,
		logger: logger.With(zap.String("component", "balancer")),
	}
}

// Register starts tracking a newly spawned agent as Healthy.
func (b *Balancer) Register(id swarmtypes.AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health[id] = &AgentHealth{
		AgentID:       id,
		Status:        HealthHealthy,
		LastHeartbeat: time.Now(),
	}
}

// Heartbeat records a liveness signal and clears a Slow/Stuck
// classification back to Healthy, since a fresh heartbeat is evidence the
// agent has recovered.
func (b *Balancer) Heartbeat(id swarmtypes.AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.health[id]
	if !ok {
		return
	}
	h.LastHeartbeat = time.Now()
	if h.Status == HealthStuck || h.Status == HealthSlow {
		h.Status = HealthHealthy
	}
}

// TaskCompleted folds one task outcome into the agent's EMA latency and
// re-evaluates the Slow classification.
func (b *Balancer) TaskCompleted(id swarmtypes.AgentID, success bool, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.health[id]
	if !ok {
		return
	}
	if success {
		h.TasksCompleted++
	} else {
		h.TasksFailed++
	}

	durationMs := float64(duration.Milliseconds())
	h.AvgResponseTimeMs = emaAlpha*durationMs + (1-emaAlpha)*h.AvgResponseTimeMs

	if h.AvgResponseTimeMs > slowLatencyMs {
		h.Status = HealthSlow
	}
}

// MarkFailed records a hard failure, e.g. an unrecoverable LLM error or a
// panic recovered from the agent's task loop.
func (b *Balancer) MarkFailed(id swarmtypes.AgentID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.health[id]
	if !ok {
		return
	}
	h.Status = HealthFailed
	h.FailureReason = reason
}

// CheckAndRebalance walks every tracked agent, reclassifies heartbeat
// staleness, and applies the handle_slow/handle_stuck/handle_failed action
// table. Returns the strategies actually invoked, one per affected agent.
func (b *Balancer) CheckAndRebalance() map[swarmtypes.AgentID]RebalanceStrategy {
	b.mu.Lock()
	b.stats.HealthChecks++
	ids := make([]swarmtypes.AgentID, 0, len(b.health))
	for id := range b.health {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	actions := make(map[swarmtypes.AgentID]RebalanceStrategy)
	now := time.Now()
	for _, id := range ids {
		b.mu.Lock()
		h, ok := b.health[id]
		if !ok {
			b.mu.Unlock()
			continue
		}
		status := h.Status
		elapsed := now.Sub(h.LastHeartbeat)
		if status == HealthHealthy && elapsed > stuckHeartbeatSecs*time.Second {
			h.Status = HealthStuck
			h.HeartbeatStaleSecs = int64(elapsed.Seconds())
			status = HealthStuck
		}
		b.mu.Unlock()

		switch status {
		case HealthSlow:
			b.handleSlow(id)
			actions[id] = StrategySpawnHelper
		case HealthStuck:
			b.handleStuck(id)
			actions[id] = StrategyReplace
		case HealthFailed:
			b.handleFailed(id)
			actions[id] = StrategyQuarantine
		}
	}
	return actions
}

func (b *Balancer) handleSlow(id swarmtypes.AgentID) {
	b.logger.Info("agent is slow, spawning helper", zap.String("agent", id.String()))
	b.mu.Lock()
	b.stats.Rebalances++
	b.mu.Unlock()
	b.notify(id, "agent is slow, helper requested")
}

func (b *Balancer) handleStuck(id swarmtypes.AgentID) {
	b.logger.Warn("agent is stuck, replacing", zap.String("agent", id.String()))
	b.mu.Lock()
	delete(b.health, id)
	b.stats.AgentReplacements++
	b.mu.Unlock()
	if b.RemoveFunc != nil {
		b.RemoveFunc(id)
	}
	b.notify(id, "agent stuck past heartbeat timeout, replaced")
}

func (b *Balancer) handleFailed(id swarmtypes.AgentID) {
	b.logger.Error("agent failed, quarantining and replacing", zap.String("agent", id.String()))
	b.mu.Lock()
	if h, ok := b.health[id]; ok {
		h.Status = HealthStuck
		h.HeartbeatStaleSecs = 9999
	}
	b.stats.Quarantines++
	b.stats.AgentReplacements++
	b.mu.Unlock()
	if b.RemoveFunc != nil {
		b.RemoveFunc(id)
	}
	b.notify(id, "agent failed, quarantined")
}

func (b *Balancer) notify(id swarmtypes.AgentID, reason string) {
	if b.bus == nil {
		return
	}
	b.bus.Broadcast(bus.Message{
		Kind:    bus.KindSystemMessage,
		Level:   bus.LevelWarning,
		From:    id,
		Payload: reason,
	})
}

// RedistributeWorkload is a bookkeeping hook the Coordinator calls after it
// has actually moved an agent's pending tasks elsewhere.
func (b *Balancer) RedistributeWorkload(from swarmtypes.AgentID) {
	b.logger.Info("redistributing workload", zap.String("from", from.String()))
	b.mu.Lock()
	b.stats.Rebalances++
	b.mu.Unlock()
}

// Health returns a copy of one agent's tracked health, if known.
func (b *Balancer) Health(id swarmtypes.AgentID) (AgentHealth, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.health[id]
	if !ok {
		return AgentHealth{}, false
	}
	return *h, true
}

// AllHealth returns a snapshot of every tracked agent's health.
func (b *Balancer) AllHealth() map[swarmtypes.AgentID]AgentHealth {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[swarmtypes.AgentID]AgentHealth, len(b.health))
	for id, h := range b.health {
		out[id] = *h
	}
	return out
}

// Stats returns a copy of the running balancer statistics.
func (b *Balancer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// CountByStatus tallies tracked agents per HealthStatus.
func (b *Balancer) CountByStatus() map[HealthStatus]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[HealthStatus]int)
	for _, h := range b.health {
		counts[h.Status]++
	}
	return counts
}
