// Package telemetry instruments a swarm run with Prometheus counters and
// histograms and an OpenTelemetry span per run, grounded on
// internal/metrics/collector.go's promauto.NewCounterVec/NewHistogramVec
// idiom and llm/observability/tracing.go's StartRun/EndRun span wrapping.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

const instrumentationName = "github.com/sentinel-swarm/swarmkit/internal/swarm"

// Collector holds every metric a swarm run emits.
type Collector struct {
	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	agentsSpawned    *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	consensusRounds  prometheus.Counter
	proposalOutcomes *prometheus.CounterVec
	rebalances       *prometheus.CounterVec
	predictionHits   *prometheus.CounterVec
	runDuration      prometheus.Histogram

	tracer trace.Tracer
	logger *zap.Logger
}

// New registers every swarm metric under namespace ("swarm" by default)
// against the default Prometheus registry.
func New(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = "swarm"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Collector{
		tasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of tasks dispatched, by outcome",
		}, []string{"capability", "outcome"}),

		taskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution wall time",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"capability"}),

		agentsSpawned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_spawned_total",
			Help:      "Total number of agents spawned, by capability",
		}, []string{"capability"}),

		conflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Total number of conflicts detected, by type and resolution",
		}, []string{"type", "resolved"}),

		consensusRounds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_rounds_total",
			Help:      "Total number of consensus proposals decided",
		}),

		proposalOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposal_outcomes_total",
			Help:      "Consensus proposal outcomes, by topic and outcome",
		}, []string{"topic", "outcome"}),

		rebalances: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balancer_rebalances_total",
			Help:      "Balancer rebalance actions taken, by strategy",
		}, []string{"strategy"}),

		predictionHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_outcomes_total",
			Help:      "Predictor pre-spawn outcomes, correct vs false positive",
		}, []string{"outcome"}),

		runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total wall time of one swarm run",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "telemetry")),
	}
}

// StartRun opens an OpenTelemetry span covering one Coordinator.Run call.
func (c *Collector) StartRun(ctx context.Context, goal swarmtypes.Goal) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "swarm.run",
		trace.WithAttributes(attribute.String("swarm.goal_hash", goalHashHex(goal))))
	return ctx, span
}

// EndRun closes the run span and records the overall duration histogram.
func (c *Collector) EndRun(span trace.Span, result swarmtypes.ExecutionResult, elapsed time.Duration) {
	span.SetAttributes(
		attribute.Int("swarm.agent_count", result.AgentCount),
		attribute.Int("swarm.conflicts_detected", result.ConflictsDetected),
		attribute.Int("swarm.conflicts_resolved", result.ConflictsResolved),
		attribute.Int("swarm.consensus_rounds", result.ConsensusRounds),
		attribute.Bool("swarm.abandoned", result.Abandoned),
	)
	span.End()
	c.runDuration.Observe(elapsed.Seconds())
}

// RecordTask records one task's terminal outcome and wall duration.
func (c *Collector) RecordTask(capability swarmtypes.Capability, state swarmtypes.TaskState, duration time.Duration) {
	c.tasksTotal.WithLabelValues(string(capability), string(state)).Inc()
	c.taskDuration.WithLabelValues(string(capability)).Observe(duration.Seconds())
}

// RecordAgentSpawned records one newly-derived agent.
func (c *Collector) RecordAgentSpawned(capability swarmtypes.Capability) {
	c.agentsSpawned.WithLabelValues(string(capability)).Inc()
}

// RecordConflict records one conflict-engine detection.
func (c *Collector) RecordConflict(conflictType swarmtypes.ConflictType, resolved bool) {
	c.conflictsTotal.WithLabelValues(string(conflictType), resolvedLabel(resolved)).Inc()
}

// RecordConsensusDecision records one proposal reaching a terminal outcome.
func (c *Collector) RecordConsensusDecision(topic string, outcome swarmtypes.ProposalOutcome) {
	c.consensusRounds.Inc()
	c.proposalOutcomes.WithLabelValues(topic, string(outcome)).Inc()
}

// RecordRebalance records one balancer action.
func (c *Collector) RecordRebalance(strategy string) {
	c.rebalances.WithLabelValues(strategy).Inc()
}

// RecordPrediction records a predictor pre-spawn outcome once it resolves
// (the spawned agent either got claimed by a real task or was swept stale).
func (c *Collector) RecordPrediction(correct bool) {
	outcome := "false_positive"
	if correct {
		outcome = "correct"
	}
	c.predictionHits.WithLabelValues(outcome).Inc()
}

func resolvedLabel(resolved bool) string {
	if resolved {
		return "true"
	}
	return "false"
}

func goalHashHex(goal swarmtypes.Goal) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i*2] = hexDigits[goal.Hash[i]>>4]
		b[i*2+1] = hexDigits[goal.Hash[i]&0xf]
	}
	return string(b)
}
