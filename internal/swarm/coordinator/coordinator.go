// Package coordinator decomposes a Goal into a dependency DAG of Tasks,
// assigns each ready task to a load-balanced agent, dispatches execution
// bounded by a concurrency semaphore, and folds results (plus conflicts and
// consensus rounds) into a single ExecutionResult.
//
// The cycle-detection DFS is grounded on workflow/dag_builder.go's
// hasCycleDFS, generalized to report every node on the cycle
// (swarmtypes.CycleError) rather than just the one where the back-edge was
// found. Bounded concurrent dispatch is grounded on golang.org/x/sync, used
// elsewhere in the teacher's pack for exactly this purpose.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/agent"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/balancer"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/conflict"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/config"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/consensus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/predictor"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/telemetry"
)

// Decompose turns a Goal into the minimum viable task set: every goal gets
// an architecture, code-generation, testing, and documentation task (the
// four baseline kinds), plus capability-specific tasks triggered by
// keywords in the goal text itself.
func Decompose(goal swarmtypes.Goal) []swarmtypes.Task {
	text := strings.ToLower(goal.Text)

	tasks := []swarmtypes.Task{
		{ID: "architecture", Description: "Design the overall architecture for: " + goal.Text, Capability: swarmtypes.CapabilityArchitecture, Priority: 1.0},
		{ID: "codegen", Description: "Implement the core functionality for: " + goal.Text, Capability: swarmtypes.CapabilityCodeGen, Priority: 0.9, DependsOn: []string{"architecture"}},
		{ID: "testing", Description: "Write tests covering: " + goal.Text, Capability: swarmtypes.CapabilityTesting, Priority: 0.7, DependsOn: []string{"codegen"}},
		{ID: "documentation", Description: "Document the delivered functionality for: " + goal.Text, Capability: swarmtypes.CapabilityDocumentation, Priority: 0.5, DependsOn: []string{"codegen"}},
	}

	if strings.Contains(text, "api") {
		tasks = append(tasks, swarmtypes.Task{ID: "api_design", Description: "Design the API surface for: " + goal.Text, Capability: swarmtypes.CapabilityAPIDesign, Priority: 0.95, DependsOn: []string{"architecture"}})
		for i := range tasks {
			if tasks[i].ID == "codegen" {
				tasks[i].DependsOn = append(tasks[i].DependsOn, "api_design")
			}
		}
	}
	if strings.Contains(text, "auth") || strings.Contains(text, "security") {
		tasks = append(tasks, swarmtypes.Task{ID: "security_audit", Description: "Audit the security of: " + goal.Text, Capability: swarmtypes.CapabilitySecurityAudit, Priority: 0.85, DependsOn: []string{"codegen"}})
	}
	if strings.Contains(text, "refactor") {
		tasks = append(tasks, swarmtypes.Task{ID: "refactoring", Description: "Refactor the implementation of: " + goal.Text, Capability: swarmtypes.CapabilityRefactoring, Priority: 0.6, DependsOn: []string{"codegen"}})
	}

	for i := range tasks {
		tasks[i].State = swarmtypes.TaskPending
	}
	return tasks
}

// BuildDAG validates a task set's dependency edges, returning a
// swarmtypes.CycleError naming every task on a detected cycle.
func BuildDAG(tasks []swarmtypes.Task) (map[string]swarmtypes.Task, error) {
	byID := make(map[string]swarmtypes.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}

	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	var path []string
	var visit func(id string) error
	visit = func(id string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			cycleStart := indexOf(path, id)
			return &swarmtypes.CycleError{Cycle: append([]string{}, path[cycleStart:]...)}
		}
		visited[id] = 1
		path = append(path, id)
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		visited[id] = 2
		return nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return byID, nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}

// Coordinator owns one swarm run's agent pool, dispatch loop, and the
// supporting subsystems (memory, bus, consensus, conflict, balancer,
// predictor).
type Coordinator struct {
	cfg config.SwarmConfig

	bus       *bus.Bus
	mem       *memory.Layered
	consensus *consensus.Loop
	conflict  *conflict.Engine
	balancer  *balancer.Balancer
	predictor *predictor.Predictor
	llm       *llmclient.Facade

	providerName string
	logger       *zap.Logger
	telemetry    *telemetry.Collector

	mu     sync.Mutex
	agents map[swarmtypes.AgentID]*agent.Agent
	load   map[swarmtypes.AgentID]int
}

// WithTelemetry attaches a metrics/tracing Collector to the Coordinator.
// Optional: a nil Collector is never dereferenced, Run simply skips
// instrumentation.
func (c *Coordinator) WithTelemetry(t *telemetry.Collector) *Coordinator {
	c.telemetry = t
	return c
}

// New wires a Coordinator from already-constructed subsystems, so tests can
// substitute a MockProvider-backed facade and an in-process memory/bus
// pair without touching any network dependency.
func New(cfg config.SwarmConfig, providerName string, llm *llmclient.Facade, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := bus.New(logger)
	mem := memory.NewLayered(memory.Config{WorkingSweepPeriod: cfg.WorkingMemorySweep}, logger)
	sem := mem.Semantic

	c := &Coordinator{
		cfg:          cfg,
		bus:          b,
		mem:          mem,
		balancer:     balancer.New(b, logger),
		predictor:    predictor.New(cfg.EnablePrediction, logger),
		llm:          llm,
		providerName: providerName,
		logger:       logger.With(zap.String("component", "coordinator")),
		agents:       make(map[swarmtypes.AgentID]*agent.Agent),
		load:         make(map[swarmtypes.AgentID]int),
	}
	c.consensus = consensus.New(cfg.QuorumThreshold, cfg.ConsensusInterval, cfg.ProposalWindow, c.authorityOf, b, sem, logger)
	c.conflict = conflict.New(c.authorityOf, mem.Episodic, c.consensus, b, logger)
	return c
}

// authorityOf derives an agent's voting weight from its personality's
// thoroughness, folded with the balancer's observed success rate.
func (c *Coordinator) authorityOf(id swarmtypes.AgentID) float64 {
	c.mu.Lock()
	a, ok := c.agents[id]
	c.mu.Unlock()
	base := 0.5
	if ok {
		base = a.Personality.Thoroughness
	}
	if h, ok := c.balancer.Health(id); ok {
		total := h.TasksCompleted + h.TasksFailed
		if total > 0 {
			rate := float64(h.TasksCompleted) / float64(total)
			return consensusClamp((base + rate) / 2)
		}
	}
	return consensusClamp(base)
}

func consensusClamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// spawnAgent deterministically derives and registers an agent for a
// capability, using the lowest unused replica index.
func (c *Coordinator) spawnAgent(goalHash swarmtypes.GoalHash, capability swarmtypes.Capability) *agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()

	replica := 0
	for {
		id := swarmtypes.DeriveAgentID(goalHash, capability, replica)
		if _, exists := c.agents[id]; !exists {
			personality := swarmtypes.DerivePersonality(goalHash, capability)
			a := agent.New(id, capability, personality, c.providerName, c.llm, c.mem, c.bus, c.logger)
			c.agents[id] = a
			c.load[id] = 0
			c.balancer.Register(id)
			if c.telemetry != nil {
				c.telemetry.RecordAgentSpawned(capability)
			}
			return a
		}
		replica++
	}
}

// pickAgent returns the lowest-loaded existing agent for a capability. It
// spawns a fresh one when none exists yet, or when every existing one is
// busy and the pool is still below MaxAgents; once the pool holds MaxAgents
// agents the lowest-loaded one is reused even if busy. Ties break on the
// lower AgentID, matching the coordinator's documented stable tie-break rule.
func (c *Coordinator) pickAgent(goalHash swarmtypes.GoalHash, capability swarmtypes.Capability) *agent.Agent {
	c.mu.Lock()
	var best *agent.Agent
	bestLoad := -1
	var bestID swarmtypes.AgentID
	for id, a := range c.agents {
		if a.Capability != capability {
			continue
		}
		load := c.load[id]
		if best == nil || load < bestLoad || (load == bestLoad && id.Less(bestID)) {
			best, bestLoad, bestID = a, load, id
		}
	}
	count := len(c.agents)
	c.mu.Unlock()

	if best != nil && (bestLoad == 0 || count >= c.cfg.MaxAgents) {
		return best
	}
	if count >= c.cfg.MaxAgents && best != nil {
		return best
	}
	return c.spawnAgent(goalHash, capability)
}

// Run decomposes goal, builds its DAG, and dispatches every task to
// completion (or abandonment) bounded by cfg.MaxExecutionTime, returning
// the aggregated ExecutionResult.
func (c *Coordinator) Run(ctx context.Context, goal swarmtypes.Goal) (swarmtypes.ExecutionResult, error) {
	start := time.Now()
	var runSpan trace.Span
	if c.telemetry != nil {
		ctx, runSpan = c.telemetry.StartRun(ctx, goal)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxExecutionTime)
	defer cancel()

	consensusCtx, stopConsensus := context.WithCancel(ctx)
	defer stopConsensus()
	go c.consensus.Run(consensusCtx)

	tasks := Decompose(goal)
	byID, err := BuildDAG(tasks)
	if err != nil {
		return swarmtypes.ExecutionResult{}, err
	}

	sem := semaphore.NewWeighted(int64(c.cfg.MaxConcurrentLLM))
	var mu sync.Mutex
	var wg sync.WaitGroup
	outputs := make([]swarmtypes.AgentOutput, 0, len(byID))
	sharedContext := make(map[string]string)
	abandoned := false

	for !allTerminal(byID) {
		select {
		case <-ctx.Done():
			abandoned = true
			for id, t := range byID {
				if !t.State.IsTerminal() {
					t.State = swarmtypes.TaskAbandoned
					byID[id] = t
				}
			}
		default:
		}
		if abandoned {
			break
		}

		ready := readyTasks(byID)
		if len(ready) == 0 {
			break // nothing ready and nothing terminal: a real dependency stall
		}

		c.conflict.InspectAntiDependencies(ready)

		for _, t := range ready {
			if c.conflict.IsSuspended(t.ID) {
				continue
			}
			t := t
			if err := sem.Acquire(ctx, 1); err != nil {
				abandoned = true
				break
			}

			mu.Lock()
			t.State = swarmtypes.TaskRunning
			byID[t.ID] = t
			mu.Unlock()

			a := c.pickAgent(goal.Hash, t.Capability)
			c.mu.Lock()
			c.load[a.ID]++
			c.mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				taskStart := time.Now()
				out, execErr := a.Execute(ctx, t, sharedContext)

				c.mu.Lock()
				c.load[a.ID]--
				c.mu.Unlock()
				c.balancer.TaskCompleted(a.ID, execErr == nil, time.Since(taskStart))
				c.balancer.Heartbeat(a.ID)
				_ = a.Reset()

				mu.Lock()
				defer mu.Unlock()
				updated := byID[t.ID]
				if execErr != nil {
					updated.State = swarmtypes.TaskFailed
				} else {
					updated.State = swarmtypes.TaskCompleted
					outputs = append(outputs, out)
					for _, f := range out.Files {
						sharedContext[f.Path] = f.Language
					}
				}
				byID[t.ID] = updated
				if c.telemetry != nil {
					c.telemetry.RecordTask(t.Capability, updated.State, time.Since(taskStart))
				}
			}()
		}
		wg.Wait()

		mu.Lock()
		c.conflict.InspectFileWrites(outputs)
		mu.Unlock()

		if c.cfg.EnableBalancing {
			c.balancer.CheckAndRebalance()
		}
	}

	var blocked []string
	for id, t := range byID {
		if t.State == swarmtypes.TaskBlocked || (!t.State.IsTerminal() && !abandoned) {
			blocked = append(blocked, id)
		}
	}
	sort.Strings(blocked)
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].AgentID.Less(outputs[j].AgentID) })

	conflicts, detected, resolved := c.conflict.Snapshot()
	if c.telemetry != nil {
		for _, conf := range conflicts {
			c.telemetry.RecordConflict(conf.Type, conf.Resolved)
		}
	}

	c.mu.Lock()
	agentCount := len(c.agents)
	c.mu.Unlock()

	result := swarmtypes.ExecutionResult{
		AgentCount:        agentCount,
		Outputs:           outputs,
		ConflictsDetected: detected,
		ConflictsResolved: resolved,
		ConsensusRounds:   c.consensus.Rounds(),
		ElapsedMs:         time.Since(start).Milliseconds(),
		BlockedTasks:      blocked,
		Abandoned:         abandoned,
	}
	if c.telemetry != nil {
		c.telemetry.EndRun(runSpan, result, time.Since(start))
	}
	return result, nil
}

func allTerminal(byID map[string]swarmtypes.Task) bool {
	for _, t := range byID {
		if !t.State.IsTerminal() {
			return false
		}
	}
	return true
}

// readyTasks returns every Pending task whose DependsOn are all Completed,
// sorted by descending Priority then ID for a deterministic dispatch order.
func readyTasks(byID map[string]swarmtypes.Task) []swarmtypes.Task {
	var ready []swarmtypes.Task
	for _, t := range byID {
		if t.State != swarmtypes.TaskPending {
			continue
		}
		allDepsDone := true
		for _, dep := range t.DependsOn {
			if byID[dep].State != swarmtypes.TaskCompleted {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// Bus exposes the coordinator's communication bus, mainly for telemetry
// subscribers.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// Memory exposes the coordinator's layered memory.
func (c *Coordinator) Memory() *memory.Layered { return c.mem }

// Balancer exposes the coordinator's health balancer.
func (c *Coordinator) Balancer() *balancer.Balancer { return c.balancer }

// Predictor exposes the coordinator's predictive pre-spawner.
func (c *Coordinator) Predictor() *predictor.Predictor { return c.predictor }
