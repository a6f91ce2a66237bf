// Package agent implements a single swarm worker: personality-modulated
// prompt construction, completion via llmclient, output parsing, and the
// collaboration-style-specific behavior layered on top: a leader shares
// successful patterns. Other styles, reviewer included, add no behavior;
// nothing subscribes a reviewer to the bus or has it critique others'
// output.
//
// The State/validTransitions idiom is carried over from agent/state.go's
// lifecycle guard, narrowed to the states swarmtypes.AgentStatus already
// names.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/llmclient"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/parser"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// validTransitions mirrors agent/state.go's lifecycle guard, narrowed to
// the AgentStatus set swarmtypes already defines.
var validTransitions = map[swarmtypes.AgentStatus][]swarmtypes.AgentStatus{
	swarmtypes.AgentIdle:        {swarmtypes.AgentRunning, swarmtypes.AgentQuarantined},
	swarmtypes.AgentRunning:     {swarmtypes.AgentBlocked, swarmtypes.AgentCompleted, swarmtypes.AgentFailed},
	swarmtypes.AgentBlocked:     {swarmtypes.AgentRunning, swarmtypes.AgentFailed},
	swarmtypes.AgentCompleted:   {swarmtypes.AgentIdle},
	swarmtypes.AgentFailed:      {swarmtypes.AgentIdle, swarmtypes.AgentQuarantined},
	swarmtypes.AgentQuarantined: {},
}

// CanTransition reports whether an AgentStatus move is permitted.
func CanTransition(from, to swarmtypes.AgentStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when Agent.setStatus is asked to cross an
// edge validTransitions does not name.
type ErrInvalidTransition struct {
	From, To swarmtypes.AgentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("agent: invalid status transition %s -> %s", e.From, e.To)
}

// Agent is one deterministically-identified swarm worker bound to a single
// Task at a time.
type Agent struct {
	ID          swarmtypes.AgentID
	Capability  swarmtypes.Capability
	Personality swarmtypes.AgentPersonality

	mu     sync.Mutex
	status swarmtypes.AgentStatus

	providerName string
	llm          *llmclient.Facade
	mem          *memory.Layered
	bus          *bus.Bus
	logger       *zap.Logger
}

// New constructs an Agent bound to a capability and personality derived
// upstream by the coordinator (swarmtypes.DeriveAgentID/DerivePersonality).
func New(id swarmtypes.AgentID, capability swarmtypes.Capability, personality swarmtypes.AgentPersonality, providerName string, llm *llmclient.Facade, mem *memory.Layered, b *bus.Bus, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		ID:           id,
		Capability:   capability,
		Personality:  personality,
		status:       swarmtypes.AgentIdle,
		providerName: providerName,
		llm:          llm,
		mem:          mem,
		bus:          b,
		logger:       logger.With(zap.String("agent", id.String()), zap.String("capability", string(capability))),
	}
}

// Status returns the Agent's current lifecycle state.
func (a *Agent) Status() swarmtypes.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Agent) setStatus(to swarmtypes.AgentStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !CanTransition(a.status, to) {
		return &ErrInvalidTransition{From: a.status, To: to}
	}
	a.status = to
	return nil
}

// Execute runs one task end to end: build a personality-modulated prompt,
// call the LLM facade, parse the response into files, record the thinking
// trace, and broadcast TaskCompleted. On an LLM failure it broadcasts a
// HelpRequest instead and returns a partial AgentOutput (IDs and wall time,
// no content) with the error. Returns the AgentOutput regardless of the
// task's own outcome; callers distinguish success from the error return.
func (a *Agent) Execute(ctx context.Context, task swarmtypes.Task, sharedContext map[string]string) (swarmtypes.AgentOutput, error) {
	if err := a.setStatus(swarmtypes.AgentRunning); err != nil {
		return swarmtypes.AgentOutput{}, err
	}

	start := time.Now()
	prompt := a.buildPrompt(task, sharedContext)

	resp, err := a.llm.Complete(ctx, a.providerName, llmclient.Request{
		Model:       "gpt-4o-mini",
		Prompt:      prompt,
		Temperature: float32(0.3 + 0.5*a.Personality.Creativity),
	})
	if err != nil {
		_ = a.setStatus(swarmtypes.AgentFailed)
		if a.bus != nil {
			a.bus.Broadcast(bus.Message{Kind: bus.KindHelpRequest, From: a.ID, Topic: task.ID, Urgency: bus.UrgencyMedium, Payload: err.Error()})
		}
		out := swarmtypes.AgentOutput{AgentID: a.ID, TaskID: task.ID, WallDuration: time.Since(start)}
		return out, &swarmtypes.TaskExecutionError{TaskID: task.ID, AgentID: a.ID, Cause: err}
	}

	thinking, _ := parser.ExtractThinking(resp.Text)
	cleaned := parser.CleanResponse(resp.Text)
	parsedFiles := parser.Parse(cleaned)

	files := make([]swarmtypes.ExtractedFile, 0, len(parsedFiles))
	for _, f := range parsedFiles {
		files = append(files, swarmtypes.ExtractedFile{Path: f.Path, Language: f.Language, Body: f.Content, Partial: !f.Complete})
	}

	out := swarmtypes.AgentOutput{
		AgentID:       a.ID,
		TaskID:        task.ID,
		Content:       cleaned,
		Files:         files,
		ThinkingTrace: thinking,
		TokenCount:    resp.TokenCount,
		WallDuration:  time.Since(start),
	}

	if err := a.setStatus(swarmtypes.AgentCompleted); err != nil {
		a.logger.Warn("status transition rejected after successful execution", zap.Error(err))
	}

	a.collaborate(task, out)
	if a.bus != nil {
		a.bus.Broadcast(bus.Message{Kind: bus.KindTaskCompleted, From: a.ID, Topic: task.ID, Payload: out})
	}
	return out, nil
}

// buildPrompt composes the task prompt, modulated by personality: high
// thoroughness asks for edge-case handling and tests; high risk tolerance
// permits experimental approaches; low risk tolerance asks for
// conservative, well-trodden solutions.
func (a *Agent) buildPrompt(task swarmtypes.Task, sharedContext map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nCapability: %s\n", task.Description, a.Capability)

	if len(sharedContext) > 0 {
		b.WriteString("Shared context:\n")
		for k, v := range sharedContext {
			fmt.Fprintf(&b, "  %s: %s\n", k, v)
		}
	}

	if a.mem != nil {
		b.WriteString(a.mem.ContextString(task, sharedContext))
	}

	if a.Personality.Thoroughness > 0.6 {
		b.WriteString("Be thorough: cover edge cases and include tests.\n")
	}
	if a.Personality.RiskTolerance < 0.3 {
		b.WriteString("Prefer conservative, well-established approaches.\n")
	} else if a.Personality.RiskTolerance > 0.7 {
		b.WriteString("You may use newer or less conventional approaches if they fit.\n")
	}
	b.WriteString("Wrap internal reasoning in <thinking>...</thinking> before the code.\n")
	return b.String()
}

// collaborate layers the agent's CollaborationStyle on top of a completed
// task: a leader shares a successful pattern into procedural memory and
// broadcasts it as a PatternShare. Every other style returns without doing
// anything; a reviewer does not subscribe to the bus or critique others'
// TaskCompleted messages.
func (a *Agent) collaborate(task swarmtypes.Task, out swarmtypes.AgentOutput) {
	if a.Personality.CollaborationStyle != swarmtypes.StyleLeader {
		return
	}
	if a.mem == nil {
		return
	}
	pattern := swarmtypes.Pattern{
		ID:           "pattern:" + task.ID,
		Title:        "approach for " + string(a.Capability),
		Description:  out.Content,
		ApplicableTo: []string{string(a.Capability)},
		SuccessRate:  1.0,
		UsageCount:   1,
	}
	a.mem.Procedural.Store(pattern)

	if a.bus != nil {
		a.bus.Broadcast(bus.Message{
			Kind:    bus.KindPatternShare,
			From:    a.ID,
			Topic:   string(a.Capability),
			Payload: pattern,
		})
	}
}

// Reset returns a completed/failed agent to Idle so it can be reassigned
// a new task, per the Coordinator's agent-pool reuse policy.
func (a *Agent) Reset() error {
	return a.setStatus(swarmtypes.AgentIdle)
}
