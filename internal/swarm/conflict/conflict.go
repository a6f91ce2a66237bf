// Package conflict implements the conflict-detection/resolution engine:
// shared-file-write collisions, conflicting-library-choice proposals, and
// anti-dependency co-occurrence suspension. Grounded on spec §4.6, driven
// off the same AgentOutput/Task shapes the coordinator and agent packages
// produce.
package conflict

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/consensus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// AuthorityFunc mirrors consensus.AuthorityFunc; the engine needs it to
// tie-break shared-file-write conflicts.
type AuthorityFunc func(agent swarmtypes.AgentID) float64

// incompatiblePairs is the built-in mutually-exclusive-dependency table: if
// an output's content mentions one member of a pair and another output
// mentions the other, they conflict. Keyed by role so the opened Proposal
// topic is `library:<role>`.
var incompatiblePairs = map[string][][2]string{
	"http_router": {{"gin", "echo"}, {"gin", "fiber"}, {"echo", "fiber"}, {"chi", "gin"}},
	"orm":         {{"gorm", "ent"}, {"gorm", "sqlx"}},
	"test_runner": {{"testify", "ginkgo"}},
}

// Engine runs pairwise conflict inspection over completed AgentOutputs.
type Engine struct {
	mu        sync.Mutex
	conflicts []swarmtypes.Conflict
	suspended map[string]bool // taskID -> suspended

	authority AuthorityFunc
	episodic  *memory.Episodic
	consensus *consensus.Loop
	bus       *bus.Bus
	logger    *zap.Logger
}

func New(authority AuthorityFunc, episodic *memory.Episodic, cons *consensus.Loop, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		suspended: make(map[string]bool),
		authority: authority,
		episodic:  episodic,
		consensus: cons,
		bus:       b,
		logger:    logger.With(zap.String("component", "conflict_engine")),
	}
}

// InspectFileWrites scans every pair of outputs for the same extracted-file
// path and resolves in favor of the higher-authority author.
func (e *Engine) InspectFileWrites(outputs []swarmtypes.AgentOutput) {
	pathOwners := make(map[string][]swarmtypes.AgentOutput)
	for _, o := range outputs {
		for _, f := range o.Files {
			pathOwners[f.Path] = append(pathOwners[f.Path], o)
		}
	}
	for path, owners := range pathOwners {
		if len(owners) < 2 {
			continue
		}
		e.resolveSharedFileWrite(path, owners)
	}
}

func (e *Engine) resolveSharedFileWrite(path string, owners []swarmtypes.AgentOutput) {
	winner := owners[0]
	winnerWeight := e.weightOf(winner.AgentID)
	for _, o := range owners[1:] {
		w := e.weightOf(o.AgentID)
		if w > winnerWeight {
			winner, winnerWeight = o, w
		}
	}

	participants := make([]swarmtypes.AgentID, 0, len(owners))
	for _, o := range owners {
		participants = append(participants, o.AgentID)
		if o.AgentID == winner.AgentID {
			continue
		}
		if e.episodic != nil {
			for _, f := range o.Files {
				if f.Path == path {
					e.episodic.RecordAlternativeContent(path, o.AgentID, f.Body)
				}
			}
		}
	}

	c := swarmtypes.Conflict{
		ID:           uuid.New().String(),
		Type:         swarmtypes.ConflictSharedFileWrite,
		Participants: participants,
		Evidence:     path,
		Timestamp:    time.Now(),
		Resolved:     true,
		ResolutionNote: fmt.Sprintf("author %s chosen for %s by authority weight", winner.AgentID, path),
	}
	e.record(c)

	if e.bus != nil {
		e.bus.Broadcast(bus.Message{
			Kind:    bus.KindSystemMessage,
			Level:   bus.LevelWarning,
			Topic:   path,
			Payload: fmt.Sprintf("shared file write on %s resolved in favor of %s", path, winner.AgentID),
		})
	}
}

func (e *Engine) weightOf(agent swarmtypes.AgentID) float64 {
	if e.authority == nil {
		return 0
	}
	return e.authority(agent)
}

// InspectLibraryChoices scans output content for mutually-exclusive
// dependency mentions and opens a Proposal on library:<role> per conflict
// found, deferring resolution to the consensus loop.
func (e *Engine) InspectLibraryChoices(outputs []swarmtypes.AgentOutput) {
	for role, pairs := range incompatiblePairs {
		for _, pair := range pairs {
			var a, b *swarmtypes.AgentOutput
			for i := range outputs {
				content := strings.ToLower(outputs[i].Content)
				if strings.Contains(content, pair[0]) && a == nil {
					a = &outputs[i]
				}
				if strings.Contains(content, pair[1]) && b == nil {
					b = &outputs[i]
				}
			}
			if a == nil || b == nil || a.AgentID == b.AgentID {
				continue
			}
			e.openLibraryConflict(role, pair, *a, *b)
		}
	}
}

func (e *Engine) openLibraryConflict(role string, pair [2]string, a, b swarmtypes.AgentOutput) {
	c := swarmtypes.Conflict{
		ID:           uuid.New().String(),
		Type:         swarmtypes.ConflictConflictingLibraryChoice,
		Participants: []swarmtypes.AgentID{a.AgentID, b.AgentID},
		Evidence:     fmt.Sprintf("%s vs %s", pair[0], pair[1]),
		Timestamp:    time.Now(),
	}
	e.record(c)

	if e.consensus != nil {
		e.consensus.Propose(swarmtypes.Proposal{
			Issuer:  a.AgentID,
			Topic:   "library:" + role,
			Payload: pair[0],
		})
	}
}

// InspectAntiDependencies suspends the lower-priority task in any currently
// running anti-dependency pair, resuming it (by clearing the suspension) is
// the coordinator's job once the higher-priority task completes.
func (e *Engine) InspectAntiDependencies(running []swarmtypes.Task) {
	for i := range running {
		for j := i + 1; j < len(running); j++ {
			a, b := running[i], running[j]
			if !isAntiDependencyPair(a, b) {
				continue
			}
			loser := a
			if b.Priority < a.Priority {
				loser = b
			} else if a.Priority == b.Priority && b.ID > a.ID {
				loser = b
			}
			e.suspend(loser.ID)

			c := swarmtypes.Conflict{
				ID:           uuid.New().String(),
				Type:         swarmtypes.ConflictAntiDependencyCooccurrence,
				Participants: []swarmtypes.AgentID{a.AssignedAgent, b.AssignedAgent},
				Evidence:     fmt.Sprintf("tasks %s and %s", a.ID, b.ID),
				Timestamp:    time.Now(),
				Resolved:     true,
				ResolutionNote: fmt.Sprintf("suspended %s pending the higher-priority task", loser.ID),
			}
			e.record(c)
		}
	}
}

func isAntiDependencyPair(a, b swarmtypes.Task) bool {
	for _, id := range a.AntiDependsOn {
		if id == b.ID {
			return true
		}
	}
	for _, id := range b.AntiDependsOn {
		if id == a.ID {
			return true
		}
	}
	return false
}

func (e *Engine) suspend(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspended[taskID] = true
}

// Resume clears a task's suspension once the higher-priority counterpart
// completes.
func (e *Engine) Resume(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.suspended, taskID)
}

// IsSuspended reports whether a task is currently held back by the engine.
func (e *Engine) IsSuspended(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended[taskID]
}

func (e *Engine) record(c swarmtypes.Conflict) {
	e.mu.Lock()
	e.conflicts = append(e.conflicts, c)
	e.mu.Unlock()
}

// MarkUnresolved re-raises a conflict whose own resolution strategy failed
// as a HelpRequest(High), per spec §4.6/§7's ConflictUnresolved handling.
func (e *Engine) MarkUnresolved(c swarmtypes.Conflict, cause error) *swarmtypes.ConflictUnresolvedError {
	e.mu.Lock()
	c.Resolved = false
	c.ResolutionNote = "unresolved: " + cause.Error()
	e.conflicts = append(e.conflicts, c)
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Broadcast(bus.Message{Kind: bus.KindHelpRequest, Urgency: bus.UrgencyHigh, Payload: c})
	}
	return &swarmtypes.ConflictUnresolvedError{Conflict: c, Cause: cause}
}

// Snapshot returns a copy of every conflict recorded so far, and counts of
// detected/resolved for ExecutionResult assembly.
func (e *Engine) Snapshot() (conflicts []swarmtypes.Conflict, detected, resolved int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]swarmtypes.Conflict, len(e.conflicts))
	copy(out, e.conflicts)
	for _, c := range out {
		detected++
		if c.Resolved {
			resolved++
		}
	}
	return out, detected, resolved
}
