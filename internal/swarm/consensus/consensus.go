// Package consensus implements the continuous consensus loop: a background
// tick plus event-driven wakeups on incoming Proposals/Votes, windowed
// quorum decisions weighted by authority, and same-topic supersession.
//
// Grounded on spec §4.3; no teacher file implements this shape directly, so
// the background-loop/ticker idiom is carried over from
// agent/memory (sweeper goroutines) and the bus package's own
// select-on-ticker-or-channel pattern.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// AuthorityFunc computes an agent's authority-weight from its personality's
// thoroughness and recent success-rate, clamped to [0,1]. Recomputed at
// Proposal close only — an agent cannot retroactively alter its weight on a
// past Proposal.
type AuthorityFunc func(agent swarmtypes.AgentID) float64

// topicWinner records the currently-accepted proposal for a topic along
// with the approve-weight that won it, so a later-decided proposal on the
// same topic only supersedes when its approve-weight is strictly greater
// (ties keep the earlier-timestamped winner).
type topicWinner struct {
	proposalID    string
	approveWeight float64
	openedAt      time.Time
}

type openProposal struct {
	proposal swarmtypes.Proposal
	deadline time.Time
	votes    map[swarmtypes.AgentID]swarmtypes.Vote // one per voter, append-only
}

// Loop runs the continuous consensus protocol.
type Loop struct {
	mu        sync.Mutex
	open      map[string]*openProposal
	byTopic   map[string]topicWinner // topic -> currently-accepted proposal
	authority AuthorityFunc

	quorumThreshold float64
	tickInterval    time.Duration
	window          time.Duration

	bus     *bus.Bus
	sem     *memory.Semantic
	logger  *zap.Logger
	rounds  int
	proposalCh chan swarmtypes.Proposal
	voteCh     chan swarmtypes.Vote
	done       chan struct{}
}

// New constructs a consensus Loop. quorumThreshold must be in (0,1];
// config.Validate enforces that upstream.
func New(quorumThreshold float64, tickInterval, window time.Duration, authority AuthorityFunc, b *bus.Bus, sem *memory.Semantic, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		open:            make(map[string]*openProposal),
		byTopic:         make(map[string]topicWinner),
		authority:       authority,
		quorumThreshold: quorumThreshold,
		tickInterval:    tickInterval,
		window:          window,
		bus:             b,
		sem:             sem,
		logger:          logger.With(zap.String("component", "consensus")),
		proposalCh:      make(chan swarmtypes.Proposal, 64),
		voteCh:          make(chan swarmtypes.Vote, 256),
		done:            make(chan struct{}),
	}
}

// Propose opens a new Proposal for voting; the window starts now.
func (l *Loop) Propose(p swarmtypes.Proposal) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	p.Outcome = swarmtypes.ProposalOpen
	l.proposalCh <- p
}

// Vote casts a ballot. Votes are append-only per (proposal, voter): a
// second vote from the same voter on the same proposal is ignored, not
// overwritten, per the data model's invariant.
func (l *Loop) Vote(v swarmtypes.Vote) {
	if v.CastAt.IsZero() {
		v.CastAt = time.Now()
	}
	l.voteCh <- v
}

// Run drives the tick+event loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(l.done)
			return
		case p := <-l.proposalCh:
			l.mu.Lock()
			l.open[p.ID] = &openProposal{proposal: p, deadline: p.OpenedAt.Add(l.window), votes: make(map[swarmtypes.AgentID]swarmtypes.Vote)}
			l.mu.Unlock()
		case v := <-l.voteCh:
			l.mu.Lock()
			if op, ok := l.open[v.ProposalID]; ok {
				if _, already := op.votes[v.Voter]; !already {
					op.votes[v.Voter] = v
				}
			}
			l.mu.Unlock()
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, op := range l.open {
		if now.Before(op.deadline) {
			continue
		}
		l.decide(id, op, now)
	}
}

// decide closes a window-expired proposal. Caller holds l.mu.
func (l *Loop) decide(id string, op *openProposal, now time.Time) {
	var approveWeight, rejectWeight, totalWeight float64
	for voter, v := range op.votes {
		w := v.AuthorityWeight
		if l.authority != nil {
			w = clamp01(l.authority(voter))
		}
		totalWeight += w
		switch v.Choice {
		case swarmtypes.VoteApprove:
			approveWeight += w
		case swarmtypes.VoteReject:
			rejectWeight += w
		}
	}

	p := op.proposal
	p.DecidedAt = now
	switch {
	case totalWeight > 0 && approveWeight >= l.quorumThreshold*totalWeight:
		p.Outcome = swarmtypes.ProposalAccepted
		l.accept(p, approveWeight)
	case totalWeight > 0 && rejectWeight > (1-l.quorumThreshold)*totalWeight:
		p.Outcome = swarmtypes.ProposalRejected
	default:
		p.Outcome = swarmtypes.ProposalAbandoned
	}

	l.rounds++
	delete(l.open, id)

	if l.bus != nil {
		l.bus.Broadcast(bus.Message{
			Kind:    bus.KindSystemMessage,
			Level:   bus.LevelInfo,
			Topic:   p.Topic,
			Payload: p,
		})
	}
}

// accept applies the same-topic supersession rule: among proposals that
// decide Accepted on the same topic, the one with the highest
// approve-weight wins; ties keep whichever opened earliest. Only the
// winner's choice is written into semantic memory, and a Warning is only
// emitted when a winner actually displaces a prior one.
func (l *Loop) accept(p swarmtypes.Proposal, approveWeight float64) {
	prev, had := l.byTopic[p.Topic]
	if had {
		winsOverPrior := approveWeight > prev.approveWeight ||
			(approveWeight == prev.approveWeight && p.OpenedAt.Before(prev.openedAt))
		if !winsOverPrior {
			return
		}
		if prev.proposalID != p.ID && l.bus != nil {
			l.bus.Broadcast(bus.Message{
				Kind:    bus.KindSystemMessage,
				Level:   bus.LevelWarning,
				Topic:   p.Topic,
				Payload: "proposal " + p.ID + " supersedes prior accepted proposal " + prev.proposalID + " on topic " + p.Topic,
			})
		}
	}
	l.byTopic[p.Topic] = topicWinner{proposalID: p.ID, approveWeight: approveWeight, openedAt: p.OpenedAt}
	if l.sem != nil {
		l.sem.Store(swarmtypes.Concept{ID: p.Topic, Name: p.Topic, Definition: p.Payload})
	}
}

// Rounds returns the number of proposals decided so far.
func (l *Loop) Rounds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rounds
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
