package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/bus"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/memory"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func voterID(seed string) swarmtypes.AgentID {
	goal := swarmtypes.NewGoal(seed)
	return swarmtypes.DeriveAgentID(goal.Hash, swarmtypes.CapabilityArchitecture, 0)
}

func newTestLoop(t *testing.T, quorum float64) (*Loop, *memory.Semantic, context.CancelFunc) {
	t.Helper()
	sem := memory.NewSemantic()
	b := bus.New(nil)
	loop := New(quorum, 5*time.Millisecond, 30*time.Millisecond, nil, b, sem, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	return loop, sem, cancel
}

func TestProposalAcceptedAboveQuorum(t *testing.T) {
	loop, sem, cancel := newTestLoop(t, 0.75)
	defer cancel()

	loop.Propose(swarmtypes.Proposal{ID: "p1", Topic: "library:http", Payload: "gin"})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v1"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 0.9})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v2"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 0.9})

	require.Eventually(t, func() bool {
		c, ok := sem.Get("library:http")
		return ok && c.Definition == "gin"
	}, time.Second, 5*time.Millisecond)
}

func TestProposalNotAcceptedOnTie(t *testing.T) {
	loop, sem, cancel := newTestLoop(t, 0.75)
	defer cancel()

	loop.Propose(swarmtypes.Proposal{ID: "p1", Topic: "library:router", Payload: "x"})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v1"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 0.5})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v2"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 0.5})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v3"), Choice: swarmtypes.VoteReject, AuthorityWeight: 0.5})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v4"), Choice: swarmtypes.VoteReject, AuthorityWeight: 0.5})

	time.Sleep(100 * time.Millisecond)
	_, ok := sem.Get("library:router")
	assert.False(t, ok, "tied vote must not write into semantic memory")
}

func TestDuplicateVoteFromSameVoterIgnored(t *testing.T) {
	loop, sem, cancel := newTestLoop(t, 0.75)
	defer cancel()

	loop.Propose(swarmtypes.Proposal{ID: "p1", Topic: "library:db", Payload: "postgres"})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v1"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 1.0})
	loop.Vote(swarmtypes.Vote{ProposalID: "p1", Voter: voterID("v1"), Choice: swarmtypes.VoteReject, AuthorityWeight: 1.0})

	require.Eventually(t, func() bool {
		_, ok := sem.Get("library:db")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestSameTopicSupersessionKeepsHigherWeight(t *testing.T) {
	loop, sem, cancel := newTestLoop(t, 0.75)
	defer cancel()
	now := time.Now()

	loop.Propose(swarmtypes.Proposal{ID: "low", Topic: "library:cache", Payload: "redis", OpenedAt: now})
	loop.Vote(swarmtypes.Vote{ProposalID: "low", Voter: voterID("v1"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 0.8})

	require.Eventually(t, func() bool {
		c, ok := sem.Get("library:cache")
		return ok && c.Definition == "redis"
	}, time.Second, 5*time.Millisecond)

	loop.Propose(swarmtypes.Proposal{ID: "high", Topic: "library:cache", Payload: "memcached", OpenedAt: now.Add(time.Millisecond)})
	loop.Vote(swarmtypes.Vote{ProposalID: "high", Voter: voterID("v2"), Choice: swarmtypes.VoteApprove, AuthorityWeight: 1.0})

	require.Eventually(t, func() bool {
		c, ok := sem.Get("library:cache")
		return ok && c.Definition == "memcached"
	}, time.Second, 5*time.Millisecond)
}
