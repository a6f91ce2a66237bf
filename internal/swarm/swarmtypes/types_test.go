package swarmtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAgentIDIsPureFunction(t *testing.T) {
	goal := NewGoal("Build a JWT authentication module")

	a1 := DeriveAgentID(goal.Hash, CapabilitySecurityAudit, 0)
	a2 := DeriveAgentID(goal.Hash, CapabilitySecurityAudit, 0)
	assert.Equal(t, a1, a2, "same inputs must yield the same AgentID")

	a3 := DeriveAgentID(goal.Hash, CapabilitySecurityAudit, 1)
	assert.NotEqual(t, a1, a3, "bumping replica index must change the AgentID")

	a4 := DeriveAgentID(goal.Hash, CapabilityTesting, 0)
	assert.NotEqual(t, a1, a4, "different capability must change the AgentID")
}

func TestDeriveAgentIDStableAcrossReruns(t *testing.T) {
	goal := NewGoal("identical goal text")
	first := DeriveAgentID(goal.Hash, CapabilityAPIDesign, 0)

	goalAgain := NewGoal("identical goal text")
	second := DeriveAgentID(goalAgain.Hash, CapabilityAPIDesign, 0)

	assert.Equal(t, first, second)
}

func TestDerivePersonalityDivergesByCapability(t *testing.T) {
	goal := NewGoal("Build a JWT authentication module")

	p1 := DerivePersonality(goal.Hash, CapabilityArchitecture)
	p2 := DerivePersonality(goal.Hash, CapabilityTesting)

	assert.NotEqual(t, p1, p2)
	for _, p := range []AgentPersonality{p1, p2} {
		assert.GreaterOrEqual(t, p.Creativity, 0.0)
		assert.LessOrEqual(t, p.Creativity, 1.0)
		assert.GreaterOrEqual(t, p.Thoroughness, 0.0)
		assert.LessOrEqual(t, p.Thoroughness, 1.0)
	}
}

func TestCanonicalizeCapabilityMapsLegacyNames(t *testing.T) {
	assert.Equal(t, CapabilityArchitecture, CanonicalizeCapability("AuthArchitect"))
	assert.Equal(t, CapabilityArchitecture, CanonicalizeCapability("Refactoring design"))
	assert.Equal(t, CapabilityTesting, CanonicalizeCapability("TestWriter"))
	assert.Equal(t, CapabilitySecurityAudit, CanonicalizeCapability("SecurityAuditor"))
}

func TestTaskStateIsTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.True(t, TaskAbandoned.IsTerminal())
	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
	assert.False(t, TaskBlocked.IsTerminal())
}

func TestAgentIDLessTotalOrder(t *testing.T) {
	goal := NewGoal("order check")
	a := DeriveAgentID(goal.Hash, CapabilityTesting, 0)
	b := DeriveAgentID(goal.Hash, CapabilityTesting, 1)

	assert.NotEqual(t, a.Less(b), b.Less(a))
}

func TestMemoryEntryExpired(t *testing.T) {
	now := time.Now()
	e := MemoryEntry{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, e.Expired(now))

	e2 := MemoryEntry{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, e2.Expired(now))
}
