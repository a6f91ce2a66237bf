package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func testAgentID(seed string) swarmtypes.AgentID {
	goal := swarmtypes.NewGoal(seed)
	return swarmtypes.DeriveAgentID(goal.Hash, swarmtypes.CapabilityTesting, 0)
}

func TestWorkingWriteRead(t *testing.T) {
	w := NewWorking(0, nil)
	defer w.Stop()
	ctx := context.Background()
	agent := testAgentID("a")

	require.NoError(t, w.Write(ctx, "k1", "value", time.Minute, agent))

	var got string
	require.NoError(t, w.Read(ctx, "k1", &got))
	assert.Equal(t, "value", got)
}

func TestWorkingReadExpired(t *testing.T) {
	w := NewWorking(0, nil)
	defer w.Stop()
	ctx := context.Background()
	agent := testAgentID("a")

	require.NoError(t, w.Write(ctx, "k1", "value", -time.Second, agent))

	var got string
	err := w.Read(ctx, "k1", &got)
	assert.ErrorIs(t, err, swarmtypes.ErrMemoryKeyNotFound)
}

func TestWorkingSweeperRemovesExpired(t *testing.T) {
	w := NewWorking(20*time.Millisecond, nil)
	defer w.Stop()
	ctx := context.Background()
	agent := testAgentID("a")

	require.NoError(t, w.Write(ctx, "k1", "value", time.Millisecond, agent))
	time.Sleep(100 * time.Millisecond)

	_, ok, _ := w.store.Get(ctx, "k1")
	assert.False(t, ok, "sweeper should have removed the expired entry")
}

func TestShareInsightWritesNCopies(t *testing.T) {
	w := NewWorking(0, nil)
	defer w.Stop()
	ctx := context.Background()
	from := testAgentID("leader")
	to := []swarmtypes.AgentID{testAgentID("r1"), testAgentID("r2"), testAgentID("r3")}

	require.NoError(t, w.ShareInsight(ctx, from, to, "use JWT for auth", time.Minute))

	for _, recipient := range to {
		key := "insight_from_" + from.String() + "_to_" + recipient.String()
		var got string
		require.NoError(t, w.Read(ctx, key, &got))
		assert.Equal(t, "use JWT for auth", got)
	}
}

func TestEpisodicAppendOnlyPerCategory(t *testing.T) {
	e := NewEpisodic()
	e.Record(swarmtypes.Episode{Category: "auth", Description: "first"})
	e.Record(swarmtypes.Episode{Category: "auth", Description: "second"})
	e.Record(swarmtypes.Episode{Category: "db", Description: "other"})

	auth := e.Category("auth")
	require.Len(t, auth, 2)
	assert.Equal(t, "first", auth[0].Description)
	assert.Equal(t, "second", auth[1].Description)
}

func TestSemanticOverwriteAllowed(t *testing.T) {
	s := NewSemantic()
	s.Store(swarmtypes.Concept{ID: "router", Definition: "use gin"})
	s.Store(swarmtypes.Concept{ID: "router", Definition: "use chi"})

	c, ok := s.Get("router")
	require.True(t, ok)
	assert.Equal(t, "use chi", c.Definition)
}

func TestProceduralFindByContextSubstring(t *testing.T) {
	p := NewProcedural()
	p.Store(swarmtypes.Pattern{ID: "jwt", Title: "JWT Auth", ApplicableTo: []string{"auth", "security"}})
	p.Store(swarmtypes.Pattern{ID: "crud", Title: "CRUD API", ApplicableTo: []string{"api"}})

	found := p.FindByContext("Building AUTH module with tests")
	require.Len(t, found, 1)
	assert.Equal(t, "jwt", found[0].ID)
}

func TestProceduralRecordUsageCAS(t *testing.T) {
	p := NewProcedural()
	p.Store(swarmtypes.Pattern{ID: "jwt", SuccessRate: 1.0, UsageCount: 0})

	updated, ok := p.RecordUsage("jwt", 0, true)
	require.True(t, ok)
	assert.Equal(t, 1, updated.UsageCount)

	// Stale observed count is rejected.
	_, ok = p.RecordUsage("jwt", 0, true)
	assert.False(t, ok)

	updated, ok = p.RecordUsage("jwt", 1, false)
	require.True(t, ok)
	assert.Equal(t, 2, updated.UsageCount)
	assert.InDelta(t, 0.5, updated.SuccessRate, 0.001)
}

func TestRedisBackedWorkingStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "swarm-test")
	w := NewWorkingWithStore(store, 0, nil)
	defer w.Stop()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, "k1", "redis-value", time.Minute, testAgentID("a")))

	var got string
	require.NoError(t, w.Read(ctx, "k1", &got))
	assert.Equal(t, "redis-value", got)
}
