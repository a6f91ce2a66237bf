// Package memory implements the swarm's four shared-memory layers: Working
// (hot, TTL'd key->bytes), Episodic (append-only per-category events),
// Semantic (id->Concept, overwrite-allowed), and Procedural (id->Pattern
// with substring-matched applicable-to tags and CAS-updated statistics).
//
// Grounded on agent/memory/layered_memory.go's four-struct split (adapted
// from its single coarse mutex per layer to per-key locking for Working and
// Procedural, since spec §4.5 requires those two to avoid serializing
// unrelated agents) and on original_source's swarm/memory.rs (SwarmMemory's
// background TTL sweep, get_context_string prompt assembly, and
// share_insight's N-write fan-out).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// WorkingStore is the backend interface for the Working layer. The default
// implementation is in-process; Redis is the alternative backend wired in
// redis_store.go, giving the layer native key expiry instead of a polling
// sweeper.
type WorkingStore interface {
	Set(ctx context.Context, key string, entry swarmtypes.MemoryEntry) error
	Get(ctx context.Context, key string) (swarmtypes.MemoryEntry, bool, error)
	Delete(ctx context.Context, key string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// inProcessWorking is the default Working-layer backend: a sharded map (16
// shards by default) with one RWMutex per shard, so concurrent writers to
// keys in different shards do not contend.
type inProcessWorking struct {
	shards []*workingShard
	n      int
}

type workingShard struct {
	mu      sync.RWMutex
	entries map[string]swarmtypes.MemoryEntry
}

func newInProcessWorking(shardCount int) *inProcessWorking {
	if shardCount < 1 {
		shardCount = 16
	}
	w := &inProcessWorking{n: shardCount, shards: make([]*workingShard, shardCount)}
	for i := range w.shards {
		w.shards[i] = &workingShard{entries: make(map[string]swarmtypes.MemoryEntry)}
	}
	return w
}

func (w *inProcessWorking) shardFor(key string) *workingShard {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return w.shards[int(h)%w.n]
}

func (w *inProcessWorking) Set(_ context.Context, key string, entry swarmtypes.MemoryEntry) error {
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (w *inProcessWorking) Get(_ context.Context, key string) (swarmtypes.MemoryEntry, bool, error) {
	s := w.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (w *inProcessWorking) Delete(_ context.Context, key string) error {
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (w *inProcessWorking) SweepExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, s := range w.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if e.Expired(now) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Working is the hot, TTL'd layer. Reads are non-blocking and return a
// copy; a background sweeper removes expired entries on a configurable
// cadence (default 30s) independent of any reader's critical section.
type Working struct {
	store  WorkingStore
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewWorking constructs a Working layer over the in-process backend and
// starts its sweeper goroutine. Call Stop to end the sweeper.
func NewWorking(sweepInterval time.Duration, logger *zap.Logger) *Working {
	return NewWorkingWithStore(newInProcessWorking(16), sweepInterval, logger)
}

// NewWorkingWithStore allows swapping in the Redis-backed store.
func NewWorkingWithStore(store WorkingStore, sweepInterval time.Duration, logger *zap.Logger) *Working {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Working{store: store, logger: logger.With(zap.String("memory", "working")), stop: make(chan struct{})}
	if sweepInterval > 0 {
		go w.sweepLoop(sweepInterval)
	}
	return w
}

func (w *Working) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n, err := w.store.SweepExpired(context.Background(), time.Now())
			if err != nil {
				w.logger.Warn("working memory sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Debug("swept expired working memory entries", zap.Int("count", n))
			}
		case <-w.stop:
			return
		}
	}
}

// Stop ends the sweeper goroutine. Safe to call more than once.
func (w *Working) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Write stores a JSON-encoded value under key with the given TTL.
func (w *Working) Write(ctx context.Context, key string, value any, ttl time.Duration, writtenBy swarmtypes.AgentID) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal working memory value: %w", err)
	}
	now := time.Now()
	return w.store.Set(ctx, key, swarmtypes.MemoryEntry{
		Key: key, Value: raw, WrittenBy: writtenBy, WrittenAt: now, ExpiresAt: now.Add(ttl),
	})
}

// Read decodes the value at key into out. It returns ErrMemoryKeyNotFound
// if absent or expired — an expired entry is never returned even if the
// sweeper has not yet collected it.
func (w *Working) Read(ctx context.Context, key string, out any) error {
	entry, ok, err := w.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || entry.Expired(time.Now()) {
		return swarmtypes.ErrMemoryKeyNotFound
	}
	return json.Unmarshal(entry.Value, out)
}

// Delete explicitly invalidates a key ahead of its TTL.
func (w *Working) Delete(ctx context.Context, key string) error {
	return w.store.Delete(ctx, key)
}

// ShareInsight implements share_insight: N working-memory writes with a
// short TTL under keys naming both source and destination, so each
// recipient reads an independent copy.
func (w *Working) ShareInsight(ctx context.Context, from swarmtypes.AgentID, to []swarmtypes.AgentID, insight string, ttl time.Duration) error {
	for _, recipient := range to {
		key := fmt.Sprintf("insight_from_%s_to_%s", from, recipient)
		if err := w.Write(ctx, key, insight, ttl, from); err != nil {
			return err
		}
	}
	return nil
}

// Episodic is the append-only-per-category event log. No automatic
// eviction: episodes persist for the life of the run.
type Episodic struct {
	mu         sync.Mutex
	byCategory map[string][]swarmtypes.Episode
}

func NewEpisodic() *Episodic {
	return &Episodic{byCategory: make(map[string][]swarmtypes.Episode)}
}

// Record appends an episode to its category's list, applying submission
// order — writes are queued through this single mutex so callers never
// observe interleaved partial appends.
func (e *Episodic) Record(ep swarmtypes.Episode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byCategory[ep.Category] = append(e.byCategory[ep.Category], ep)
}

// Category returns every episode recorded under category, in submission
// order. Reads never block writes beyond the brief copy below.
func (e *Episodic) Category(category string) []swarmtypes.Episode {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.byCategory[category]
	out := make([]swarmtypes.Episode, len(src))
	copy(out, src)
	return out
}

// RecordAlternativeContent is the conflict engine's hook for a file path
// written by more than one output: the losing content is archived to
// episodic memory rather than discarded.
func (e *Episodic) RecordAlternativeContent(path string, agent swarmtypes.AgentID, content string) {
	e.Record(swarmtypes.Episode{
		ID:             fmt.Sprintf("alt_%s_%d", path, time.Now().UnixNano()),
		Timestamp:      time.Now(),
		Category:       "alternative-content",
		Description:    path,
		AgentsInvolved: []swarmtypes.AgentID{agent},
		Outcome:        content,
	})
}

// Semantic is the id->Concept layer used by consensus to persist accepted
// design decisions. Overwriting an id signals design revision.
type Semantic struct {
	mu       sync.RWMutex
	concepts map[string]swarmtypes.Concept
}

func NewSemantic() *Semantic {
	return &Semantic{concepts: make(map[string]swarmtypes.Concept)}
}

func (s *Semantic) Store(c swarmtypes.Concept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concepts[c.ID] = c
}

func (s *Semantic) Get(id string) (swarmtypes.Concept, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[id]
	return c, ok
}

// Procedural is the id->Pattern layer. FindByContext returns every Pattern
// whose tag is a case-insensitive substring of the supplied context,
// matching both spec §4.5's wording and original_source's find_patterns.
type Procedural struct {
	mu       sync.RWMutex
	patterns map[string]*swarmtypes.Pattern
	keyLocks map[string]*sync.Mutex
	keyMu    sync.Mutex
}

func NewProcedural() *Procedural {
	return &Procedural{
		patterns: make(map[string]*swarmtypes.Pattern),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (p *Procedural) lockFor(id string) *sync.Mutex {
	p.keyMu.Lock()
	defer p.keyMu.Unlock()
	l, ok := p.keyLocks[id]
	if !ok {
		l = &sync.Mutex{}
		p.keyLocks[id] = l
	}
	return l
}

func (p *Procedural) Store(pat swarmtypes.Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := pat
	p.patterns[pat.ID] = &cp
}

func (p *Procedural) Get(id string) (swarmtypes.Pattern, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pat, ok := p.patterns[id]
	if !ok {
		return swarmtypes.Pattern{}, false
	}
	return *pat, true
}

// FindByContext matches tag-is-substring-of-context, case-insensitive.
func (p *Procedural) FindByContext(context string) []swarmtypes.Pattern {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lowerContext := strings.ToLower(context)
	out := make([]swarmtypes.Pattern, 0)
	for _, pat := range p.patterns {
		for _, tag := range pat.ApplicableTo {
			if strings.Contains(lowerContext, strings.ToLower(tag)) {
				out = append(out, *pat)
				break
			}
		}
	}
	return out
}

// RecordUsage applies a compare-and-swap-like update to a pattern's
// usage_count/success_rate: the caller supplies the usage count it last
// observed; if the stored value has since moved, the update is rejected and
// the current value returned so the caller can retry with fresh stats.
func (p *Procedural) RecordUsage(id string, observedUsageCount int, success bool) (swarmtypes.Pattern, bool) {
	lock := p.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	pat, ok := p.patterns[id]
	if !ok {
		return swarmtypes.Pattern{}, false
	}
	if pat.UsageCount != observedUsageCount {
		return *pat, false
	}
	pat.UsageCount++
	total := float64(pat.UsageCount)
	successes := pat.SuccessRate * float64(observedUsageCount)
	if success {
		successes++
	}
	pat.SuccessRate = successes / total
	return *pat, true
}

// Layered combines all four layers, mirroring LayeredMemory's role as the
// single handle injected into each Agent.
type Layered struct {
	Working    *Working
	Episodic   *Episodic
	Semantic   *Semantic
	Procedural *Procedural
}

// Config configures a Layered memory instance.
type Config struct {
	WorkingStore       WorkingStore // nil selects the in-process backend
	WorkingSweepPeriod time.Duration
}

func NewLayered(cfg Config, logger *zap.Logger) *Layered {
	var working *Working
	if cfg.WorkingStore != nil {
		working = NewWorkingWithStore(cfg.WorkingStore, cfg.WorkingSweepPeriod, logger)
	} else {
		working = NewWorking(cfg.WorkingSweepPeriod, logger)
	}
	return &Layered{
		Working:    working,
		Episodic:   NewEpisodic(),
		Semantic:   NewSemantic(),
		Procedural: NewProcedural(),
	}
}

// ContextString assembles an LLM-prompt-ready context string for an agent:
// its assigned task description, the caller's shared-context entries, and
// the top-3 applicable patterns by success rate — mirrors
// get_context_string in original_source's swarm/memory.rs.
func (l *Layered) ContextString(task swarmtypes.Task, sharedContext map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current task: %s\n", task.Description)
	for k, v := range sharedContext {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	patterns := l.Procedural.FindByContext(string(task.Capability))
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].SuccessRate != patterns[j].SuccessRate {
			return patterns[i].SuccessRate > patterns[j].SuccessRate
		}
		return patterns[i].ID < patterns[j].ID
	})
	if len(patterns) > 0 {
		b.WriteString("Relevant patterns:\n")
		limit := len(patterns)
		if limit > 3 {
			limit = 3
		}
		for _, p := range patterns[:limit] {
			fmt.Fprintf(&b, "  - %s: %s\n", p.Title, p.Description)
		}
	}
	return b.String()
}
