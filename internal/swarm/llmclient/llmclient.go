// Package llmclient is the provider-agnostic facade an Agent uses to turn a
// prompt into completion text: retry with exponential backoff, a circuit
// breaker per provider, a semantic response cache, and token estimation.
//
// Grounded directly on the teacher's own llm package tree, generalized from
// its full multi-modal/tool-calling ChatRequest down to the plain
// prompt-in/text-out shape this domain needs: llm/retry (backoffRetryer),
// llm/circuitbreaker (CircuitBreaker), llm/tokenizer (TiktokenTokenizer /
// EstimatorTokenizer fallback), llm/cache (PromptCache/CacheEntry).
package llmclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/llm/cache"
	"github.com/sentinel-swarm/swarmkit/llm/circuitbreaker"
	"github.com/sentinel-swarm/swarmkit/llm/retry"
	"github.com/sentinel-swarm/swarmkit/llm/tokenizer"
)

// ErrNoProvider is returned when a Facade has no provider configured for the
// requested model.
var ErrNoProvider = errors.New("llmclient: no provider registered")

// Request is one completion request issued by an agent.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Response is a completion result, with the fields an Agent's output parser
// needs downstream.
type Response struct {
	Text        string
	TokenCount  int
	FromCache   bool
	Provider    string
	WallElapsed time.Duration
}

// Provider is the minimal adapter surface a concrete backend implements.
// Kept deliberately narrower than the teacher's full llm.Provider interface
// (no streaming, no tool calling) since the swarm only ever drives
// single-shot code-generation completions.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Facade wires retry, a per-provider circuit breaker, a semantic cache, and
// token estimation around a set of named Providers.
type Facade struct {
	mu        sync.RWMutex
	providers map[string]Provider

	breakers map[string]circuitbreaker.CircuitBreaker
	retryer  retry.Retryer
	promptCache cache.PromptCache
	tok       tokenizer.Tokenizer
	cfg       Config

	logger *zap.Logger
}

// Config controls retry/breaker/cache behavior.
type Config struct {
	MaxRetries       int
	RetryInitialWait time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
	BreakerReset     time.Duration
	Cache            cache.PromptCache // nil disables caching
	TokenizerModel   string
}

// DefaultConfig mirrors the teacher's DefaultRetryPolicy/DefaultConfig
// defaults (3 retries, 1s initial backoff, breaker trips after 5 failures).
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryInitialWait: time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		BreakerReset:     60 * time.Second,
		TokenizerModel:   "gpt-4o-mini",
	}
}

// New constructs a Facade. Providers are registered separately via
// Register so a MockProvider can stand in during tests without pulling in
// any real network dependency.
func New(cfg Config, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	tok, err := tokenizer.NewTiktokenTokenizer(cfg.TokenizerModel)
	var chosen tokenizer.Tokenizer
	if err != nil {
		chosen = tokenizer.NewEstimatorTokenizer(cfg.TokenizerModel, 0)
	} else {
		chosen = tok
	}

	return &Facade{
		providers: make(map[string]Provider),
		breakers:  make(map[string]circuitbreaker.CircuitBreaker),
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryInitialWait,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}, logger),
		promptCache: cfg.Cache,
		tok:         chosen,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "llmclient")),
	}
}

// Register adds a backend under its own name. Complete looks a provider up
// by that exact name only; a request is never routed to another registered
// provider, even when the named one fails.
func (f *Facade) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.Name()] = p
}

func (f *Facade) breakerFor(name string, cfg Config) circuitbreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.breakers[name]; ok {
		return b
	}
	b := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Threshold:        cfg.BreakerThreshold,
		Timeout:          cfg.BreakerTimeout,
		ResetTimeout:     cfg.BreakerReset,
		HalfOpenMaxCalls: 3,
	}, f.logger)
	f.breakers[name] = b
	return b
}

// Complete runs a request through cache lookup, breaker, and retry, in that
// order: a cache hit skips the breaker and provider entirely.
func (f *Facade) Complete(ctx context.Context, providerName string, req Request) (Response, error) {
	start := time.Now()

	if f.promptCache != nil {
		key := f.cacheKey(providerName, req)
		if entry, err := f.promptCache.Get(ctx, key); err == nil && entry != nil {
			if text, ok := entry.Response.(string); ok {
				return Response{Text: text, TokenCount: entry.TokensSaved, FromCache: true, Provider: providerName, WallElapsed: time.Since(start)}, nil
			}
		}
	}

	f.mu.RLock()
	p, ok := f.providers[providerName]
	f.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrNoProvider, providerName)
	}

	breaker := f.breakerFor(providerName, f.cfg)

	var text string
	err := breaker.Call(ctx, func() error {
		return f.retryer.Do(ctx, func() error {
			out, err := p.Complete(ctx, req)
			if err != nil {
				return retry.WrapRetryable(err)
			}
			text = out
			return nil
		})
	})
	if err != nil {
		return Response{}, err
	}

	tokenCount, _ := f.tok.CountTokens(text)

	if f.promptCache != nil {
		key := f.cacheKey(providerName, req)
		_ = f.promptCache.Set(ctx, key, &cache.CacheEntry{
			Response:    text,
			TokensSaved: tokenCount,
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	}

	return Response{
		Text:        text,
		TokenCount:  tokenCount,
		Provider:    providerName,
		WallElapsed: time.Since(start),
	}, nil
}

// EstimateTokens reports the estimated token cost of a prompt. Nothing in
// the dispatch path calls it; MaxTokensPerTask is not checked before a call.
func (f *Facade) EstimateTokens(text string) int {
	n, err := f.tok.CountTokens(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

func (f *Facade) cacheKey(providerName string, req Request) string {
	h := sha256.New()
	h.Write([]byte(providerName))
	h.Write([]byte(req.Model))
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// inMemoryCache is a minimal cache.PromptCache implementation for local/test
// use when no Redis instance is available, grounded on the shape of
// llm/cache's LRUCache (expiry check on Get, nothing fancier than a mutex
// and a map — no eviction policy, since agent-run caches are short-lived).
type inMemoryCache struct {
	mu    sync.Mutex
	items map[string]*cache.CacheEntry
}

// NewInMemoryCache builds a process-local PromptCache.
func NewInMemoryCache() cache.PromptCache {
	return &inMemoryCache{items: make(map[string]*cache.CacheEntry)}
}

// NewRedisCache wraps the teacher's llm/cache.MultiLevelCache as a
// Redis-only PromptCache (local L1 disabled): unlike the process-local
// cache above, entries here survive a Facade restart and are shared by
// every swarm run pointed at the same Redis instance.
func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) cache.PromptCache {
	return cache.NewMultiLevelCache(rdb, &cache.CacheConfig{
		EnableLocal: false,
		EnableRedis: true,
		RedisTTL:    ttl,
	}, logger)
}

func (c *inMemoryCache) Get(_ context.Context, key string) (*cache.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.items, key)
		return nil, cache.ErrCacheMiss
	}
	entry.HitCount++
	return entry, nil
}

func (c *inMemoryCache) Set(_ context.Context, key string, entry *cache.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry
	return nil
}

func (c *inMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *inMemoryCache) GenerateKey(req any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%v", req)
	return hex.EncodeToString(h.Sum(nil))
}

// BreakerState reports the current circuit state for a provider, mainly
// for telemetry.
func (f *Facade) BreakerState(providerName string) (circuitbreaker.State, bool) {
	f.mu.RLock()
	b, ok := f.breakers[providerName]
	f.mu.RUnlock()
	if !ok {
		return circuitbreaker.StateClosed, false
	}
	return b.State(), true
}
