package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nft-repin/internal/types"
)

// Outcome is a cached per-CID pinning result, keyed by destination provider
// so outcomes from one provider never short-circuit runs against another.
type Outcome struct {
	CID       string             `json:"cid"`
	Provider  string             `json:"provider"`
	Pinned    bool               `json:"pinned"`
	RequestID string             `json:"requestId,omitempty"`
	Verified  bool               `json:"verified"`
	Err       *types.ErrorDetail `json:"error,omitempty"`
	At        time.Time          `json:"at"`
}

// OutcomeCache is the per-CID result cache consulted before every pin call.
// Get returns nil with no error on a cache miss.
type OutcomeCache interface {
	Get(ctx context.Context, provider, cid string) (*Outcome, error)
	Put(ctx context.Context, outcome *Outcome) error
}

// merge decides whether a new outcome replaces a cached one. Pinned wins:
// once a CID is known pinned, a later failure never downgrades it.
func merge(existing, incoming *Outcome) *Outcome {
	if existing != nil && existing.Pinned && !incoming.Pinned {
		return existing
	}
	return incoming
}

// MemoryOutcomeCache is the in-process outcome cache used in single-run mode
// and as the fast layer above Redis.
type MemoryOutcomeCache struct {
	mu       sync.RWMutex
	outcomes map[string]*Outcome
}

// NewMemoryOutcomeCache creates an empty in-memory outcome cache
func NewMemoryOutcomeCache() *MemoryOutcomeCache {
	return &MemoryOutcomeCache{outcomes: make(map[string]*Outcome)}
}

func outcomeKey(provider, cid string) string {
	return fmt.Sprintf("repin:cid:%s:%s", provider, cid)
}

// Get returns the cached outcome for a provider and CID, or nil on a miss
func (c *MemoryOutcomeCache) Get(_ context.Context, provider, cid string) (*Outcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outcome, ok := c.outcomes[outcomeKey(provider, cid)]
	if !ok {
		return nil, nil
	}
	cp := *outcome
	return &cp, nil
}

// Put stores an outcome, applying the pinned-wins merge rule
func (c *MemoryOutcomeCache) Put(_ context.Context, outcome *Outcome) error {
	key := outcomeKey(outcome.Provider, outcome.CID)

	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *merge(c.outcomes[key], outcome)
	c.outcomes[key] = &cp
	return nil
}

// Len returns the number of cached outcomes
func (c *MemoryOutcomeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.outcomes)
}

// RedisOutcomeCache persists outcomes in Redis so results survive process
// restarts and are shared between runs.
type RedisOutcomeCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisOutcomeCache creates an outcome cache on top of a Redis connection.
// A zero TTL keeps outcomes until explicitly deleted.
func NewRedisOutcomeCache(cache *RedisCache, ttl time.Duration) *RedisOutcomeCache {
	return &RedisOutcomeCache{cache: cache, ttl: ttl}
}

// Get returns the cached outcome for a provider and CID, or nil on a miss
func (c *RedisOutcomeCache) Get(ctx context.Context, provider, cid string) (*Outcome, error) {
	raw, err := c.cache.Get(ctx, outcomeKey(provider, cid))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outcome cache: %w", err)
	}

	var outcome Outcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode cached outcome: %w", err)
	}
	return &outcome, nil
}

// Put stores an outcome, applying the pinned-wins merge rule
func (c *RedisOutcomeCache) Put(ctx context.Context, outcome *Outcome) error {
	existing, err := c.Get(ctx, outcome.Provider, outcome.CID)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(merge(existing, outcome))
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := c.cache.Set(ctx, outcomeKey(outcome.Provider, outcome.CID), encoded, c.ttl); err != nil {
		return fmt.Errorf("failed to write outcome cache: %w", err)
	}
	return nil
}

// LayeredOutcomeCache reads through a memory layer backed by Redis. Writes
// go to both layers; a Redis write failure is surfaced but the memory layer
// stays consistent for the current run.
type LayeredOutcomeCache struct {
	memory  *MemoryOutcomeCache
	backing OutcomeCache
}

// NewLayeredOutcomeCache composes a memory cache over a backing cache
func NewLayeredOutcomeCache(backing OutcomeCache) *LayeredOutcomeCache {
	return &LayeredOutcomeCache{
		memory:  NewMemoryOutcomeCache(),
		backing: backing,
	}
}

// Get checks the memory layer first and falls through to the backing cache,
// populating the memory layer on a backing hit.
func (c *LayeredOutcomeCache) Get(ctx context.Context, provider, cid string) (*Outcome, error) {
	if outcome, err := c.memory.Get(ctx, provider, cid); err == nil && outcome != nil {
		return outcome, nil
	}

	outcome, err := c.backing.Get(ctx, provider, cid)
	if err != nil || outcome == nil {
		return outcome, err
	}
	if putErr := c.memory.Put(ctx, outcome); putErr != nil {
		return outcome, putErr
	}
	return outcome, nil
}

// Put writes the outcome to both layers
func (c *LayeredOutcomeCache) Put(ctx context.Context, outcome *Outcome) error {
	if err := c.memory.Put(ctx, outcome); err != nil {
		return err
	}
	return c.backing.Put(ctx, outcome)
}
