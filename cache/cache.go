// Package cache provides the agent response cache: a content-addressed,
// TTL-based, best-effort lookup keyed on agent name plus canonicalized
// input (expiry-on-read, RWMutex-guarded map for MemoryCache). The key
// format - "agent:{name}:{md5hex}" over json.Marshal(sortedKeys) - follows
// a "never fails the caller" philosophy: every Cache method degrades to a
// cache miss/no-op on error rather than propagating one.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // content-addressing only, not a security boundary
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Cache is the agent response cache surface. All methods are best-effort:
// a failing backend (e.g. Redis unreachable) must never cause a method here
// to return an error the caller has to handle as fatal - Get reports a miss
// and Set/Invalidate are no-ops, with the failure left to the backend's own
// logging.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// Key canonicalizes an agent name and arbitrary input value into the cache
// key format "agent:{name}:{md5hex}", where the hash covers the input's
// canonical JSON encoding (object keys sorted, consistent with
// json.Marshal(sortedMap) in the original cache_service.py). Two logically
// equal inputs with different key insertion order or map iteration order
// always hash to the same key.
func Key(agentName string, input any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize input: %w", err)
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("cache: marshal canonical input: %w", err)
	}
	sum := md5.Sum(b) //nolint:gosec
	return fmt.Sprintf("agent:%s:%x", agentName, sum), nil
}

// canonicalize round-trips input through JSON and recursively sorts map keys
// so that any two Go values that encode to the same JSON object (regardless
// of field/map order) produce byte-identical output.
func canonicalize(input any) (any, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, err
	}
	return sortValue(decoded), nil
}

func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, orderedEntry{Key: k, Value: sortValue(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortValue(e)
		}
		return out
	default:
		return t
	}
}

// orderedMap marshals as a JSON object with entries in the order they were
// appended, letting sortValue produce deterministic key ordering without
// relying on encoding/json's (non-deterministic-looking but actually
// alphabetical) map key sort, which callers should not depend on directly.
type orderedMap []orderedEntry

type orderedEntry struct {
	Key   string
	Value any
}

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

type entry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// MemoryCache is an in-process Cache backed by a map: reads check expiry
// before returning a hit and evict the entry lazily rather than running a
// background sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

// Get returns the cached value for key if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given ttl. A non-positive ttl makes
// the entry immediately expired, which is equivalent to not caching it.
func (c *MemoryCache) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Invalidate removes key, if present.
func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of entries currently stored, expired or not; useful
// for tests and diagnostics.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
