// Package cache implements the three-tier cache shared by the indexer
// and the search coordinator: source-text, embedding and query-result
// entries, each with its own TTL and entry cap.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/regulens/regulens/internal/core/domain"
)

// Observer receives cache events; the metrics collaborator implements
// it. A nil observer is a no-op.
type Observer interface {
	CacheHit(tier string)
	CacheMiss(tier string)
	CacheEviction(tier string)
}

type TierConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// Config sizes each tier. Caps bound worst-case memory: source texts
// are large and few, embeddings are small and many, query results sit
// in between.
type Config map[domain.CacheTier]TierConfig

func DefaultConfig() Config {
	return Config{
		domain.TierSourceText:  {TTL: 30 * time.Minute, MaxEntries: 64},
		domain.TierEmbedding:   {TTL: 12 * time.Hour, MaxEntries: 8192},
		domain.TierQueryResult: {TTL: 5 * time.Minute, MaxEntries: 1024},
	}
}

type entry struct {
	value     []byte
	createdAt time.Time
	lastUsed  atomic.Int64
}

type tierCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cfg     TierConfig
}

type Manager struct {
	tiers    map[domain.CacheTier]*tierCache
	group    singleflight.Group
	observer Observer
}

func NewManager(cfg Config, observer Observer) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tiers := make(map[domain.CacheTier]*tierCache, len(cfg))
	for tier, tc := range cfg {
		tiers[tier] = &tierCache{entries: make(map[string]*entry), cfg: tc}
	}
	return &Manager{tiers: tiers, observer: observer}
}

// Get returns a copy-free view of the cached value. Readers share the
// lock; recency is tracked with an atomic timestamp so a read never
// blocks other readers.
func (m *Manager) Get(tier domain.CacheTier, key string) ([]byte, bool) {
	tc, ok := m.tiers[tier]
	if !ok {
		return nil, false
	}

	tc.mu.RLock()
	e, ok := tc.entries[key]
	var expired bool
	if ok {
		expired = tc.cfg.TTL > 0 && time.Since(e.createdAt) > tc.cfg.TTL
		if !expired {
			e.lastUsed.Store(time.Now().UnixNano())
		}
	}
	tc.mu.RUnlock()

	if !ok || expired {
		if expired {
			m.Delete(tier, key)
		}
		m.miss(tier)
		return nil, false
	}
	m.hit(tier)
	return e.value, true
}

func (m *Manager) Set(tier domain.CacheTier, key string, value []byte) {
	tc, ok := m.tiers[tier]
	if !ok {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	e := &entry{value: value, createdAt: time.Now()}
	e.lastUsed.Store(e.createdAt.UnixNano())
	tc.entries[key] = e

	for tc.cfg.MaxEntries > 0 && len(tc.entries) > tc.cfg.MaxEntries {
		oldestKey := ""
		oldest := int64(0)
		for k, cand := range tc.entries {
			if k == key {
				continue
			}
			used := cand.lastUsed.Load()
			if oldestKey == "" || used < oldest {
				oldestKey, oldest = k, used
			}
		}
		if oldestKey == "" {
			break
		}
		delete(tc.entries, oldestKey)
		m.eviction(tier)
	}
}

func (m *Manager) Delete(tier domain.CacheTier, key string) {
	tc, ok := m.tiers[tier]
	if !ok {
		return
	}
	tc.mu.Lock()
	delete(tc.entries, key)
	tc.mu.Unlock()
}

// GetOrCompute collapses a thundering herd for one key into a single
// in-flight computation: the first caller computes, the rest await the
// same result. A computation aborted by cancellation is returned to the
// caller but never cached as authoritative.
func (m *Manager) GetOrCompute(
	ctx context.Context,
	tier domain.CacheTier,
	key string,
	compute func(context.Context) ([]byte, error),
) ([]byte, error) {
	if value, ok := m.Get(tier, key); ok {
		return value, nil
	}

	flightKey := string(tier) + "\x00" + key
	value, err, _ := m.group.Do(flightKey, func() (any, error) {
		if value, ok := m.Get(tier, key); ok {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			// Completed after cancellation: usable, not authoritative.
			return value, nil
		}
		m.Set(tier, key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// InvalidateCollection drops embedding and query-result entries scoped
// to the collection. Both tiers go together: a chunk-set change makes
// any fused ranking over it stale.
func (m *Manager) InvalidateCollection(collection string) {
	prefix := scopePrefix(collection)
	for _, tier := range []domain.CacheTier{domain.TierEmbedding, domain.TierQueryResult} {
		tc, ok := m.tiers[tier]
		if !ok {
			continue
		}
		tc.mu.Lock()
		for key := range tc.entries {
			if strings.HasPrefix(key, prefix) {
				delete(tc.entries, key)
			}
		}
		tc.mu.Unlock()
	}
}

// ScopedKey builds a deterministic, collection-scoped cache key from
// the given parts. The collection stays in clear text so invalidation
// can match by prefix; the parts are fingerprinted.
func ScopedKey(collection string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return scopePrefix(collection) + hex.EncodeToString(sum[:])
}

// Key builds an unscoped key for entries that outlive collections,
// such as source-text fingerprints.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func scopePrefix(collection string) string {
	return fmt.Sprintf("c:%s:", collection)
}

func (m *Manager) hit(tier domain.CacheTier) {
	if m.observer != nil {
		m.observer.CacheHit(string(tier))
	}
}

func (m *Manager) miss(tier domain.CacheTier) {
	if m.observer != nil {
		m.observer.CacheMiss(string(tier))
	}
}

func (m *Manager) eviction(tier domain.CacheTier) {
	if m.observer != nil {
		m.observer.CacheEviction(string(tier))
	}
}
