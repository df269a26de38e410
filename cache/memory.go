package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

const (
	DefaultMaxMemoryBytes = 100 * 1024 * 1024
	DefaultEvictionTarget = 0.7
)

// BoundedMemoryCache is the hot tier: a map of full key to entry with a
// hard byte-size ceiling. A single mutex covers the map and the byte
// counter so size accounting never drifts from the map contents.
type BoundedMemoryCache struct {
	logger         types.Logger
	maxBytes       int64
	evictionTarget float64

	mu        sync.Mutex
	data      map[string]*types.Entry
	usedBytes int64

	hits      uint64
	misses    uint64
	evictions uint64
	accesses  uint64
}

func NewBoundedMemoryCache(logger types.Logger, config *types.CacheConfig) *BoundedMemoryCache {
	maxBytes := int64(DefaultMaxMemoryBytes)
	target := DefaultEvictionTarget

	if config != nil {
		if config.MaxMemoryBytes > 0 {
			maxBytes = config.MaxMemoryBytes
		}
		if config.EvictionTarget > 0 && config.EvictionTarget < 1 {
			target = config.EvictionTarget
		}
	}

	return &BoundedMemoryCache{
		logger:         logger,
		maxBytes:       maxBytes,
		evictionTarget: target,
		data:           make(map[string]*types.Entry),
	}
}

// Get returns the entry for fullKey and bumps its access stats. An entry
// holding an unresolved computation is purged and reported as a miss, as is
// an expired one.
func (m *BoundedMemoryCache) Get(fullKey string) (*types.Entry, bool) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.data[fullKey]
	if !exists {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if isUnresolved(entry.Value) {
		m.logger.Warn("Purging unresolved value from memory tier", zap.String("key", fullKey))
		m.removeEntryUnsafe(fullKey)
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if entry.Expired(now) {
		m.removeEntryUnsafe(fullKey)
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	atomic.AddUint64(&m.hits, 1)
	atomic.AddUint64(&m.accesses, 1)

	return entry, true
}

func (m *BoundedMemoryCache) Put(fullKey string, value interface{}, ttl time.Duration) error {
	if fullKey == "" {
		m.logger.Error("Attempted to cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if isUnresolved(value) {
		m.logger.Error("Refusing to cache unresolved value", zap.String("key", fullKey))
		return types.ErrCacheValueUnresolved
	}

	size := utils.SizeOf(value)
	if size > m.maxBytes {
		m.logger.Error("Entry larger than memory ceiling",
			zap.String("key", fullKey),
			zap.Int64("size_bytes", size),
			zap.Int64("max_bytes", m.maxBytes))
		return types.ErrCacheEntryTooLarge
	}

	now := time.Now()
	entry := &types.Entry{
		Key:          fullKey,
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		SizeBytes:    size,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.data[fullKey]; exists {
		m.usedBytes -= old.SizeBytes
		delete(m.data, fullKey)
	}

	if m.usedBytes+size > m.maxBytes {
		target := int64(float64(m.maxBytes) * m.evictionTarget)
		if headroom := m.maxBytes - size; headroom < target {
			target = headroom
		}
		m.evictUnsafe(target)
	}

	m.data[fullKey] = entry
	m.usedBytes += size

	return nil
}

func (m *BoundedMemoryCache) Delete(fullKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeEntryUnsafe(fullKey)
}

// DeleteWhere removes every entry whose full key satisfies pred and returns
// the number removed. Used for namespace and per-video bulk invalidation.
func (m *BoundedMemoryCache) DeleteWhere(pred func(fullKey string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victims []string
	for key := range m.data {
		if pred(key) {
			victims = append(victims, key)
		}
	}

	for _, key := range victims {
		m.removeEntryUnsafe(key)
	}

	return len(victims)
}

// PurgeExpired removes entries whose TTL elapsed, independent of read
// traffic. Called by the scheduler's periodic sweep.
func (m *BoundedMemoryCache) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for key, entry := range m.data {
		if entry.Expired(now) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		m.removeEntryUnsafe(key)
	}

	return len(expired)
}

func (m *BoundedMemoryCache) Stats() types.CacheStats {
	m.mu.Lock()
	entryCount := len(m.data)
	usedBytes := m.usedBytes
	m.mu.Unlock()

	stats := types.CacheStats{
		EntryCount:    entryCount,
		UsedBytes:     usedBytes,
		MaxBytes:      m.maxBytes,
		TotalAccesses: atomic.LoadUint64(&m.accesses),
		Hits:          atomic.LoadUint64(&m.hits),
		Misses:        atomic.LoadUint64(&m.misses),
		Evictions:     atomic.LoadUint64(&m.evictions),
	}

	if m.maxBytes > 0 {
		stats.Utilization = float64(usedBytes) / float64(m.maxBytes)
	}
	if entryCount > 0 {
		stats.AvgEntryBytes = float64(usedBytes) / float64(entryCount)
	}

	return stats
}

// evictUnsafe removes entries, least-recently-used first with access count
// as tie breaker, until usage drops to targetBytes. The hybrid ordering
// evicts a large rarely-reused blob before a small hot one even when the
// hot one was touched slightly earlier.
func (m *BoundedMemoryCache) evictUnsafe(targetBytes int64) {
	if m.usedBytes <= targetBytes {
		return
	}

	candidates := make([]*types.Entry, 0, len(m.data))
	for _, entry := range m.data {
		candidates = append(candidates, entry)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastAccessed.Equal(candidates[j].LastAccessed) {
			return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
		}
		return candidates[i].AccessCount < candidates[j].AccessCount
	})

	evicted := 0
	for _, victim := range candidates {
		if m.usedBytes <= targetBytes {
			break
		}
		m.removeEntryUnsafe(victim.Key)
		evicted++
	}

	if evicted > 0 {
		atomic.AddUint64(&m.evictions, uint64(evicted))
		m.logger.Debug("Evicted entries under memory pressure",
			zap.Int("evicted", evicted),
			zap.Int64("used_bytes", m.usedBytes),
			zap.Int64("target_bytes", targetBytes))
	}
}

func (m *BoundedMemoryCache) removeEntryUnsafe(fullKey string) {
	if entry, exists := m.data[fullKey]; exists {
		m.usedBytes -= entry.SizeBytes
		delete(m.data, fullKey)
	}
}
