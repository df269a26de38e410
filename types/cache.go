package types

import (
	"context"
	"time"
)

// FetchFunc loads a value on a cache miss. Implementations may perform
// network I/O; they run on the orchestrator's worker pool. The returned
// value must be fully resolved. Channels, funcs and pending futures are
// rejected by the corruption guard.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Pending marks a value as an unresolved computation. The cache refuses to
// store such values and purges them if one is found in a tier.
type Pending interface {
	Pending() bool
}

const DefaultRefreshThreshold = 0.8

type Entry struct {
	Key          string      `json:"key"`
	Value        interface{} `json:"value"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
	LastAccessed time.Time   `json:"last_accessed"`
	AccessCount  uint64      `json:"access_count"`
	SizeBytes    int64       `json:"size_bytes"`
}

func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

func (e *Entry) TTLRemaining(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	remaining := e.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

type CacheStats struct {
	EntryCount    int     `json:"entry_count"`
	UsedBytes     int64   `json:"used_bytes"`
	MaxBytes      int64   `json:"max_bytes"`
	Utilization   float64 `json:"utilization"`
	TotalAccesses uint64  `json:"total_accesses"`
	AvgEntryBytes float64 `json:"avg_entry_size_bytes"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
}

// MemoryCache is the byte-bounded in-process tier. Keys are full keys,
// "namespace:key".
type MemoryCache interface {
	Get(fullKey string) (*Entry, bool)
	Put(fullKey string, value interface{}, ttl time.Duration) error
	Delete(fullKey string)
	DeleteWhere(pred func(fullKey string) bool) int
	PurgeExpired(now time.Time) int
	Stats() CacheStats
}

// CacheOrchestrator composes the memory tier, the durable store and
// caller-supplied fetch functions into a read-through cache with
// stale-while-revalidate refresh.
type CacheOrchestrator interface {
	LifecycleManager
	GetWithFallback(ctx context.Context, namespace, key string, fetch FetchFunc, ttl time.Duration, refreshThreshold float64) (interface{}, bool)
	SetWithTTL(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	DeletePattern(ctx context.Context, namespace, pattern string) bool
	Stats() CacheStats
}

type CacheOrchestratorCreator func(config interface{}) (CacheOrchestrator, error)
