package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tubelens/tubecache/store"
	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

type OrchestratorState int32

const (
	OrchestratorStateStopped OrchestratorState = iota
	OrchestratorStateStarting
	OrchestratorStateRunning
	OrchestratorStateStopping
)

// SmartCache composes the bounded memory tier, the durable store and
// caller-supplied fetch functions. Reads fall through memory → durable →
// fetch; near-expiry hits trigger a detached background refresh
// (stale-while-revalidate). Cold-key fetches are collapsed per key so
// concurrent first readers share one fetch.
type SmartCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    types.Logger
	config    *types.CacheConfig
	memory    types.MemoryCache
	durable   types.DurableStore
	codec     *store.Codec
	scheduler *RefreshScheduler
	pool      *WorkerPool
	flight    singleflight.Group
	state     atomic.Value
}

func NewSmartCache(ctx context.Context, logger types.Logger, cacheConfig *types.CacheConfig, durable types.DurableStore, compress bool) (*SmartCache, error) {
	if cacheConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	sc := &SmartCache{
		ctx:     cacheCtx,
		cancel:  cancel,
		logger:  logger,
		config:  cacheConfig,
		memory:  NewBoundedMemoryCache(logger, cacheConfig),
		durable: durable,
		codec:   store.NewCodec(compress),
		pool:    NewWorkerPool(cacheConfig.FetchWorkers),
	}

	sc.scheduler = NewRefreshScheduler(cacheCtx, logger, sc.memory, sc.pool, sc.SetWithTTL, cacheConfig.SweepInterval)
	sc.state.Store(OrchestratorStateStopped)

	return sc, nil
}

func (s *SmartCache) Start() error {
	if !s.transitionState(OrchestratorStateStopped, OrchestratorStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.getState() == OrchestratorStateStarting {
			s.setState(OrchestratorStateRunning)
		}
	}()

	if err := s.scheduler.Start(); err != nil {
		s.setState(OrchestratorStateStopped)
		return err
	}

	s.logger.Info("Smart cache started")
	return nil
}

func (s *SmartCache) Stop() error {
	if !s.transitionState(OrchestratorStateRunning, OrchestratorStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.setState(OrchestratorStateStopped)
	}()

	err := s.scheduler.Stop()
	s.cancel()

	if err != nil {
		s.logger.Error("Error during smart cache shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Smart cache stopped gracefully")
	return nil
}

func (s *SmartCache) IsRunning() bool {
	return s.getState() == OrchestratorStateRunning
}

// GetWithFallback looks up namespace:key in the memory tier, then the
// durable tier, then invokes fetch. Fetch errors are logged and surfaced as
// a miss; failures are never cached. A nil fetch makes this a plain
// two-tier lookup.
func (s *SmartCache) GetWithFallback(ctx context.Context, namespace, key string, fetch types.FetchFunc, ttl time.Duration, refreshThreshold float64) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if refreshThreshold <= 0 || refreshThreshold >= 1 {
		refreshThreshold = types.DefaultRefreshThreshold
	}

	fullKey := fullKey(namespace, key)

	if entry, ok := s.memory.Get(fullKey); ok {
		if fetch != nil && s.needsRefresh(entry, ttl, refreshThreshold) {
			s.scheduler.ScheduleRefresh(namespace, key, fetch, ttl)
		}
		return entry.Value, true
	}

	if value, ok := s.lookupDurable(ctx, namespace, key, ttl); ok {
		return value, true
	}

	if fetch == nil {
		return nil, false
	}

	value, err, _ := s.flight.Do(fullKey, func() (interface{}, error) {
		fetched, err := s.pool.Do(ctx, fetch)
		if err != nil {
			return nil, err
		}

		if isUnresolved(fetched) {
			s.logger.Error("Fetch function returned unresolved value",
				zap.String("key", fullKey))
			return nil, types.ErrCacheValueUnresolved
		}

		if err := s.SetWithTTL(ctx, namespace, key, fetched, ttl); err != nil {
			s.logger.Warn("Failed to cache fetched value",
				zap.String("key", fullKey), zap.Error(err))
		}

		return fetched, nil
	})

	if err != nil {
		if !types.IsError(err, types.ErrCacheValueUnresolved) {
			s.logger.Warn("Fetch failed, returning miss",
				zap.String("key", fullKey), zap.Error(err))
		}
		return nil, false
	}

	return value, true
}

// SetWithTTL writes value to both tiers. Unresolved computations are
// refused; a value that cannot be serialized is coerced best-effort before
// storage. Durable-tier write failures degrade the entry to memory-only.
func (s *SmartCache) SetWithTTL(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		s.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if isUnresolved(value) {
		s.logger.Error("Refusing to store unresolved value",
			zap.String("namespace", namespace), zap.String("key", key))
		return types.ErrCacheValueUnresolved
	}

	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	if _, err := utils.Marshal(value); err != nil {
		s.logger.Debug("Coercing unserializable value before storage",
			zap.String("key", fullKey(namespace, key)), zap.Error(err))
		value = utils.Sanitize(value)
	}

	s.writeDurable(ctx, namespace, key, value, ttl)

	if err := s.memory.Put(fullKey(namespace, key), value, ttl); err != nil {
		return err
	}

	return nil
}

func (s *SmartCache) Delete(ctx context.Context, namespace, key string) error {
	s.memory.Delete(fullKey(namespace, key))

	if s.durable != nil {
		if err := s.durable.Delete(ctx, namespace, key); err != nil {
			s.logger.Error("Failed to delete durable entry",
				zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
			return err
		}
	}

	return nil
}

// DeletePattern removes entries matching pattern within a namespace. A
// trailing "*" makes it a prefix delete across both tiers; otherwise it is
// an exact delete. Best-effort: already-deleted keys are not rolled back on
// partial failure, and false is returned.
func (s *SmartCache) DeletePattern(ctx context.Context, namespace, pattern string) bool {
	if pattern == "" {
		return false
	}

	star := strings.Index(pattern, "*")
	if star < 0 {
		return s.Delete(ctx, namespace, pattern) == nil
	}

	prefix := pattern[:star]
	memPrefix := fullKey(namespace, prefix)

	s.memory.DeleteWhere(func(key string) bool {
		return strings.HasPrefix(key, memPrefix)
	})

	if s.durable == nil {
		return true
	}

	keys, err := s.durable.ListKeys(ctx, namespace)
	if err != nil {
		s.logger.Error("Failed to enumerate durable keys for pattern delete",
			zap.String("namespace", namespace), zap.String("pattern", pattern), zap.Error(err))
		return false
	}

	ok := true
	deleted := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := s.durable.Delete(ctx, namespace, key); err != nil {
			s.logger.Error("Failed to delete durable entry during pattern delete",
				zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
			ok = false
			continue
		}
		deleted++
	}

	s.logger.Debug("Pattern delete completed",
		zap.String("namespace", namespace),
		zap.String("pattern", pattern),
		zap.Int("durable_deleted", deleted))

	return ok
}

func (s *SmartCache) Stats() types.CacheStats {
	return s.memory.Stats()
}

// Scheduler exposes the refresh scheduler for callers that need to observe
// in-flight refreshes.
func (s *SmartCache) Scheduler() *RefreshScheduler {
	return s.scheduler
}

func (s *SmartCache) needsRefresh(entry *types.Entry, ttl time.Duration, refreshThreshold float64) bool {
	threshold := time.Duration(float64(ttl) * (1 - refreshThreshold))
	return entry.TTLRemaining(time.Now()) < threshold
}

// lookupDurable reads the cold tier, validates freshness and integrity, and
// promotes a hit into the memory tier with its remaining TTL.
func (s *SmartCache) lookupDurable(ctx context.Context, namespace, key string, ttl time.Duration) (interface{}, bool) {
	if s.durable == nil {
		return nil, false
	}

	data, err := s.durable.Get(ctx, namespace, key)
	if err != nil {
		if !types.IsError(err, types.ErrStoreKeyNotFound) {
			s.logger.Warn("Durable store read failed, treating as miss",
				zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	record, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("Purging corrupt durable entry",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		s.deleteDurableQuiet(ctx, namespace, key)
		return nil, false
	}

	now := time.Now()
	if record.Expired(now) {
		s.deleteDurableQuiet(ctx, namespace, key)
		return nil, false
	}

	if isUnresolved(record.Value) {
		s.logger.Error("Purging unresolved value from durable tier",
			zap.String("namespace", namespace), zap.String("key", key))
		s.deleteDurableQuiet(ctx, namespace, key)
		return nil, false
	}

	remaining := ttl
	if !record.ExpiresAt.IsZero() {
		remaining = record.ExpiresAt.Sub(now)
	}

	if err := s.SetWithTTL(ctx, namespace, key, record.Value, remaining); err != nil {
		s.logger.Warn("Failed to promote durable entry into memory tier",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
	}

	return record.Value, true
}

func (s *SmartCache) writeDurable(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) {
	if s.durable == nil {
		return
	}

	now := time.Now()
	record := &store.Record{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := s.codec.Encode(record)
	if err != nil {
		s.logger.Warn("Failed to encode durable entry, keeping memory-only",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return
	}

	if err := s.durable.Set(ctx, namespace, key, data); err != nil {
		s.logger.Warn("Durable store write failed, keeping memory-only",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
	}
}

func (s *SmartCache) deleteDurableQuiet(ctx context.Context, namespace, key string) {
	if err := s.durable.Delete(ctx, namespace, key); err != nil {
		s.logger.Debug("Failed to delete durable entry",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
	}
}

func fullKey(namespace, key string) string {
	return namespace + ":" + key
}

func (s *SmartCache) getState() OrchestratorState {
	return s.state.Load().(OrchestratorState)
}

func (s *SmartCache) setState(newState OrchestratorState) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *SmartCache) transitionState(from, to OrchestratorState) bool {
	return s.state.CompareAndSwap(from, to)
}
