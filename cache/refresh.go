package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
)

const (
	DefaultSweepInterval   = "5m"
	refreshShutdownTimeout = 10 * time.Second
)

// setFunc writes a refreshed value back through the orchestrator so both
// tiers stay in step.
type setFunc func(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error

// RefreshScheduler runs deduplicated background refreshes and a periodic
// sweep that purges expired memory-tier entries independent of read
// traffic. At most one refresh per key is in flight at any time.
type RefreshScheduler struct {
	ctx           context.Context
	cancel        context.CancelFunc
	logger        types.Logger
	memory        types.MemoryCache
	pool          *WorkerPool
	set           setFunc
	sweepInterval string

	cron *cron.Cron

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	started int32
}

func NewRefreshScheduler(ctx context.Context, logger types.Logger, memory types.MemoryCache, pool *WorkerPool, set setFunc, sweepInterval string) *RefreshScheduler {
	schedulerCtx, cancel := context.WithCancel(ctx)

	if sweepInterval == "" {
		sweepInterval = DefaultSweepInterval
	}

	return &RefreshScheduler{
		ctx:           schedulerCtx,
		cancel:        cancel,
		logger:        logger,
		memory:        memory,
		pool:          pool,
		set:           set,
		sweepInterval: sweepInterval,
		inflight:      make(map[string]struct{}),
	}
}

func (s *RefreshScheduler) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every "+s.sweepInterval, s.sweep); err != nil {
		atomic.StoreInt32(&s.started, 0)
		return types.WrapError(err, "failed to schedule expiry sweep")
	}
	s.cron.Start()

	s.logger.Info("Refresh scheduler started", zap.String("sweep_interval", s.sweepInterval))
	return nil
}

// Stop cancels the sweep and all in-flight refreshes. It is safe to call
// during process teardown, including more than once.
func (s *RefreshScheduler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil
	}

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Refresh scheduler stopped gracefully")
	case <-time.After(refreshShutdownTimeout):
		s.logger.Warn("Refresh scheduler stop timeout, refreshes may not have finished")
	}

	return nil
}

func (s *RefreshScheduler) IsRunning() bool {
	return atomic.LoadInt32(&s.started) == 1
}

// ScheduleRefresh launches a detached refresh for fullKey unless one is
// already in flight. The caller is never blocked.
func (s *RefreshScheduler) ScheduleRefresh(namespace, key string, fetch types.FetchFunc, ttl time.Duration) {
	if fetch == nil || atomic.LoadInt32(&s.started) != 1 {
		return
	}

	fullKey := namespace + ":" + key

	s.mu.Lock()
	if _, exists := s.inflight[fullKey]; exists {
		s.mu.Unlock()
		return
	}
	s.inflight[fullKey] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, fullKey)
			s.mu.Unlock()
		}()

		value, err := s.pool.Do(s.ctx, fetch)
		if err != nil {
			s.logger.Warn("Background refresh failed",
				zap.String("key", fullKey), zap.Error(err))
			return
		}

		if isUnresolved(value) {
			s.logger.Error("Background refresh produced unresolved value",
				zap.String("key", fullKey))
			return
		}

		if err := s.set(s.ctx, namespace, key, value, ttl); err != nil {
			s.logger.Warn("Failed to store refreshed value",
				zap.String("key", fullKey), zap.Error(err))
			return
		}

		s.logger.Debug("Background refresh completed", zap.String("key", fullKey))
	}()
}

// InflightCount reports the number of refreshes currently running.
func (s *RefreshScheduler) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *RefreshScheduler) sweep() {
	purged := s.memory.PurgeExpired(time.Now())
	if purged > 0 {
		s.logger.Debug("Expiry sweep completed", zap.Int("purged_entries", purged))
	}
}
