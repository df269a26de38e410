package cache

import (
	"context"
	"time"

	"github.com/tubelens/tubecache/types"
)

// NewCacheOrchestrator builds the smart cache and, when metrics are
// available, wraps it in an instrumented decorator.
func NewCacheOrchestrator(ctx context.Context, logger types.Logger, metrics types.MetricsManager, cacheConfig *types.CacheConfig, storeConfig *types.StoreConfig, durable types.DurableStore) (types.CacheOrchestrator, error) {
	compress := storeConfig != nil && storeConfig.Compression

	impl, err := NewSmartCache(ctx, logger, cacheConfig, durable, compress)
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedOrchestrator(logger, metrics, impl), nil
}

type instrumentedOrchestrator struct {
	impl    types.CacheOrchestrator
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedOrchestrator(logger types.Logger, metrics types.MetricsManager, impl types.CacheOrchestrator) types.CacheOrchestrator {
	return &instrumentedOrchestrator{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (io *instrumentedOrchestrator) GetWithFallback(ctx context.Context, namespace, key string, fetch types.FetchFunc, ttl time.Duration, refreshThreshold float64) (interface{}, bool) {
	start := time.Now()
	value, exists := io.impl.GetWithFallback(ctx, namespace, key, fetch, ttl, refreshThreshold)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	io.recordMetric("get_with_fallback", result, duration)
	return value, exists
}

func (io *instrumentedOrchestrator) SetWithTTL(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := io.impl.SetWithTTL(ctx, namespace, key, value, ttl)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	io.recordMetric("set_with_ttl", result, duration)
	return err
}

func (io *instrumentedOrchestrator) Delete(ctx context.Context, namespace, key string) error {
	start := time.Now()
	err := io.impl.Delete(ctx, namespace, key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	io.recordMetric("delete", result, duration)
	return err
}

func (io *instrumentedOrchestrator) DeletePattern(ctx context.Context, namespace, pattern string) bool {
	start := time.Now()
	ok := io.impl.DeletePattern(ctx, namespace, pattern)
	duration := time.Since(start)

	result := "success"
	if !ok {
		result = "error"
	}

	io.recordMetric("delete_pattern", result, duration)
	return ok
}

func (io *instrumentedOrchestrator) Stats() types.CacheStats {
	return io.impl.Stats()
}

func (io *instrumentedOrchestrator) Start() error {
	return io.impl.Start()
}

func (io *instrumentedOrchestrator) Stop() error {
	return io.impl.Stop()
}

func (io *instrumentedOrchestrator) IsRunning() bool {
	return io.impl.IsRunning()
}

func (io *instrumentedOrchestrator) recordMetric(operation, result string, duration time.Duration) {
	opCounter := io.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := io.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
