package store

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	KeyPrefix          string        `json:"key_prefix"`
	ScanBatchSize      int64         `json:"scan_batch_size"`
}

type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DurableStore, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		Password:           "",
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "tubecache",
		ScanBatchSize:      200,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	rs := &RedisStore{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	rs.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	if err := rs.ping(); err != nil {
		return nil, types.WrapError(types.ErrStoreConnectionFailed, err.Error())
	}

	return rs, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	r.logger.Info("Redis store started", zap.String("prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis store stopped gracefully")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	fullKey := r.buildKey(namespace, key)

	data, err := r.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, types.ErrStoreKeyNotFound
		}
		r.logger.Error("Failed to get store entry", zap.String("key", fullKey), zap.Error(err))
		return nil, types.WrapError(err, "failed to get store entry")
	}

	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, namespace, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	fullKey := r.buildKey(namespace, key)

	if err := r.client.Set(ctx, fullKey, data, 0).Err(); err != nil {
		r.logger.Error("Failed to set store entry", zap.String("key", fullKey), zap.Error(err))
		return types.WrapError(err, "failed to set store entry")
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	fullKey := r.buildKey(namespace, key)

	if err := r.client.Del(ctx, fullKey).Err(); err != nil {
		r.logger.Error("Failed to delete store entry", zap.String("key", fullKey), zap.Error(err))
		return types.WrapError(err, "failed to delete store entry")
	}

	return nil
}

func (r *RedisStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	prefix := r.buildKey(namespace, "")
	pattern := prefix + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, r.config.ScanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}

	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan store keys", zap.String("namespace", namespace), zap.Error(err))
		return nil, types.WrapError(err, "failed to scan store keys")
	}

	return keys, nil
}

func (r *RedisStore) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) buildKey(namespace, key string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + ":" + namespace + ":" + key
	}
	return namespace + ":" + key
}
