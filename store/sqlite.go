package store

import (
	"context"
	"database/sql"
	"strconv"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

type SQLiteConfig struct {
	Path        string `json:"path"`
	BusyTimeout int    `json:"busy_timeout_ms"`
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	data BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

type SQLiteStore struct {
	db      *sql.DB
	logger  types.Logger
	config  *SQLiteConfig
	started int32
}

func NewSQLiteStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DurableStore, error) {
	sqliteConfig := &SQLiteConfig{
		Path:        "tubecache.db",
		BusyTimeout: 5000,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, sqliteConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite store config")
		}
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path+"?_busy_timeout="+strconv.Itoa(sqliteConfig.BusyTimeout))
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite database")
	}

	if _, err := db.ExecContext(ctx, createEntriesTable); err != nil {
		db.Close()
		return nil, types.WrapError(err, "failed to migrate sqlite database")
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
		config: sqliteConfig,
	}, nil
}

func (s *SQLiteStore) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	s.logger.Info("SQLite store started", zap.String("path", s.config.Path))
	return nil
}

func (s *SQLiteStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite database")
	}

	s.logger.Info("SQLite store stopped gracefully")
	return nil
}

func (s *SQLiteStore) IsRunning() bool {
	return atomic.LoadInt32(&s.started) == 1
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&data)

	if err != nil {
		if types.IsError(err, sql.ErrNoRows) {
			return nil, types.ErrStoreKeyNotFound
		}
		s.logger.Error("Failed to get store entry",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return nil, types.WrapError(err, "failed to get store entry")
	}

	return data, nil
}

func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (namespace, key, data, updated_at) VALUES (?, ?, ?, ?)`,
		namespace, key, data, time.Now().UnixNano(),
	)
	if err != nil {
		s.logger.Error("Failed to set store entry",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to set store entry")
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		s.logger.Error("Failed to delete store entry",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to delete store entry")
	}

	return nil
}

func (s *SQLiteStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, types.WrapError(err, "failed to list store keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan store key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate store keys")
	}

	return keys, nil
}
