package store

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

type CloverConfig struct {
	Path string `json:"path"`
}

// CloverStore persists blobs in an embedded document database, one
// collection per namespace. Blobs are base64-encoded since clover documents
// are JSON.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	mu     sync.Mutex
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DurableStore, error) {
	cloverConfig := &CloverConfig{}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover store config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover database")
	}

	cs := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}

	cs.state.Store(StateStopped)
	return cs, nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	c.logger.Info("Clover store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover database")
	}

	c.logger.Info("Clover store stopped gracefully")
	return nil
}

func (c *CloverStore) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	collection := collectionName(namespace)

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return nil, types.ErrStoreKeyNotFound
	}

	doc, err := c.db.Query(collection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to query store entry")
	}
	if doc == nil {
		return nil, types.ErrStoreKeyNotFound
	}

	encoded, ok := doc.Get("data").(string)
	if !ok {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "data field missing for key %s", key)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "base64 decode failed: %v", err)
	}

	return data, nil
}

func (c *CloverStore) Set(ctx context.Context, namespace, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	collection := collectionName(namespace)

	// Serialize writers per store so the exists-then-insert sequence below
	// stays consistent.
	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		if err := c.db.CreateCollection(collection); err != nil {
			return types.WrapError(err, "failed to create collection")
		}
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	query := c.db.Query(collection).Where(clover.Field("key").Eq(key))
	existing, err := query.FindFirst()
	if err != nil {
		return types.WrapError(err, "failed to query existing entry")
	}

	if existing != nil {
		err = query.Update(map[string]interface{}{
			"data":    encoded,
			"ch_time": time.Now().UnixNano(),
		})
		if err != nil {
			return types.WrapError(err, "failed to update store entry")
		}
		return nil
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("data", encoded)
	doc.Set("ch_time", time.Now().UnixNano())

	if err := c.db.Insert(collection, doc); err != nil {
		return types.WrapError(err, "failed to insert store entry")
	}

	return nil
}

func (c *CloverStore) Delete(ctx context.Context, namespace, key string) error {
	collection := collectionName(namespace)

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return nil
	}

	err = c.db.Query(collection).Where(clover.Field("key").Eq(key)).Delete()
	if err != nil {
		return types.WrapError(err, "failed to delete store entry")
	}

	return nil
}

func (c *CloverStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	collection := collectionName(namespace)

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return nil, nil
	}

	docs, err := c.db.Query(collection).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to list store keys")
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// collectionName maps a namespace to a clover-safe collection name.
func collectionName(namespace string) string {
	if namespace == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, namespace)
}

func (c *CloverStore) getState() State {
	return c.state.Load().(State)
}

func (c *CloverStore) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverStore) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
