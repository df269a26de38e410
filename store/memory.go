package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tubelens/tubecache/types"
)

// MemoryStore keeps namespaced blobs in process memory. It backs tests and
// single-process deployments where durability across restarts is not needed.
type MemoryStore struct {
	namespaces map[string]map[string][]byte
	mutex      sync.RWMutex
	logger     types.Logger
	state      atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DurableStore, error) {
	ms := &MemoryStore{
		namespaces: make(map[string]map[string][]byte),
		logger:     logger,
	}

	ms.state.Store(StateStopped)
	return ms, nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mutex.Lock()
	m.namespaces = make(map[string]map[string][]byte)
	m.mutex.Unlock()

	m.logger.Info("Memory store stopped gracefully")
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ns, exists := m.namespaces[namespace]
	if !exists {
		return nil, types.ErrStoreKeyNotFound
	}

	data, exists := ns[key]
	if !exists {
		return nil, types.ErrStoreKeyNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, namespace, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	ns, exists := m.namespaces[namespace]
	if !exists {
		ns = make(map[string][]byte)
		m.namespaces[namespace] = ns
	}

	ns[key] = stored
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if ns, exists := m.namespaces[namespace]; exists {
		delete(ns, key)
		if len(ns) == 0 {
			delete(m.namespaces, namespace)
		}
	}

	return nil
}

func (m *MemoryStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ns, exists := m.namespaces[namespace]
	if !exists {
		return nil, nil
	}

	keys := make([]string, 0, len(ns))
	for key := range ns {
		keys = append(keys, key)
	}

	return keys, nil
}

func (m *MemoryStore) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryStore) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
