package types

import (
	"context"
)

// DurableStore is the cold tier. It has no TTL semantics of its own; the
// orchestrator stores expiry inside the value envelope and re-checks it on
// read. Absent keys are reported via ErrStoreKeyNotFound.
type DurableStore interface {
	LifecycleManager
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, data []byte) error
	Delete(ctx context.Context, namespace, key string) error
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}

type DurableStoreCreator func(config interface{}) (DurableStore, error)
