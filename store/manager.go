package store

import (
	"context"

	"github.com/tubelens/tubecache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customStoreCreators = make(map[string]types.DurableStoreCreator)

func RegisterDurableStore(storeType string, creator types.DurableStoreCreator) {
	customStoreCreators[storeType] = creator
}

func NewDurableStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DurableStore, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	if !config.Enabled {
		return nil, types.ErrStoreIsDisabled
	}

	switch config.Type {
	case "memory":
		return NewMemoryStore(ctx, logger, config)
	case "redis":
		return NewRedisStore(ctx, logger, config)
	case "clover":
		return NewCloverStore(ctx, logger, config)
	case "sqlite":
		return NewSQLiteStore(ctx, logger, config)
	default:
		if creator, exists := customStoreCreators[config.Type]; exists {
			return creator(config)
		}
		return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", config.Type)
	}
}
