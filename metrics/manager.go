package metrics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
)

var customMetricsCreators = sync.Map{}

// RegisterMetricsManager makes a custom metrics backend available to
// NewMetricsManager under the given type name.
func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewMetricsManager(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	var manager types.MetricsManager
	var err error

	switch config.Type {
	case "memory":
		manager, err = NewMemoryMetrics(logger, config)
	case "prometheus":
		manager, err = NewPrometheusMetrics(ctx, logger, config)
	default:
		if creator, exists := customMetricsCreators.Load(config.Type); exists {
			manager, err = creator.(types.MetricsManagerCreator)(config)
		} else {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}
