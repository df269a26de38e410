package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tubelens/tubecache/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, types.WrapError(types.ErrConfigParseFailed, err.Error())
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.WrapError(types.ErrConfigValidateFailed, err.Error())
	}

	return config, nil
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "tubecache",
		Version: "dev",
		Logger: &types.LoggerConfig{
			Type:  "zap",
			Level: "info",
		},
		Cache: &types.CacheConfig{
			MaxMemoryBytes:   100 * 1024 * 1024,
			EvictionTarget:   0.7,
			DefaultTTL:       24 * time.Hour,
			RefreshThreshold: types.DefaultRefreshThreshold,
			SweepInterval:    "5m",
			FetchWorkers:     8,
		},
		Store: &types.StoreConfig{
			Enabled:     true,
			Type:        "memory",
			Compression: true,
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Server: &types.ServerConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
	}
}
