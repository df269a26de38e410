package types

import (
	"time"

	"gopkg.in/yaml.v3"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache"`
	Store   *StoreConfig   `yaml:"store" json:"store"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Server  *ServerConfig  `yaml:"server" json:"server"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	MaxMemoryBytes   int64         `yaml:"max_memory_bytes" json:"max_memory_bytes" validate:"min=0"`
	EvictionTarget   float64       `yaml:"eviction_target" json:"eviction_target" validate:"gte=0,lte=1"`
	DefaultTTL       time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	RefreshThreshold float64       `yaml:"refresh_threshold" json:"refresh_threshold" validate:"gte=0,lte=1"`
	SweepInterval    string        `yaml:"sweep_interval" json:"sweep_interval"`
	FetchWorkers     int           `yaml:"fetch_workers" json:"fetch_workers" validate:"min=0"`
}

// UnmarshalYAML accepts default_ttl as a human duration string ("1h", "30m")
// and keeps already-set fields when the YAML section is partial.
func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxMemoryBytes   *int64   `yaml:"max_memory_bytes"`
		EvictionTarget   *float64 `yaml:"eviction_target"`
		DefaultTTL       *string  `yaml:"default_ttl"`
		RefreshThreshold *float64 `yaml:"refresh_threshold"`
		SweepInterval    *string  `yaml:"sweep_interval"`
		FetchWorkers     *int     `yaml:"fetch_workers"`
	}{}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxMemoryBytes != nil {
		c.MaxMemoryBytes = *raw.MaxMemoryBytes
	}
	if raw.EvictionTarget != nil {
		c.EvictionTarget = *raw.EvictionTarget
	}
	if raw.DefaultTTL != nil {
		ttl, err := time.ParseDuration(*raw.DefaultTTL)
		if err != nil {
			return WrapError(err, "invalid default_ttl")
		}
		c.DefaultTTL = ttl
	}
	if raw.RefreshThreshold != nil {
		c.RefreshThreshold = *raw.RefreshThreshold
	}
	if raw.SweepInterval != nil {
		c.SweepInterval = *raw.SweepInterval
	}
	if raw.FetchWorkers != nil {
		c.FetchWorkers = *raw.FetchWorkers
	}

	return nil
}

type StoreConfig struct {
	Enabled     bool        `yaml:"enabled" json:"enabled"`
	Type        string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Compression bool        `yaml:"compression" json:"compression"`
	Config      interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
	Config  interface{}       `yaml:"config" json:"config"`
}

type ServerConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}
