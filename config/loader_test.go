package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tubelens/tubecache/types"
)

func TestLoaderDefaults(t *testing.T) {
	config := NewLoader().Defaults()

	if config.Name != "tubecache" {
		t.Fatalf("name = %q", config.Name)
	}
	if config.Cache.EvictionTarget != 0.7 {
		t.Fatalf("eviction target = %f, want 0.7", config.Cache.EvictionTarget)
	}
	if config.Cache.RefreshThreshold != types.DefaultRefreshThreshold {
		t.Fatalf("refresh threshold = %f", config.Cache.RefreshThreshold)
	}
	if config.Cache.DefaultTTL != 24*time.Hour {
		t.Fatalf("default ttl = %v", config.Cache.DefaultTTL)
	}
	if !config.Store.Enabled || config.Store.Type != "memory" {
		t.Fatalf("store defaults = %+v", config.Store)
	}
}

func TestLoaderLoadFromBytes(t *testing.T) {
	yaml := []byte(`
name: analysis-cache
version: "1.2.0"
cache:
  max_memory_bytes: 52428800
  eviction_target: 0.6
  default_ttl: 1h
store:
  enabled: true
  type: redis
  compression: true
  config:
    host: localhost
    port: 6379
`)

	config, err := NewLoader().LoadFromBytes(yaml)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if config.Name != "analysis-cache" {
		t.Fatalf("name = %q", config.Name)
	}
	if config.Cache.MaxMemoryBytes != 52428800 {
		t.Fatalf("max memory = %d", config.Cache.MaxMemoryBytes)
	}
	if config.Cache.EvictionTarget != 0.6 {
		t.Fatalf("eviction target = %f", config.Cache.EvictionTarget)
	}
	if config.Cache.DefaultTTL != time.Hour {
		t.Fatalf("default ttl = %v", config.Cache.DefaultTTL)
	}
	if config.Store.Type != "redis" {
		t.Fatalf("store type = %q", config.Store.Type)
	}

	// Untouched sections keep their defaults.
	if config.Cache.RefreshThreshold != types.DefaultRefreshThreshold {
		t.Fatalf("refresh threshold = %f", config.Cache.RefreshThreshold)
	}
}

func TestLoaderExpandsEnvironment(t *testing.T) {
	t.Setenv("TUBECACHE_TEST_STORE", "sqlite")

	yaml := []byte(`
name: tubecache
store:
  enabled: true
  type: ${TUBECACHE_TEST_STORE}
`)

	config, err := NewLoader().LoadFromBytes(yaml)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.Store.Type != "sqlite" {
		t.Fatalf("store type = %q, want sqlite", config.Store.Type)
	}
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	_, err := NewLoader().LoadFromBytes([]byte("name: [unclosed"))
	if !types.IsError(err, types.ErrConfigParseFailed) {
		t.Fatalf("got %v, want ErrConfigParseFailed", err)
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	yaml := []byte(`
name: tubecache
cache:
  eviction_target: 1.5
`)

	if _, err := NewLoader().LoadFromBytes(yaml); !types.IsError(err, types.ErrConfigValidateFailed) {
		t.Fatalf("got %v, want ErrConfigValidateFailed", err)
	}
}

func TestLoaderLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("name: from-file\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	config, err := NewLoader().LoadFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.Name != "from-file" {
		t.Fatalf("name = %q", config.Name)
	}

	if _, err := NewLoader().LoadFromFile(""); !types.IsError(err, types.ErrConfigNotFound) {
		t.Fatalf("empty path: got %v, want ErrConfigNotFound", err)
	}
}

func TestConfigurationManagerFromConfig(t *testing.T) {
	base := NewLoader().Defaults()

	cm, err := NewFromConfig(base)
	if err != nil {
		t.Fatalf("manager failed: %v", err)
	}
	if cm.GetConfig().Name != base.Name {
		t.Fatalf("got %q, want %q", cm.GetConfig().Name, base.Name)
	}

	if _, err := NewFromConfig(nil); !types.IsError(err, types.ErrConfigIsNil) {
		t.Fatalf("nil config: got %v, want ErrConfigIsNil", err)
	}
}
