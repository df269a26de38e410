package tubecache

import (
	"context"
	"testing"
	"time"

	"github.com/tubelens/tubecache/config"
	"github.com/tubelens/tubecache/types"
)

func testServiceConfig() *types.ServiceConfig {
	cfg := config.NewLoader().Defaults()
	cfg.Name = "tubecache-test"
	cfg.Logger.Level = "error"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Type = "memory"
	return cfg
}

func TestServiceStartStop(t *testing.T) {
	service, err := NewServiceFromConfig(context.Background(), testServiceConfig())
	if err != nil {
		t.Fatalf("service failed: %v", err)
	}

	if err := service.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !service.IsRunning() {
		t.Fatal("must run after Start")
	}
	if err := service.Start(); !types.IsError(err, types.ErrServerAlreadyRunning) {
		t.Fatalf("second start: got %v, want ErrServerAlreadyRunning", err)
	}

	if err := service.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if service.IsRunning() {
		t.Fatal("must not run after Stop")
	}
	if err := service.Stop(); !types.IsError(err, types.ErrServiceIsNotRunning) {
		t.Fatalf("second stop: got %v, want ErrServiceIsNotRunning", err)
	}

	select {
	case <-service.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}
}

func TestServiceEndToEndThroughRepository(t *testing.T) {
	service, err := NewServiceFromConfig(context.Background(), testServiceConfig())
	if err != nil {
		t.Fatalf("service failed: %v", err)
	}
	if err := service.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = service.Stop() })

	ctx := context.Background()
	repo := service.Repository()

	if err := repo.StoreCustom(ctx, "translations", "vid1_en", "bonjour", time.Hour); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	value, ok := repo.GetCustom(ctx, "translations", "vid1_en", nil, time.Hour)
	if !ok || value != "bonjour" {
		t.Fatalf("got %v (%v), want bonjour", value, ok)
	}

	// The value must also survive a hot-tier wipe via the durable store.
	stats := service.Orchestrator().Stats()
	if stats.EntryCount == 0 {
		t.Fatal("expected entries in the hot tier")
	}
}

func TestServiceRejectsBrokenConfig(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Name = ""

	if _, err := NewServiceFromConfig(context.Background(), cfg); !types.IsError(err, types.ErrConfigValidateFailed) {
		t.Fatalf("got %v, want ErrConfigValidateFailed", err)
	}
}

func TestServiceMissingConfigPath(t *testing.T) {
	if _, err := NewService(context.Background(), ""); !types.IsError(err, types.ErrConfigInvalidPath) {
		t.Fatalf("got %v, want ErrConfigInvalidPath", err)
	}
}
