package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
)

func newStartedSQLiteStore(t *testing.T) types.DurableStore {
	t.Helper()

	config := &types.StoreConfig{
		Enabled: true,
		Type:    "sqlite",
		Config: map[string]interface{}{
			"path": filepath.Join(t.TempDir(), "cache.db"),
		},
	}

	ss, err := NewSQLiteStore(context.Background(), zap.NewNop(), config)
	if err != nil {
		t.Fatalf("sqlite store failed: %v", err)
	}
	if err := ss.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = ss.Stop() })

	return ss
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ss := newStartedSQLiteStore(t)
	ctx := context.Background()

	if err := ss.Set(ctx, "analysis", "vid1", []byte("payload")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	data, err := ss.Get(ctx, "analysis", "vid1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q, want payload", data)
	}

	// Replacement keeps one row per (namespace, key).
	if err := ss.Set(ctx, "analysis", "vid1", []byte("updated")); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	data, err = ss.Get(ctx, "analysis", "vid1")
	if err != nil {
		t.Fatalf("get after replace failed: %v", err)
	}
	if string(data) != "updated" {
		t.Fatalf("got %q, want updated", data)
	}
}

func TestSQLiteStoreMissingKey(t *testing.T) {
	ss := newStartedSQLiteStore(t)

	if _, err := ss.Get(context.Background(), "ns", "absent"); !types.IsError(err, types.ErrStoreKeyNotFound) {
		t.Fatalf("got %v, want ErrStoreKeyNotFound", err)
	}
}

func TestSQLiteStoreDeleteAndList(t *testing.T) {
	ss := newStartedSQLiteStore(t)
	ctx := context.Background()

	for _, key := range []string{"vid1_en", "vid1_fr", "vid2_en"} {
		if err := ss.Set(ctx, "translations", key, []byte("t")); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	keys, err := ss.ListKeys(ctx, "translations")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}

	if err := ss.Delete(ctx, "translations", "vid1_en"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := ss.Get(ctx, "translations", "vid1_en"); !types.IsError(err, types.ErrStoreKeyNotFound) {
		t.Fatalf("got %v, want ErrStoreKeyNotFound", err)
	}

	keys, err = ss.ListKeys(ctx, "translations")
	if err != nil {
		t.Fatalf("list after delete failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
}
