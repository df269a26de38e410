package store

import (
	"context"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
)

func newStartedMemoryStore(t *testing.T) types.DurableStore {
	t.Helper()

	ms, err := NewMemoryStore(context.Background(), zap.NewNop(), &types.StoreConfig{})
	if err != nil {
		t.Fatalf("memory store failed: %v", err)
	}
	if err := ms.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = ms.Stop() })

	return ms
}

func TestMemoryStoreSetGet(t *testing.T) {
	ms := newStartedMemoryStore(t)
	ctx := context.Background()

	if err := ms.Set(ctx, "ns", "a", []byte("payload")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	data, err := ms.Get(ctx, "ns", "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q, want payload", data)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ms := newStartedMemoryStore(t)

	if _, err := ms.Get(context.Background(), "ns", "absent"); !types.IsError(err, types.ErrStoreKeyNotFound) {
		t.Fatalf("got %v, want ErrStoreKeyNotFound", err)
	}
}

func TestMemoryStoreNamespaceIsolation(t *testing.T) {
	ms := newStartedMemoryStore(t)
	ctx := context.Background()

	if err := ms.Set(ctx, "analysis", "vid1", []byte("a")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, err := ms.Get(ctx, "video_data", "vid1"); !types.IsError(err, types.ErrStoreKeyNotFound) {
		t.Fatalf("same key in another namespace: got %v, want ErrStoreKeyNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ms := newStartedMemoryStore(t)
	ctx := context.Background()

	if err := ms.Set(ctx, "ns", "a", []byte("x")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := ms.Delete(ctx, "ns", "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := ms.Get(ctx, "ns", "a"); !types.IsError(err, types.ErrStoreKeyNotFound) {
		t.Fatalf("got %v, want ErrStoreKeyNotFound", err)
	}

	// Deleting an absent key is not an error.
	if err := ms.Delete(ctx, "ns", "a"); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
}

func TestMemoryStoreListKeys(t *testing.T) {
	ms := newStartedMemoryStore(t)
	ctx := context.Background()

	for _, key := range []string{"b", "a", "c"} {
		if err := ms.Set(ctx, "ns", key, []byte("x")); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	keys, err := ms.ListKeys(ctx, "ns")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	sort.Strings(keys)

	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}

	empty, err := ms.ListKeys(ctx, "other")
	if err != nil {
		t.Fatalf("list of empty namespace failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("got %v, want empty", empty)
	}
}

func TestMemoryStoreReturnsDefensiveCopies(t *testing.T) {
	ms := newStartedMemoryStore(t)
	ctx := context.Background()

	original := []byte("payload")
	if err := ms.Set(ctx, "ns", "a", original); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	original[0] = 'X'

	first, err := ms.Get(ctx, "ns", "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(first) != "payload" {
		t.Fatalf("caller mutation leaked into store: %q", first)
	}

	first[0] = 'Y'

	second, err := ms.Get(ctx, "ns", "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(second) != "payload" {
		t.Fatalf("reader mutation leaked into store: %q", second)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ms, err := NewMemoryStore(context.Background(), zap.NewNop(), &types.StoreConfig{})
	if err != nil {
		t.Fatalf("memory store failed: %v", err)
	}

	if ms.IsRunning() {
		t.Fatal("must not run before Start")
	}
	if err := ms.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := ms.Start(); !types.IsError(err, types.ErrServerAlreadyRunning) {
		t.Fatalf("second start: got %v, want ErrServerAlreadyRunning", err)
	}
	if err := ms.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := ms.Stop(); !types.IsError(err, types.ErrServerNotRunning) {
		t.Fatalf("second stop: got %v, want ErrServerNotRunning", err)
	}
}
