package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
)

// payload returns a string whose stored size is exactly n bytes: n-3 chars
// plus quotes and the encoder's trailing newline.
func payload(n int) string {
	return strings.Repeat("x", n-3)
}

func newTestMemoryCache(maxBytes int64, target float64) *BoundedMemoryCache {
	return NewBoundedMemoryCache(zap.NewNop(), &types.CacheConfig{
		MaxMemoryBytes: maxBytes,
		EvictionTarget: target,
	})
}

func TestMemoryCachePutAndGet(t *testing.T) {
	m := newTestMemoryCache(1024, 0.7)

	if err := m.Put("ns:a", "hello", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, ok := m.Get("ns:a")
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Value != "hello" {
		t.Fatalf("got %v, want hello", entry.Value)
	}
	if entry.AccessCount != 1 {
		t.Fatalf("access count = %d, want 1", entry.AccessCount)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	m := newTestMemoryCache(1024, 0.7)

	if _, ok := m.Get("ns:absent"); ok {
		t.Fatal("expected miss for absent key")
	}

	stats := m.Stats()
	if stats.Misses != 1 {
		t.Fatalf("misses = %d, want 1", stats.Misses)
	}
}

func TestMemoryCacheExpiredEntryIsMiss(t *testing.T) {
	m := newTestMemoryCache(1024, 0.7)

	if err := m.Put("ns:a", "stale", -time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := m.Get("ns:a"); ok {
		t.Fatal("expected expired entry to read as miss")
	}

	if stats := m.Stats(); stats.EntryCount != 0 {
		t.Fatalf("expired entry not purged, count = %d", stats.EntryCount)
	}
}

func TestMemoryCachePutEmptyKey(t *testing.T) {
	m := newTestMemoryCache(1024, 0.7)

	if err := m.Put("", "x", time.Minute); !types.IsError(err, types.ErrCacheKeyEmpty) {
		t.Fatalf("got %v, want ErrCacheKeyEmpty", err)
	}
}

func TestMemoryCacheRejectsUnresolvedValue(t *testing.T) {
	m := newTestMemoryCache(1024, 0.7)

	if err := m.Put("ns:ch", make(chan int), time.Minute); !types.IsError(err, types.ErrCacheValueUnresolved) {
		t.Fatalf("channel: got %v, want ErrCacheValueUnresolved", err)
	}
	if err := m.Put("ns:fn", func() {}, time.Minute); !types.IsError(err, types.ErrCacheValueUnresolved) {
		t.Fatalf("func: got %v, want ErrCacheValueUnresolved", err)
	}
}

func TestMemoryCacheRejectsOversizeEntry(t *testing.T) {
	m := newTestMemoryCache(100, 0.7)

	if err := m.Put("ns:big", payload(200), time.Minute); !types.IsError(err, types.ErrCacheEntryTooLarge) {
		t.Fatalf("got %v, want ErrCacheEntryTooLarge", err)
	}
}

func TestMemoryCacheEvictionKeepsUsageBounded(t *testing.T) {
	m := newTestMemoryCache(1000, 0.7)

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("ns:k%d", i)
		if err := m.Put(key, payload(100), time.Minute); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
		if used := m.Stats().UsedBytes; used > 1000 {
			t.Fatalf("usage %d exceeds ceiling after insert %d", used, i)
		}
		time.Sleep(time.Millisecond)
	}

	// The hot entry was touched most recently; the overflow insert must
	// evict colder entries first.
	if _, ok := m.Get("ns:k9"); !ok {
		t.Fatal("expected ns:k9 present before overflow")
	}

	if err := m.Put("ns:overflow", payload(100), time.Minute); err != nil {
		t.Fatalf("overflow Put failed: %v", err)
	}

	stats := m.Stats()
	if stats.UsedBytes > 1000 {
		t.Fatalf("usage %d exceeds ceiling after eviction", stats.UsedBytes)
	}
	if stats.Evictions == 0 {
		t.Fatal("expected evictions to be recorded")
	}

	if _, ok := m.Get("ns:k0"); ok {
		t.Fatal("coldest entry survived eviction")
	}
	if _, ok := m.Get("ns:k9"); !ok {
		t.Fatal("recently accessed entry was evicted")
	}
}

func TestMemoryCacheEvictionKeepsRecentlyUsedEntry(t *testing.T) {
	m := newTestMemoryCache(300, 0.7)

	if err := m.Put("ns:cold", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put("ns:hot", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Re-reading makes it the most recently used entry.
	for i := 0; i < 3; i++ {
		if _, ok := m.Get("ns:hot"); !ok {
			t.Fatal("expected hit on ns:hot")
		}
	}

	if err := m.Put("ns:new", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put("ns:more", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := m.Get("ns:cold"); ok {
		t.Fatal("cold entry should have been evicted first")
	}
	if _, ok := m.Get("ns:hot"); !ok {
		t.Fatal("hot entry should have survived")
	}
}

func TestMemoryCacheReplaceAccountsBytesOnce(t *testing.T) {
	m := newTestMemoryCache(1000, 0.7)

	if err := m.Put("ns:a", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put("ns:a", payload(300), time.Minute); err != nil {
		t.Fatalf("replace Put failed: %v", err)
	}

	stats := m.Stats()
	if stats.EntryCount != 1 {
		t.Fatalf("entry count = %d, want 1", stats.EntryCount)
	}
	if stats.UsedBytes != 300 {
		t.Fatalf("used bytes = %d, want 300", stats.UsedBytes)
	}
}

func TestMemoryCacheDeleteWhere(t *testing.T) {
	m := newTestMemoryCache(4096, 0.7)

	for _, key := range []string{"translations:vid1_en", "translations:vid1_fr", "translations:vid2_en"} {
		if err := m.Put(key, "t", time.Minute); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	removed := m.DeleteWhere(func(fullKey string) bool {
		return strings.HasPrefix(fullKey, "translations:vid1_")
	})
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	if _, ok := m.Get("translations:vid1_en"); ok {
		t.Fatal("vid1_en should be gone")
	}
	if _, ok := m.Get("translations:vid2_en"); !ok {
		t.Fatal("vid2_en should survive")
	}
}

func TestMemoryCachePurgeExpired(t *testing.T) {
	m := newTestMemoryCache(4096, 0.7)

	if err := m.Put("ns:live", "v", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put("ns:dead", "v", -time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if purged := m.PurgeExpired(time.Now()); purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if stats := m.Stats(); stats.EntryCount != 1 {
		t.Fatalf("entry count = %d, want 1", stats.EntryCount)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	m := newTestMemoryCache(1000, 0.7)

	if err := m.Put("ns:a", payload(100), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	m.Get("ns:a")
	m.Get("ns:absent")

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.Utilization != 0.1 {
		t.Fatalf("utilization = %f, want 0.1", stats.Utilization)
	}
	if stats.AvgEntryBytes != 100 {
		t.Fatalf("avg entry bytes = %f, want 100", stats.AvgEntryBytes)
	}
}
