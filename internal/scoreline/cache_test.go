package scoreline

import (
	"testing"
	"time"
)

func TestTTLCacheGetBeforeExpiry(t *testing.T) {
	cache := NewTTLCache()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	cache.Set("k", "v", time.Minute)
	got, ok := cache.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected cached value, got %v, %t", got, ok)
	}
}

func TestTTLCacheEvictsAfterExpiry(t *testing.T) {
	cache := NewTTLCache()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	cache.now = func() time.Time { return current }

	cache.Set("k", "v", time.Minute)
	current = base.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Fatalf("expected expired entry to be evicted")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
}

func TestTTLCacheNonPositiveTTLIsNoop(t *testing.T) {
	cache := NewTTLCache()
	cache.Set("k", "v", 0)
	if _, ok := cache.Get("k"); ok {
		t.Fatalf("zero TTL must not store")
	}
	cache.Set("k", "v", -time.Second)
	if cache.Len() != 0 {
		t.Fatalf("negative TTL must not store")
	}
}

func TestTTLCacheDelete(t *testing.T) {
	cache := NewTTLCache()
	cache.Set("k", 42, time.Minute)
	cache.Delete("k")
	if _, ok := cache.Get("k"); ok {
		t.Fatalf("expected deleted entry to be absent")
	}
}

func TestTTLCacheLenCountsLiveEntries(t *testing.T) {
	cache := NewTTLCache()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	cache.now = func() time.Time { return current }

	cache.Set("short", 1, time.Second)
	cache.Set("long", 2, time.Hour)
	current = base.Add(time.Minute)
	if got := cache.Len(); got != 1 {
		t.Fatalf("expected 1 live entry, got %d", got)
	}
}
