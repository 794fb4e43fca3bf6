package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMemoryCache() (*MemoryCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryCache(0)
	m.now = clock.Now
	return m, clock
}

func TestMemoryCache_Expiry(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ok, _ := m.Exists(ctx, "k"); !ok {
		t.Fatal("key should exist before expiry")
	}

	clock.Advance(time.Minute)

	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Error("key should be expired exactly at its deadline")
	}
	var v string
	if err := m.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_DeleteExpired(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	_ = m.Set(ctx, "short", 1, time.Second)
	_ = m.Set(ctx, "long", 1, time.Hour)
	_ = m.Set(ctx, "forever", 1, 0)

	clock.Advance(time.Minute)
	m.DeleteExpired()

	if m.Len() != 2 {
		t.Errorf("Expected 2 entries after sweep, got %d", m.Len())
	}
}

func TestMemoryCache_Janitor(t *testing.T) {
	m := NewMemoryCache(5 * time.Millisecond)
	defer m.Close()

	_ = m.Set(context.Background(), "k", 1, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not purge expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCache_SetNXConcurrent(t *testing.T) {
	m, _ := newTestMemoryCache()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.SetNX(ctx, "idem", "x", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly one SetNX winner, got %d", wins.Load())
	}
}

func TestMemoryCache_SetNXAfterExpiry(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	_, _ = m.SetNX(ctx, "k", 1, time.Second)
	clock.Advance(2 * time.Second)

	ok, err := m.SetNX(ctx, "k", 2, time.Second)
	if err != nil || !ok {
		t.Errorf("SetNX should succeed once the previous entry expired, ok=%v err=%v", ok, err)
	}
}
