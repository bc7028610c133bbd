package cache

import (
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	t.Run("miss before any set", func(t *testing.T) {
		c := New()
		if _, ok := c.Get("weather", "u1", time.Minute); ok {
			t.Error("expected miss on empty cache")
		}
	})

	t.Run("hit after set within ttl", func(t *testing.T) {
		c := New()
		c.Set("weather", "u1", map[string]any{"temp": 72}, time.Minute)
		data, ok := c.Get("weather", "u1", time.Minute)
		if !ok {
			t.Fatal("expected hit")
		}
		if got := data.(map[string]any)["temp"]; got != 72 {
			t.Errorf("expected temp 72, got %v", got)
		}
	})

	t.Run("different users do not collide", func(t *testing.T) {
		c := New()
		c.Set("weather", "u1", map[string]any{"temp": 72}, time.Minute)
		if _, ok := c.Get("weather", "u2", time.Minute); ok {
			t.Error("expected miss for a different user")
		}
	})

	t.Run("ttl<=0 disables caching on both ends", func(t *testing.T) {
		c := New()
		c.Set("weather", "u1", map[string]any{"temp": 72}, 0)
		if _, ok := c.Get("weather", "u1", time.Minute); ok {
			t.Error("expected set with ttl<=0 to be a no-op")
		}
		if _, ok := c.Get("weather", "u1", 0); ok {
			t.Error("expected get with ttl<=0 to always miss")
		}
	})
}

func TestCache_Expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := NewWithClock(clock)

	c.Set("weather", "u1", map[string]any{"temp": 72}, time.Minute)

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("weather", "u1", time.Minute); !ok {
		t.Error("expected hit before ttl elapses")
	}
	if c.IsStale("weather", "u1", time.Minute) {
		t.Error("expected not stale before ttl elapses")
	}

	now = now.Add(45 * time.Second)
	if _, ok := c.Get("weather", "u1", time.Minute); ok {
		t.Error("expected miss once stale")
	}
	if !c.IsStale("weather", "u1", time.Minute) {
		t.Error("expected stale after ttl elapses")
	}

	stale, ok := c.GetStale("weather", "u1")
	if !ok {
		t.Fatal("expected stale data to remain retrievable")
	}
	if got := stale.(map[string]any)["temp"]; got != 72 {
		t.Errorf("expected stale temp 72, got %v", got)
	}
}

func TestCache_InvalidateAndClearUser(t *testing.T) {
	c := New()
	c.Set("weather", "u1", map[string]any{"temp": 72}, time.Minute)
	c.Set("news", "u1", map[string]any{"headline": "x"}, time.Minute)
	c.Set("weather", "u2", map[string]any{"temp": 50}, time.Minute)

	c.Invalidate("weather", "u1")
	if _, ok := c.Get("weather", "u1", time.Minute); ok {
		t.Error("expected weather:u1 to be invalidated")
	}
	if _, ok := c.Get("news", "u1", time.Minute); !ok {
		t.Error("expected news:u1 to remain")
	}

	c.ClearUser("u1")
	if _, ok := c.Get("news", "u1", time.Minute); ok {
		t.Error("expected ClearUser to remove remaining u1 entries")
	}
	if _, ok := c.Get("weather", "u2", time.Minute); !ok {
		t.Error("expected u2 entries to survive ClearUser(u1)")
	}
}
