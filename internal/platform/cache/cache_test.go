package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if _, ok, _ := c.Get(ctx, "settings:a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "settings:a", []byte(`{"x":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := c.Get(ctx, "settings:a")
	if err != nil || !ok || string(v) != `{"x":1}` {
		t.Fatalf("unexpected get result %q %v %v", v, ok, err)
	}
	if err := c.Delete(ctx, "settings:a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "settings:a"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry should still be live")
	}
	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'z'
	v, _, _ := c.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("cache must not alias caller buffers, got %q", v)
	}
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"clinic", "clinic:settings:a"},
		{"clinic:", "clinic:settings:a"},
		{"", "settings:a"},
	}
	for _, tt := range tests {
		if got := newRedisCache(nil, tt.prefix).key("settings:a"); got != tt.want {
			t.Errorf("prefix %q: expected %q, got %q", tt.prefix, tt.want, got)
		}
	}
}
