package cache

import (
	"context"
	"testing"
	"time"
)

type countingMetrics struct {
	hits, misses, size int
}

func (m *countingMetrics) RecordCacheHit(string)          { m.hits++ }
func (m *countingMetrics) RecordCacheMiss(string)         { m.misses++ }
func (m *countingMetrics) UpdateCacheSize(_ string, n int) { m.size = n }

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 0)

	value := []byte(`{"total":76.5}`)
	if err := c.Set(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'X'

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(got) != `{"total":76.5}` {
		t.Errorf("Get() = %s, cached value was mutated by caller", got)
	}

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Error("expected miss")
	}
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(3, 0)

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k))
	}
	// Touch "a" so "b" becomes least recently used.
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "d", []byte("d"))

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("expected %q to be present", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"))
	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expiry", c.Len())
	}
}

func TestMemoryCache_DeleteClearStats(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{}
	c := NewMemoryCache(10, 0)
	c.SetMetrics(m)

	_ = c.Set(ctx, "a", []byte("1"))
	_ = c.Set(ctx, "b", []byte("2"))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "zzz")
	_ = c.Delete(ctx, "a")

	s := c.Stats()
	if s.Size != 1 || s.Hits != 1 || s.Misses != 1 || s.MaxSize != 10 {
		t.Errorf("Stats() = %+v", s)
	}
	if m.hits != 1 || m.misses != 1 || m.size != 1 {
		t.Errorf("metrics = %+v", m)
	}

	c.Clear()
	if c.Len() != 0 || m.size != 0 {
		t.Errorf("after Clear: Len() = %d, size metric = %d", c.Len(), m.size)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{"", "memory", false},
		{"memory", "memory", false},
		{"none", "none", false},
		{"memcached", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			c, err := New(Config{Type: tt.typ}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v", tt.typ, err)
			}
			if err == nil && c.Stats().Type != tt.want {
				t.Errorf("type = %s, want %s", c.Stats().Type, tt.want)
			}
		})
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("invalid://url", "", time.Minute); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/15", "tbe:test:", time.Minute)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer c.Close()

	ctx := context.Background()
	defer c.Delete(ctx, "k")

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
	_ = c.Delete(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}
