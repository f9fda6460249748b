package catalog

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Close()

	ctx := context.Background()
	val := []byte(`{"data":[]}`)

	if err := c.Set(ctx, Key, val, 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit, err := c.Get(ctx, Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Set")
	}
	if string(got) != string(val) {
		t.Fatalf("expected %q, got %q", val, got)
	}

	// Wait for TTL to expire
	time.Sleep(30 * time.Millisecond)

	_, hit, err = c.Get(ctx, Key)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second Close must not panic on the already-closed stop channel.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// The cache itself stays usable after the cleanup goroutine stops.
	ctx := context.Background()
	if err := c.Set(ctx, Key, []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set after Close failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, Key); !hit {
		t.Fatalf("expected hit after Close")
	}
}

func TestMemoryCache_NonPositiveTTLDeletes(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	ctx := context.Background()

	if err := c.Set(ctx, Key, []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(ctx, Key, []byte("y"), 0); err != nil {
		t.Fatalf("Set with zero ttl failed: %v", err)
	}

	if _, hit, _ := c.Get(ctx, Key); hit {
		t.Fatalf("zero ttl should delete the entry")
	}
}
