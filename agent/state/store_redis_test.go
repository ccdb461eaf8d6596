package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(nil); err == nil {
		t.Fatalf("NewRedisStore(nil) error = nil")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	if _, err := NewRedisStore(rdb, WithTTL(-time.Second)); err == nil {
		t.Fatalf("NewRedisStore(negative ttl) error = nil")
	}
}

// Runs against a live server when REDIS_TEST_ADDR is set.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping integration test")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisStore(rdb, WithKeyPrefix("concierge:test:"), WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}

	st := NewSharedState("redis-rt", "guest", time.Now())
	_ = st.Ingest("hello")
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := store.Load(ctx, "redis-rt")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.LatestUtterance() != "hello" {
		t.Fatalf("LatestUtterance() = %q", loaded.LatestUtterance())
	}
	if err := store.Delete(ctx, "redis-rt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "redis-rt"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v", err)
	}
}
