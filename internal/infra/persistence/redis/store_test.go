package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"recordcore/pkg/record"
	"recordcore/pkg/record/recordtest"
)

func testAddr() string {
	if addr := os.Getenv("RECORDCORE_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// dial returns a fresh client or skips when no server is reachable.
func dial(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testAddr(), DialTimeout: time.Second})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

// testPrefix isolates each test run and registers cleanup of its keys.
func testPrefix(t *testing.T) string {
	t.Helper()
	prefix := fmt.Sprintf("recordcore:test:%s:", uuid.NewString())
	t.Cleanup(func() {
		client := redis.NewClient(&redis.Options{Addr: testAddr(), DialTimeout: time.Second})
		defer func() { _ = client.Close() }()
		ctx := context.Background()
		for _, bucket := range redisBuckets {
			_ = client.Del(ctx, prefix+bucket).Err()
		}
	})
	return prefix
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	prefix := testPrefix(t)
	store, err := NewStore(dial(t), prefix)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	e := recordtest.ValidContact(store)
	if _, err := e.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	key := e.StoreKey()
	if err := store.CompleteCreate(ctx, key); err != nil {
		t.Fatalf("complete create: %v", err)
	}
	id, _ := store.IDForStoreKey(key)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(dial(t), prefix)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", reloaded.Len())
	}
	if got := reloaded.StoreKeyFor(recordtest.ContactType(), id); got != key {
		t.Fatalf("identity must map to the original key, got %d want %d", got, key)
	}
	if got := reloaded.Status(key); got != record.StatusReady {
		t.Fatalf("unexpected reloaded status: %v", got)
	}
	if value, _ := reloaded.ReadValue(key, "email"); value != "ada@example.org" {
		t.Fatalf("expected persisted email, got %v", value)
	}
	if events := reloaded.Events(); len(events) != 1 || events[0].Kind != record.EventCreatedByUser {
		t.Fatalf("expected persisted event journal, got %+v", events)
	}
}

func TestFacadeWritesPersistWithoutExplicitCheckpoint(t *testing.T) {
	prefix := testPrefix(t)
	store, err := NewStore(dial(t), prefix)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	e := recordtest.ValidContact(store)
	if _, err := e.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	key := e.StoreKey()
	if err := e.Set("email", "grace@example.org"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(dial(t), prefix)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	if value, _ := reloaded.ReadValue(key, "email"); value != "grace@example.org" {
		t.Fatalf("expected facade write persisted, got %v", value)
	}
}
