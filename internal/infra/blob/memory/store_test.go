package memory

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"recordcore/internal/blob/core"
)

func TestStoreCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("driver = %q", store.Driver())
	}
	info, err := store.Put(ctx, "snapshots/s1.json", strings.NewReader(`{"records":{}}`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size == 0 {
		t.Fatalf("incomplete info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/s1.json", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("overwrite should fail")
	}
	if _, err := store.Put(ctx, "  ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("blank key should fail")
	}
}

func TestStoreGetCopiesData(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "k", strings.NewReader("abc"), core.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "abc" {
		t.Fatalf("body = %q", body)
	}
	// Mutating the returned metadata must not leak into the store.
	info.Metadata["a"] = "mutated"
	again, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if again.Metadata["a"] != "1" {
		t.Fatalf("metadata aliased: %+v", again.Metadata)
	}
}

func TestStoreMissingKeyIsNotExist(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("get: %v", err)
	}
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("head: %v", err)
	}
	existed, err := store.Delete(ctx, "nope")
	if err != nil || existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
}

func TestStoreListSortedByKey(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"b/2", "a/1", "b/1"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "b/1" || infos[1].Key != "b/2" {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestStorePresignUnsupported(t *testing.T) {
	if _, err := New().PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("presign: %v", err)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "k/" + string(rune('a'+n))
			if _, err := store.Put(ctx, key, strings.NewReader("v"), core.PutOptions{}); err != nil {
				t.Errorf("put %s: %v", key, err)
				return
			}
			if _, err := store.Head(ctx, key); err != nil {
				t.Errorf("head %s: %v", key, err)
			}
		}(i)
	}
	wg.Wait()
	infos, err := store.List(ctx, "k/")
	if err != nil || len(infos) != 8 {
		t.Fatalf("list: n=%d err=%v", len(infos), err)
	}
}
