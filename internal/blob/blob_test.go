package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Setenv("RECORDCORE_BLOB_DRIVER", "memory")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %q", store.Driver())
	}

	t.Setenv("RECORDCORE_BLOB_DRIVER", "fs")
	t.Setenv("RECORDCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %q", store.Driver())
	}

	t.Setenv("RECORDCORE_BLOB_DRIVER", "carrier-pigeon")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("RECORDCORE_BLOB_DRIVER", "s3")
	t.Setenv("RECORDCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
}

func TestFacadeRoundTripThroughInterface(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if _, err := store.Put(ctx, "k", strings.NewReader("payload"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" || info.ContentType != "text/plain" {
		t.Fatalf("round trip: body=%q info=%+v", body, info)
	}
	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("memory presign: %v", err)
	}
}

func TestMockS3BehindFacade(t *testing.T) {
	ctx := context.Background()
	store := NewMockS3ForTests()
	if store.Driver() != DriverS3 {
		t.Fatalf("driver = %q", store.Driver())
	}
	if _, err := store.Put(ctx, "snapshots/a.json", strings.NewReader("{}"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	infos, err := store.List(ctx, "snapshots/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: n=%d err=%v", len(infos), err)
	}
}
