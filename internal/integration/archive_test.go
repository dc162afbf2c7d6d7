package integration

import (
	"context"
	"testing"

	"recordcore/internal/archive"
	"recordcore/internal/blob"
	"recordcore/internal/infra/persistence"
	"recordcore/pkg/record"
	"recordcore/pkg/record/recordtest"
)

// blobVariants enumerates every blob adapter, including the mocked S3
// transport, so one archive cycle covers all of them.
func blobVariants() []struct {
	name string
	open func(t *testing.T) blob.Store
} {
	return []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(*testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				store, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return store
			},
		},
		{
			name: "mock-s3-blob",
			open: func(*testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}
}

// TestArchiveRestoreAcrossBlobAdapters snapshots a populated store into each
// blob adapter and restores it into a fresh store, expecting records, statuses
// and the journal to survive the trip.
func TestArchiveRestoreAcrossBlobAdapters(t *testing.T) {
	ctx := context.Background()
	for _, variant := range blobVariants() {
		t.Run(variant.name, func(t *testing.T) {
			source, err := persistence.Open(persistence.Config{Driver: "memory"})
			if err != nil {
				t.Fatalf("open source store: %v", err)
			}
			defer source.Close()

			contact, err := recordtest.ValidContact(source).Commit()
			if err != nil {
				t.Fatalf("commit: %v", err)
			}
			id := contact.ID()
			if err := source.CompleteCreate(ctx, contact.StoreKey()); err != nil {
				t.Fatalf("complete create: %v", err)
			}
			// Leave a second record mid-create so the restore carries a
			// pending operation too.
			if _, err := recordtest.ValidContact(source).Commit(); err != nil {
				t.Fatalf("commit second: %v", err)
			}

			blobStore := variant.open(t)
			archiver := archive.New(source, blobStore, archive.WithPrefix("snapshots"))
			manifest, err := archiver.Archive(ctx)
			if err != nil {
				t.Fatalf("archive: %v", err)
			}
			if manifest.Records != 2 {
				t.Fatalf("manifest records = %d, want 2", manifest.Records)
			}

			target, err := persistence.Open(persistence.Config{Driver: "memory"})
			if err != nil {
				t.Fatalf("open target store: %v", err)
			}
			defer target.Close()
			if err := archiver.Restore(ctx, manifest, target); err != nil {
				t.Fatalf("restore: %v", err)
			}

			restoredKey := target.StoreKeyFor(recordtest.ContactType(), id)
			restored := target.MaterializeRecord(restoredKey, recordtest.ContactType())
			if got := restored.Status(); got != record.StatusReady {
				t.Fatalf("restored status = %v, want %v", got, record.StatusReady)
			}
			if got := restored.Get("email"); got != "ada@example.org" {
				t.Fatalf("restored email = %v", got)
			}

			want := source.ExportState()
			got := target.ExportState()
			if len(got.Records) != len(want.Records) || len(got.Events) != len(want.Events) {
				t.Fatalf("restored state records=%d events=%d, want records=%d events=%d",
					len(got.Records), len(got.Events), len(want.Records), len(want.Events))
			}
			// The half-created record still waits for its acknowledgement.
			var pending int
			for _, rs := range got.Records {
				if rs.Pending != "" {
					pending++
				}
			}
			if pending != 1 {
				t.Fatalf("restored pending operations = %d, want 1", pending)
			}
		})
	}
}

// TestArchiveLatestPicksNewest archives twice against one adapter and checks
// Latest resolves the second manifest.
func TestArchiveLatestPicksNewest(t *testing.T) {
	ctx := context.Background()
	source, err := persistence.Open(persistence.Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("open source store: %v", err)
	}
	defer source.Close()
	if _, err := recordtest.ValidContact(source).Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	archiver := archive.New(source, blob.NewMemory())
	if _, err := archiver.Archive(ctx); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	second, err := archiver.Archive(ctx)
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}

	latest, ok, err := archiver.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.ID != second.ID {
		t.Fatalf("latest = %s, want %s", latest.ID, second.ID)
	}
}
