// Package sqlite persists the registry to a single SQLite table as JSON
// buckets. The full state is snapshotted after every mutating operation, so a
// process restart resumes exactly where the last write left off.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"recordcore/internal/infra/persistence/sqlbundle"
	"recordcore/internal/registry"
	"recordcore/pkg/record"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertions.
var (
	_ record.Registry    = (*Store)(nil)
	_ registry.Authority = (*Store)(nil)
)

// Store is a snapshotting SQLite-backed registry. It embeds the in-memory
// registry for all record semantics and mirrors every state change into the
// database.
type Store struct {
	*registry.Registry
	db   *sql.DB
	mu   sync.Mutex
	path string

	persistErr error
}

// NewStore opens the database at path (recordcore.db when empty), ensures the
// state table exists, and hydrates the registry from any existing snapshot.
func NewStore(path string, opts ...registry.Option) (*Store, error) {
	if path == "" {
		path = "recordcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.SQLite()) {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply snapshot schema: %w", err)
		}
	}
	s := &Store{Registry: registry.New(opts...), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"records", "events", "next_key"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := registry.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case "records":
			if err := json.Unmarshal(r.payload, &snapshot.Records); err != nil {
				return fmt.Errorf("decode records: %w", err)
			}
		case "events":
			if err := json.Unmarshal(r.payload, &snapshot.Events); err != nil {
				return fmt.Errorf("decode events: %w", err)
			}
		case "next_key":
			if err := json.Unmarshal(r.payload, &snapshot.NextKey); err != nil {
				return fmt.Errorf("decode next_key: %w", err)
			}
		}
	}
	if err := s.Registry.ImportState(snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "records":
			data, err = json.Marshal(snapshot.Records)
		case "events":
			data, err = json.Marshal(snapshot.Events)
		case "next_key":
			data, err = json.Marshal(snapshot.NextKey)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// checkpoint persists after a void registry operation. Failures are retained
// and surface on the next Checkpoint or Close.
func (s *Store) checkpoint() {
	if err := s.persist(context.Background()); err != nil {
		s.mu.Lock()
		s.persistErr = err
		s.mu.Unlock()
	}
}

// Checkpoint forces a snapshot now and reports any persistence failure
// retained from earlier operations.
func (s *Store) Checkpoint(ctx context.Context) error {
	err := s.persist(ctx)
	s.mu.Lock()
	retained := s.persistErr
	s.persistErr = nil
	s.mu.Unlock()
	return errors.Join(retained, err)
}

// Close snapshots one final time and releases the database.
func (s *Store) Close() error {
	err := s.Checkpoint(context.Background())
	return errors.Join(err, s.db.Close())
}

// StoreKeyFor implements record.Registry: minting a key changes state, so a
// snapshot follows.
func (s *Store) StoreKeyFor(t *record.Type, id any) record.StoreKey {
	key := s.Registry.StoreKeyFor(t, id)
	s.checkpoint()
	return key
}

// SetStatus implements record.Registry.
func (s *Store) SetStatus(key record.StoreKey, status record.Status) {
	s.Registry.SetStatus(key, status)
	s.checkpoint()
}

// WriteValue implements record.Registry.
func (s *Store) WriteValue(key record.StoreKey, wireKey string, value any) {
	s.Registry.WriteValue(key, wireKey, value)
	s.checkpoint()
}

// CreateRecord implements record.Registry.
func (s *Store) CreateRecord(key record.StoreKey, data map[string]any) {
	s.Registry.CreateRecord(key, data)
	s.checkpoint()
}

// RevertData implements record.Registry.
func (s *Store) RevertData(key record.StoreKey) {
	s.Registry.RevertData(key)
	s.checkpoint()
}

// FetchData implements record.Registry.
func (s *Store) FetchData(key record.StoreKey) {
	s.Registry.FetchData(key)
	s.checkpoint()
}

// DestroyRecord implements record.Registry.
func (s *Store) DestroyRecord(key record.StoreKey) {
	s.Registry.DestroyRecord(key)
	s.checkpoint()
}

// RecordEvent implements record.Registry.
func (s *Store) RecordEvent(ev record.Event) {
	s.Registry.RecordEvent(ev)
	s.checkpoint()
}

// MaterializeRecord implements record.Registry. Facades are bound to the
// store so their writes flow through the snapshotting wrappers.
func (s *Store) MaterializeRecord(key record.StoreKey, t *record.Type) *record.Entity {
	return s.Registry.MaterializeFor(key, t, s)
}

// CompleteCreate implements registry.Authority.
func (s *Store) CompleteCreate(ctx context.Context, key record.StoreKey) error {
	if err := s.Registry.CompleteCreate(ctx, key); err != nil {
		return err
	}
	return s.persist(ctx)
}

// CompleteFetch implements registry.Authority.
func (s *Store) CompleteFetch(ctx context.Context, key record.StoreKey, data map[string]any) error {
	if err := s.Registry.CompleteFetch(ctx, key, data); err != nil {
		return err
	}
	return s.persist(ctx)
}

// CompleteFetchMissing implements registry.Authority.
func (s *Store) CompleteFetchMissing(ctx context.Context, key record.StoreKey) error {
	if err := s.Registry.CompleteFetchMissing(ctx, key); err != nil {
		return err
	}
	return s.persist(ctx)
}

// CompleteDestroy implements registry.Authority.
func (s *Store) CompleteDestroy(ctx context.Context, key record.StoreKey) error {
	if err := s.Registry.CompleteDestroy(ctx, key); err != nil {
		return err
	}
	return s.persist(ctx)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
