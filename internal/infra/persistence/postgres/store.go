// Package postgres provides a Postgres-backed registry that mirrors the
// in-memory semantics while snapshotting state into a JSONB table after every
// mutating operation.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"recordcore/internal/infra/persistence/sqlbundle"
	"recordcore/internal/registry"
	"recordcore/pkg/record"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertions.
var (
	_ record.Registry    = (*Store)(nil)
	_ registry.Authority = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with the persistence factory defaults while
	// allowing overrides via env.
	defaultDSN = "postgres://localhost/recordcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists registry state to Postgres while reusing the in-memory
// implementation for all record semantics.
type Store struct {
	*registry.Registry
	db *sql.DB
	mu sync.Mutex

	persistErr error
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// registry from any existing snapshot.
func NewStore(dsn string, opts ...registry.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, loaded, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	s := &Store{Registry: registry.New(opts...), db: db}
	if loaded {
		if err := s.Registry.ImportState(snapshot); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
	}
	return s, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure state table: %w", err)
		}
	}
	return nil
}

var postgresBuckets = []string{"records", "events", "next_key"}

func loadSnapshot(ctx context.Context, db *sql.DB) (registry.Snapshot, bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return registry.Snapshot{}, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot registry.Snapshot
	targets := map[string]any{
		"records":  &snapshot.Records,
		"events":   &snapshot.Events,
		"next_key": &snapshot.NextKey,
	}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return registry.Snapshot{}, false, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return registry.Snapshot{}, false, fmt.Errorf("decode %s: %w", bucket, err)
			}
			loaded = true
		}
	}
	if err := rows.Err(); err != nil {
		return registry.Snapshot{}, false, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, loaded, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
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
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
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

// Close snapshots one final time and releases the connection pool.
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
