// Package redis persists the registry into Redis string keys, one JSON bucket
// per key. It is meant for deployments that already run Redis and want the
// registry state shared or surviving restarts without a SQL server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"recordcore/internal/registry"
	"recordcore/pkg/record"
)

// Compile-time contract assertions.
var (
	_ record.Registry    = (*Store)(nil)
	_ registry.Authority = (*Store)(nil)
)

// DefaultPrefix namespaces the bucket keys when no prefix is configured.
const DefaultPrefix = "recordcore:state:"

var redisBuckets = []string{"records", "events", "next_key"}

// Store is a snapshotting Redis-backed registry. The store takes ownership of
// the client; Close releases it.
type Store struct {
	*registry.Registry
	client *redis.Client
	mu     sync.Mutex
	prefix string

	persistErr error
}

// NewStore verifies the connection, hydrates the registry from any existing
// buckets under prefix (DefaultPrefix when empty), and returns the store.
func NewStore(client *redis.Client, prefix string, opts ...registry.Option) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := &Store{Registry: registry.New(opts...), client: client, prefix: prefix}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) key(bucket string) string {
	return s.prefix + bucket
}

func (s *Store) load(ctx context.Context) error {
	snapshot := registry.Snapshot{}
	loaded := false
	for _, bucket := range redisBuckets {
		payload, err := s.client.Get(ctx, s.key(bucket)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", bucket, err)
		}
		var target any
		switch bucket {
		case "records":
			target = &snapshot.Records
		case "events":
			target = &snapshot.Events
		case "next_key":
			target = &snapshot.NextKey
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		loaded = true
	}
	if !loaded {
		return nil
	}
	if err := s.Registry.ImportState(snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	pipe := s.client.Pipeline()
	for _, bucket := range redisBuckets {
		var data []byte
		var err error
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
		pipe.Set(ctx, s.key(bucket), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist state: %w", err)
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

// Close snapshots one final time and releases the client.
func (s *Store) Close() error {
	err := s.Checkpoint(context.Background())
	return errors.Join(err, s.client.Close())
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

// Client exposes the underlying redis client for integration testing hooks.
func (s *Store) Client() *redis.Client { return s.client }

// Prefix returns the configured key prefix.
func (s *Store) Prefix() string { return s.prefix }
