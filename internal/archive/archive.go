// Package archive writes registry snapshots and their event journals to a
// blob store and restores them. Each archive is three objects under a
// timestamped key: state.json with the record table, events.json with the
// journal, and a manifest.json written last so that a visible manifest
// always points at complete data.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recordcore/internal/blob"
	"recordcore/internal/registry"
	"recordcore/pkg/record"
)

// Source yields the state to archive. The in-memory registry and every
// persistence store satisfy it.
type Source interface {
	ExportState() registry.Snapshot
}

// Target accepts a restored snapshot.
type Target interface {
	ImportState(snapshot registry.Snapshot) error
}

// Manifest describes one completed archive.
type Manifest struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	StateKey   string          `json:"state_key"`
	EventsKey  string          `json:"events_key"`
	Records    int             `json:"records"`
	Events     int             `json:"events"`
	NextKey    record.StoreKey `json:"next_key"`
	StateETag  string          `json:"state_etag,omitempty"`
	EventsETag string          `json:"events_etag,omitempty"`
}

// DefaultPrefix is the blob key prefix used when none is configured.
const DefaultPrefix = "archives"

const (
	stateName    = "state.json"
	eventsName   = "events.json"
	manifestName = "manifest.json"
)

// stateFile is the payload of state.json: the record table without the
// journal, which lives in events.json next to it.
type stateFile struct {
	NextKey record.StoreKey                             `json:"next_key"`
	Records map[record.StoreKey]registry.RecordSnapshot `json:"records"`
}

// Archiver exports snapshots from a source into a blob store, on demand or
// on a ticker.
type Archiver struct {
	source Source
	store  blob.Store
	prefix string
	clock  func() time.Time
	logger registry.Logger
	newID  func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises an Archiver at construction time.
type Option func(*Archiver)

// WithPrefix overrides the blob key prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		if p := strings.Trim(prefix, "/"); p != "" {
			a.prefix = p
		}
	}
}

// WithClock overrides the time source used for keys and manifests.
func WithClock(clock func() time.Time) Option {
	return func(a *Archiver) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger registry.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New returns an Archiver reading from source and writing to store.
func New(source Source, store blob.Store, opts ...Option) *Archiver {
	a := &Archiver{
		source: source,
		store:  store,
		prefix: DefaultPrefix,
		clock:  time.Now,
		logger: nopLogger{},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive exports the current source state into a new archive and returns
// its manifest.
func (a *Archiver) Archive(ctx context.Context) (Manifest, error) {
	snapshot := a.source.ExportState()
	now := a.clock().UTC()
	id := a.newID()

	// Timestamp first so keys sort chronologically; the id suffix keeps
	// same-second archives distinct.
	base := path.Join(a.prefix, now.Format("20060102T150405Z")+"-"+shortID(id))

	statePayload, err := json.MarshalIndent(stateFile{NextKey: snapshot.NextKey, Records: snapshot.Records}, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: marshal state: %w", err)
	}
	events := snapshot.Events
	if events == nil {
		events = []record.Event{}
	}
	eventsPayload, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: marshal events: %w", err)
	}

	manifest := Manifest{
		ID:        id,
		CreatedAt: now,
		StateKey:  path.Join(base, stateName),
		EventsKey: path.Join(base, eventsName),
		Records:   len(snapshot.Records),
		Events:    len(events),
		NextKey:   snapshot.NextKey,
	}

	stateInfo, err := a.store.Put(ctx, manifest.StateKey, bytes.NewReader(statePayload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"archive_id": id, "records": strconv.Itoa(manifest.Records)},
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: write state: %w", err)
	}
	manifest.StateETag = stateInfo.ETag

	eventsInfo, err := a.store.Put(ctx, manifest.EventsKey, bytes.NewReader(eventsPayload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"archive_id": id, "events": strconv.Itoa(manifest.Events)},
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: write events: %w", err)
	}
	manifest.EventsETag = eventsInfo.ETag

	manifestPayload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if _, err := a.store.Put(ctx, path.Join(base, manifestName), bytes.NewReader(manifestPayload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"archive_id": id},
	}); err != nil {
		return Manifest{}, fmt.Errorf("archive: write manifest: %w", err)
	}

	a.logger.Info("archive written", "id", id, "records", manifest.Records, "events", manifest.Events)
	return manifest, nil
}

// List returns every manifest under the prefix, oldest first.
func (a *Archiver) List(ctx context.Context) ([]Manifest, error) {
	infos, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	var manifests []Manifest
	for _, info := range infos {
		if path.Base(info.Key) != manifestName {
			continue
		}
		manifest, err := a.readManifest(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	sort.Slice(manifests, func(i, j int) bool {
		if !manifests[i].CreatedAt.Equal(manifests[j].CreatedAt) {
			return manifests[i].CreatedAt.Before(manifests[j].CreatedAt)
		}
		return manifests[i].StateKey < manifests[j].StateKey
	})
	return manifests, nil
}

// Latest returns the newest manifest, reporting false when no archive
// exists yet.
func (a *Archiver) Latest(ctx context.Context) (Manifest, bool, error) {
	manifests, err := a.List(ctx)
	if err != nil || len(manifests) == 0 {
		return Manifest{}, false, err
	}
	return manifests[len(manifests)-1], true, nil
}

// Restore loads the archive named by manifest into target.
func (a *Archiver) Restore(ctx context.Context, manifest Manifest, target Target) error {
	var state stateFile
	if err := a.readJSON(ctx, manifest.StateKey, &state); err != nil {
		return err
	}
	var events []record.Event
	if err := a.readJSON(ctx, manifest.EventsKey, &events); err != nil {
		return err
	}
	snapshot := registry.Snapshot{NextKey: state.NextKey, Records: state.Records, Events: events}
	if err := target.ImportState(snapshot); err != nil {
		return fmt.Errorf("archive: import state: %w", err)
	}
	a.logger.Info("archive restored", "id", manifest.ID, "records", len(state.Records))
	return nil
}

// RestoreLatest restores the newest archive into target and returns its
// manifest. Fails when no archive exists.
func (a *Archiver) RestoreLatest(ctx context.Context, target Target) (Manifest, error) {
	manifest, ok, err := a.Latest(ctx)
	if err != nil {
		return Manifest{}, err
	}
	if !ok {
		return Manifest{}, fmt.Errorf("archive: nothing to restore under %s/", a.prefix)
	}
	return manifest, a.Restore(ctx, manifest, target)
}

// Prune deletes the oldest archives beyond keep and reports how many were
// removed. The manifest goes first so a half-pruned archive is never listed.
func (a *Archiver) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	manifests, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(manifests) <= keep {
		return 0, nil
	}
	removed := 0
	for _, manifest := range manifests[:len(manifests)-keep] {
		manifestKey := path.Join(path.Dir(manifest.StateKey), manifestName)
		for _, key := range []string{manifestKey, manifest.StateKey, manifest.EventsKey} {
			if _, err := a.store.Delete(ctx, key); err != nil {
				return removed, fmt.Errorf("archive: prune %s: %w", key, err)
			}
		}
		removed++
		a.logger.Info("archive pruned", "id", manifest.ID)
	}
	return removed, nil
}

// Start launches a loop writing an archive every interval. Stop halts it.
func (a *Archiver) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		cancel()
		return
	}
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Archive(ctx); err != nil {
					a.logger.Error("periodic archive failed", "error", err)
				}
			}
		}
	}()
}

// Stop signals the loop to halt and waits for it, bounded by ctx.
func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) readManifest(ctx context.Context, key string) (Manifest, error) {
	var manifest Manifest
	if err := a.readJSON(ctx, key, &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (a *Archiver) readJSON(ctx context.Context, key string, v any) error {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
