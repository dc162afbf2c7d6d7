package registry

import (
	"fmt"

	"recordcore/pkg/record"
)

// RecordSnapshot is the serialisable state of one record.
type RecordSnapshot struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Status   record.Status  `json:"status"`
	Data     map[string]any `json:"data,omitempty"`
	Baseline map[string]any `json:"baseline,omitempty"`
	Pending  string         `json:"pending,omitempty"`
}

// Snapshot is the full serialisable registry state used by the persistence
// adapters and the archiver.
type Snapshot struct {
	NextKey record.StoreKey                    `json:"next_key"`
	Records map[record.StoreKey]RecordSnapshot `json:"records"`
	Events  []record.Event                     `json:"events"`
}

// ExportState clones the current registry state for external persistence.
func (r *Registry) ExportState() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := Snapshot{
		NextKey: r.nextKey,
		Records: make(map[record.StoreKey]RecordSnapshot, len(r.records)),
		Events:  append([]record.Event(nil), r.events...),
	}
	for key, st := range r.records {
		snapshot.Records[key] = RecordSnapshot{
			Type:     st.typeName,
			ID:       st.id,
			Status:   st.status,
			Data:     record.CloneMap(st.data),
			Baseline: record.CloneMap(st.baseline),
			Pending:  string(st.pending),
		}
	}
	return snapshot
}

// ImportState replaces the registry state with the snapshot. Live facade
// handles are dropped: importing models process start, where facades are
// materialised fresh. Minted keys stay stable across the round trip.
func (r *Registry) ImportState(snapshot Snapshot) error {
	records := make(map[record.StoreKey]*recordState, len(snapshot.Records))
	keys := make(map[string]record.StoreKey, len(snapshot.Records))
	maxKey := snapshot.NextKey
	for key, rs := range snapshot.Records {
		if key == 0 {
			return fmt.Errorf("registry: snapshot contains zero store key")
		}
		lookup := identity(rs.Type, rs.ID)
		if _, dup := keys[lookup]; dup {
			return fmt.Errorf("registry: snapshot repeats identity %s/%s", rs.Type, rs.ID)
		}
		keys[lookup] = key
		records[key] = &recordState{
			typeName: rs.Type,
			id:       rs.ID,
			status:   rs.Status,
			data:     record.CloneMap(rs.Data),
			baseline: record.CloneMap(rs.Baseline),
			pending:  pendingOp(rs.Pending),
		}
		if key > maxKey {
			maxKey = key
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
	r.keys = keys
	r.nextKey = maxKey
	r.events = append([]record.Event(nil), snapshot.Events...)
	r.handles = make(map[record.StoreKey]*record.Entity)
	return nil
}
