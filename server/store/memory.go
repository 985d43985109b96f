package store

import (
	"context"
	"sync"

	"github.com/secsync/secsync/messages"
)

// Memory is an in-process Store used by tests to exercise the server's
// validation rules without a live Postgres.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*memDoc
}

type memDoc struct {
	snapshot *messages.Snapshot
	updates  []messages.Update
	// clocks[snapshotID][pubKey] = last accepted clock
	clocks map[string]map[string]int64
	// nextVersion[snapshotID] is the next per-snapshot version to assign.
	nextVersion map[string]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*memDoc)}
}

func (m *Memory) getOrCreate(docID string) *memDoc {
	d, ok := m.docs[docID]
	if !ok {
		d = &memDoc{clocks: make(map[string]map[string]int64), nextVersion: make(map[string]int64)}
		m.docs[docID] = d
	}
	return d
}

func (m *Memory) GetDocument(ctx context.Context, docID string, createIfMissing bool) (*DocumentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		if !createIfMissing {
			return nil, ErrDocumentNotFound
		}
		d = m.getOrCreate(docID)
	}
	updatesCopy := make([]messages.Update, len(d.updates))
	copy(updatesCopy, d.updates)
	return &DocumentState{DocID: docID, Snapshot: d.snapshot, Updates: updatesCopy}, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, docID string, snap *messages.Snapshot) (SnapshotSaveOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.getOrCreate(docID)

	if d.snapshot != nil {
		if snap.PublicData.ParentSnapshotID != d.snapshot.PublicData.SnapshotID {
			updatesCopy := make([]messages.Update, len(d.updates))
			copy(updatesCopy, d.updates)
			return SnapshotSaveOutcome{Accepted: false, CurrentSnapshot: d.snapshot, MissingUpdates: updatesCopy}, nil
		}
		serverClocks := d.clocks[d.snapshot.PublicData.SnapshotID]
		var missing []messages.Update
		for author, serverClock := range serverClocks {
			claimed, ok := snap.PublicData.ParentSnapshotUpdateClocks[author]
			if !ok || claimed < serverClock {
				missing = append(missing, collectAuthorUpdates(d.updates, author, claimed)...)
			}
		}
		if missing != nil {
			return SnapshotSaveOutcome{Accepted: false, MissingUpdates: missing}, nil
		}
	}

	d.snapshot = snap
	d.updates = nil
	if _, ok := d.clocks[snap.PublicData.SnapshotID]; !ok {
		d.clocks[snap.PublicData.SnapshotID] = make(map[string]int64)
	}
	d.nextVersion[snap.PublicData.SnapshotID] = 0
	return SnapshotSaveOutcome{Accepted: true}, nil
}

func collectAuthorUpdates(updates []messages.Update, author string, fromClockExclusive int64) []messages.Update {
	var out []messages.Update
	for _, u := range updates {
		if u.PublicData.PubKey == author && u.PublicData.Clock > fromClockExclusive {
			out = append(out, u)
		}
	}
	return out
}

func (m *Memory) SaveUpdate(ctx context.Context, docID string, upd *messages.Update) (UpdateSaveOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.getOrCreate(docID)
	if d.snapshot == nil || upd.PublicData.RefSnapshotID != d.snapshot.PublicData.SnapshotID {
		return UpdateSaveOutcome{Accepted: false}, nil
	}

	snapID := d.snapshot.PublicData.SnapshotID
	clocks := d.clocks[snapID]
	stored, has := clocks[upd.PublicData.PubKey]
	expected := int64(0)
	if has {
		expected = stored + 1
	}

	if upd.PublicData.Clock == stored && has {
		for _, existing := range d.updates {
			if existing.PublicData.PubKey == upd.PublicData.PubKey && existing.PublicData.Clock == upd.PublicData.Clock {
				return UpdateSaveOutcome{Accepted: true, AlreadyApplied: true, Version: findVersion(d, existing)}, nil
			}
		}
	}

	if upd.PublicData.Clock != expected {
		return UpdateSaveOutcome{Accepted: false}, nil
	}

	version := d.nextVersion[snapID]
	d.nextVersion[snapID] = version + 1
	upd.ServerData = &messages.UpdateServerData{Version: version}
	d.updates = append(d.updates, *upd)
	clocks[upd.PublicData.PubKey] = upd.PublicData.Clock

	return UpdateSaveOutcome{Accepted: true, Version: version}, nil
}

func findVersion(d *memDoc, u messages.Update) int64 {
	if u.ServerData != nil {
		return u.ServerData.Version
	}
	return 0
}
