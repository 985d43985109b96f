// Package localstore persists a client's knownSnapshotInfo across process
// restarts using an embedded bbolt database, so it can be passed back in as
// client.Config.KnownSnapshotInfo. The server's `document` frame is still
// received and processed in full on every connect.
package localstore

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/secsync/secsync/client"
)

var bucketName = []byte("secsync_known_snapshots")

// Store wraps a bbolt database keyed by document id.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "localstore: open bbolt")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "localstore: create bucket")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type record struct {
	SnapshotID                 string           `json:"snapshotId"`
	ParentSnapshotUpdateClocks map[string]int64 `json:"parentSnapshotUpdateClocks"`
}

// Load returns the last persisted KnownSnapshotInfo for docID, or nil if
// none has been saved yet.
func (s *Store) Load(docID string) (*client.KnownSnapshotInfo, error) {
	var rec *record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(docID))
		if raw == nil {
			return nil
		}
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "localstore: load")
	}
	if rec == nil {
		return nil, nil
	}
	return &client.KnownSnapshotInfo{
		SnapshotID:                 rec.SnapshotID,
		ParentSnapshotUpdateClocks: rec.ParentSnapshotUpdateClocks,
	}, nil
}

// Save persists info for docID, overwriting any previous entry.
func (s *Store) Save(docID string, info client.KnownSnapshotInfo) error {
	raw, err := json.Marshal(record{
		SnapshotID:                 info.SnapshotID,
		ParentSnapshotUpdateClocks: info.ParentSnapshotUpdateClocks,
	})
	if err != nil {
		return errors.Wrap(err, "localstore: marshal")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(docID), raw)
	})
}
