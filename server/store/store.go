// Package store defines secsync's server-side persistence contract: a
// document's active snapshot plus its trailing updates, with transactional
// clock validation and snapshot-chain linkage.
package store

import (
	"context"
	"errors"

	"github.com/secsync/secsync/messages"
)

// ErrDocumentNotFound is returned by GetDocument when no document exists
// for the given id and the caller did not ask for lenient auto-creation.
var ErrDocumentNotFound = errors.New("store: document not found")

// DocumentState is a document's current durable state: its active snapshot
// (nil for a brand-new document with none yet) plus every update accepted
// against that snapshot, in acceptance order.
type DocumentState struct {
	DocID    string
	Snapshot *messages.Snapshot
	Updates  []messages.Update
}

// SnapshotSaveOutcome is the result of attempting to persist a snapshot.
type SnapshotSaveOutcome struct {
	Accepted bool
	// Populated when !Accepted and the client was behind: the server's
	// current snapshot and updates it should catch up on.
	CurrentSnapshot *messages.Snapshot
	// Populated when !Accepted and the new snapshot's
	// parentSnapshotUpdateClocks didn't account for updates the server
	// already has: exactly the updates the client is missing.
	MissingUpdates []messages.Update
}

// UpdateSaveOutcome is the result of attempting to persist an update.
type UpdateSaveOutcome struct {
	Accepted bool
	// AlreadyApplied is true when this exact (refSnapshotId, pubKey,
	// clock) tuple was already stored: a retransmit is acked again rather
	// than treated as an error. The ciphertext is not compared.
	AlreadyApplied bool
	Version        int64
}

// Store is the persistence contract a connection manager drives. Every
// mutating method must run under transactional isolation strong enough to
// serialize concurrent clock checks for the same document.
type Store interface {
	// GetDocument returns a document's current state. If createIfMissing
	// is true and the document does not exist, an empty DocumentState is
	// created and returned instead of ErrDocumentNotFound.
	GetDocument(ctx context.Context, docID string, createIfMissing bool) (*DocumentState, error)

	// SaveSnapshot validates snap's parent-chain and
	// parentSnapshotUpdateClocks against server state, and on success
	// persists it as the new active snapshot for the document.
	SaveSnapshot(ctx context.Context, docID string, snap *messages.Snapshot) (SnapshotSaveOutcome, error)

	// SaveUpdate validates upd.RefSnapshotID against the document's
	// active snapshot and upd.Clock against the author's last accepted
	// clock on that snapshot, then persists it and assigns a monotonic
	// per-snapshot version.
	SaveUpdate(ctx context.Context, docID string, upd *messages.Update) (UpdateSaveOutcome, error)
}
