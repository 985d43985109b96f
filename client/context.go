package client

import (
	"github.com/secsync/secsync/messages"
)

// DocumentDecryptionState tracks how far the client got decrypting the
// document snapshot and its trailing updates on the most recent `document`
// frame.
type DocumentDecryptionState string

const (
	DocumentDecryptionPending  DocumentDecryptionState = "pending"
	DocumentDecryptionPartial  DocumentDecryptionState = "partial"
	DocumentDecryptionComplete DocumentDecryptionState = "complete"
	DocumentDecryptionFailed   DocumentDecryptionState = "failed"
)

const errorRingBufferCapacity = 20

// PendingChange is one host-supplied change waiting to be bundled into an
// update or deferred while a snapshot is in flight.
type PendingChange struct {
	Data []byte
}

// OutgoingUpdate is one of this client's own updates awaiting a save ack.
type OutgoingUpdate struct {
	Envelope  *messages.Update
	Plaintext []byte
}

// Context is the sync actor's owned state: connection lifecycle bookkeeping,
// queues, in-flight tracking and ephemeral session state. It is
// exclusively owned by a Machine's Run loop; nothing outside that goroutine
// may read or mutate it.
type Context struct {
	DocID string

	ActiveSnapshotID    string
	HasActiveSnapshotID bool

	LatestServerVersion    int64
	HasLatestServerVersion bool

	DocumentDecryptionState DocumentDecryptionState

	IncomingQueue       [][]byte
	CustomMessageQueue  [][]byte
	PendingChangesQueue []PendingChange

	SnapshotInFlight *messages.Snapshot

	// UpdatesInFlight are this client's own outgoing updates awaiting a
	// save ack. Plaintext is retained alongside the envelope so an
	// update can be re-issued (re-encrypted against a new snapshot/clock)
	// if the active snapshot changes before the ack arrives.
	UpdatesInFlight []OutgoingUpdate

	// PerAuthorUpdateClocks tracks, for the current active snapshot, the
	// last clock value observed from each author.
	PerAuthorUpdateClocks map[string]int64

	// UpdatesLocalClock is this client's own last-sent clock against the
	// active snapshot; -1 means none sent yet, next-to-send is value+1.
	UpdatesLocalClock int64

	EphemeralSession *EphemeralSessionHolder

	ReceivingEphemeralErrors  *ErrorRingBuffer
	AuthoringEphemeralErrors  *ErrorRingBuffer

	UnsuccessfulReconnects int
}

// NewContext builds a fresh Context for a document, in the state a brand
// new connection attempt starts from.
func NewContext(docID string) *Context {
	c := &Context{DocID: docID}
	c.reset()
	return c
}

// reset clears every field scoped to a single connection attempt,
// preserving UnsuccessfulReconnects which is connection-attempt
// bookkeeping, not per-connection context.
func (c *Context) reset() {
	c.IncomingQueue = nil
	c.CustomMessageQueue = nil
	c.PendingChangesQueue = nil
	c.SnapshotInFlight = nil
	c.UpdatesInFlight = nil
	c.PerAuthorUpdateClocks = make(map[string]int64)
	c.UpdatesLocalClock = -1
	c.EphemeralSession = newEphemeralSessionHolder()
	c.ReceivingEphemeralErrors = NewErrorRingBuffer(errorRingBufferCapacity)
	c.AuthoringEphemeralErrors = NewErrorRingBuffer(errorRingBufferCapacity)
	c.DocumentDecryptionState = DocumentDecryptionPending
}
