package client

import (
	"context"
	"crypto/ed25519"

	"github.com/secsync/secsync/messages"
)

// LogLevel selects how chatty the sync machine's logger is.
type LogLevel string

const (
	LogOff   LogLevel = "off"
	LogError LogLevel = "error"
	LogDebug LogLevel = "debug"
)

// KnownSnapshotInfo lets a client resume from a previously observed
// snapshot without waiting on a fresh `document` frame.
type KnownSnapshotInfo struct {
	SnapshotID                 string
	ParentSnapshotUpdateClocks map[string]int64
}

// Config is the explicit construction-time configuration of a sync Machine.
type Config struct {
	DocumentID           string
	WebsocketHost        string
	WebsocketSessionKey  string
	SignatureKeyPair     ed25519.PrivateKey
	Logging              LogLevel
	KnownSnapshotInfo    *KnownSnapshotInfo
}

// NewSnapshotData is what GetNewSnapshotData supplies when the client is
// about to author a brand-new snapshot.
type NewSnapshotData struct {
	Data       []byte
	ID         string
	Key        []byte
	PublicData messages.SnapshotPublicData
}

// HostCallbacks is the Go expression of secsync's host callback contract.
// Every method may suspend and may fail; a failing GetSnapshotKey call
// during initial document load is fatal. IsValidClient is consulted only
// for incoming ephemeral messages, not during document load.
type HostCallbacks interface {
	GetSnapshotKey(ctx context.Context, publicData messages.SnapshotPublicData) ([]byte, error)
	GetNewSnapshotData(ctx context.Context) (*NewSnapshotData, error)
	GetEphemeralMessageKey(ctx context.Context) ([]byte, error)
	ApplySnapshot(ctx context.Context, plaintext []byte) error
	ApplyChanges(ctx context.Context, changes [][]byte) error
	ApplyEphemeralMessage(ctx context.Context, content []byte, senderPubKey string) error
	IsValidClient(ctx context.Context, pubKey string) (bool, error)
	SerializeChanges(ctx context.Context, changes [][]byte) ([]byte, error)
	DeserializeChanges(ctx context.Context, data []byte) ([][]byte, error)
}

// Sender is the send half of the transport handle the sync actor borrows;
// it owns no state of its own.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}
