package client

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync/secsync/codec"
	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/messages"
)

// flatHost is a minimal HostCallbacks implementation: a document is a list
// of opaque change blobs, serialized as a JSON array.
type flatHost struct {
	mu       sync.Mutex
	key      []byte
	applied  [][]byte
	snapshot [][]byte
}

func newFlatHost(key []byte) *flatHost {
	return &flatHost{key: key}
}

func (h *flatHost) GetSnapshotKey(ctx context.Context, publicData messages.SnapshotPublicData) ([]byte, error) {
	return h.key, nil
}

func (h *flatHost) GetNewSnapshotData(ctx context.Context) (*NewSnapshotData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := json.Marshal(h.snapshot)
	if err != nil {
		return nil, err
	}
	return &NewSnapshotData{Data: data, ID: "snap-new", Key: h.key}, nil
}

func (h *flatHost) GetEphemeralMessageKey(ctx context.Context) ([]byte, error) {
	return h.key, nil
}

func (h *flatHost) ApplySnapshot(ctx context.Context, plaintext []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var changes [][]byte
	if err := json.Unmarshal(plaintext, &changes); err != nil {
		return err
	}
	h.applied = changes
	return nil
}

func (h *flatHost) ApplyChanges(ctx context.Context, changes [][]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, changes...)
	return nil
}

func (h *flatHost) ApplyEphemeralMessage(ctx context.Context, content []byte, senderPubKey string) error {
	return nil
}

func (h *flatHost) IsValidClient(ctx context.Context, pubKey string) (bool, error) {
	return true, nil
}

func (h *flatHost) SerializeChanges(ctx context.Context, changes [][]byte) ([]byte, error) {
	return json.Marshal(changes)
}

func (h *flatHost) DeserializeChanges(ctx context.Context, data []byte) ([][]byte, error) {
	var changes [][]byte
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// recordingSender captures every frame sent by the machine.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) last() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(s.frames[len(s.frames)-1], &m)
	return m
}

func newTestMachine(t *testing.T, key []byte) (*Machine, *flatHost, *recordingSender) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	host := newFlatHost(key)
	sender := &recordingSender{}
	m := NewMachine(Config{
		DocumentID:          "doc-1",
		SignatureKeyPair:    priv,
		WebsocketSessionKey: "session-key",
	}, host, sender, nil)
	return m, host, sender
}

// TestReconnectResetsQueuesButKeepsUnsuccessfulReconnects verifies that
// reconnect bookkeeping (UnsuccessfulReconnects) survives a context reset
// while every queue and in-flight tracker is cleared.
func TestReconnectResetsQueuesButKeepsUnsuccessfulReconnects(t *testing.T) {
	m, _, _ := newTestMachine(t, make([]byte, cryptutil.KeyBytes))
	ctx := context.Background()

	m.dispatch(ctx, Event{Type: EventWebsocketDisconnected})
	m.dispatch(ctx, Event{Type: EventWebsocketDisconnected})
	assert.Equal(t, 2, m.ctx.UnsuccessfulReconnects)

	m.ctx.PendingChangesQueue = append(m.ctx.PendingChangesQueue, PendingChange{Data: []byte("queued")})
	m.ctx.IncomingQueue = append(m.ctx.IncomingQueue, []byte("frame"))

	m.dispatch(ctx, Event{Type: EventWebsocketRetry})
	assert.Empty(t, m.ctx.PendingChangesQueue)
	assert.Empty(t, m.ctx.IncomingQueue)
	assert.Equal(t, 2, m.ctx.UnsuccessfulReconnects)

	m.dispatch(ctx, Event{Type: EventWebsocketConnected})
	assert.Equal(t, 0, m.ctx.UnsuccessfulReconnects)
	assert.True(t, m.state.IsConnected())
}

func TestInitialDocumentLoadWithoutSnapshotTriggersSnapshotCreation(t *testing.T) {
	key := make([]byte, cryptutil.KeyBytes)
	m, _, sender := newTestMachine(t, key)
	ctx := context.Background()

	doc := messages.Document{Type: messages.TypeDocument, DocID: "doc-1"}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	m.dispatch(ctx, Event{Type: EventWebsocketAddToIncomingQueue, Data: raw})

	frame := sender.last()
	require.NotNil(t, frame)
	assert.Equal(t, messages.TypeSnapshot, frame["type"])
	assert.NotNil(t, m.ctx.SnapshotInFlight)
}

func TestAddChangesQueuesUntilSnapshotConfirmed(t *testing.T) {
	key := make([]byte, cryptutil.KeyBytes)
	m, host, sender := newTestMachine(t, key)
	ctx := context.Background()

	doc := messages.Document{Type: messages.TypeDocument, DocID: "doc-1"}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	m.dispatch(ctx, Event{Type: EventWebsocketAddToIncomingQueue, Data: raw})

	m.dispatch(ctx, Event{Type: EventAddChanges, Data: []byte("edit-1")})
	assert.Len(t, m.ctx.PendingChangesQueue, 1)

	snapID := m.ctx.SnapshotInFlight.PublicData.SnapshotID
	saved := messages.SnapshotSaved{Type: messages.TypeSnapshotSaved, SnapshotID: snapID, DocID: "doc-1"}
	savedRaw, err := json.Marshal(saved)
	require.NoError(t, err)
	m.dispatch(ctx, Event{Type: EventWebsocketAddToIncomingQueue, Data: savedRaw})

	assert.Empty(t, m.ctx.PendingChangesQueue)
	assert.Len(t, m.ctx.UpdatesInFlight, 1)

	frame := sender.last()
	require.NotNil(t, frame)
	assert.Equal(t, messages.TypeUpdate, frame["type"])
	_ = host
}

// TestInitialDocumentLoadWithSnapshotAppliesGoodUpdateAndRejectsBadClock
// covers §4.2's `document`-with-snapshot load path: a genesis snapshot
// decrypts and applies, a well-formed trailing update applies, and a
// trailing update with a clock far ahead of the expected value stops the
// loop, leaving documentDecryptionState "partial" and the machine failed.
func TestInitialDocumentLoadWithSnapshotAppliesGoodUpdateAndRejectsBadClock(t *testing.T) {
	key := make([]byte, cryptutil.KeyBytes)
	m, host, _ := newTestMachine(t, key)
	ctx := context.Background()

	snapAuthorPub, snapAuthorPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	updAuthorPub, updAuthorPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	snapContent, err := json.Marshal([][]byte{[]byte("hello")})
	require.NoError(t, err)
	snapPublicData := messages.SnapshotPublicData{
		SnapshotID:                 "snap-1",
		DocID:                      "doc-1",
		PubKey:                     cryptutil.EncodeB64(snapAuthorPub),
		ParentSnapshotID:           "",
		ParentSnapshotUpdateClocks: map[string]int64{},
	}
	snap, err := codec.CreateSnapshot(snapContent, snapPublicData, key, snapAuthorPriv, nil, cryptutil.GenesisProof)
	require.NoError(t, err)

	goodContent, err := json.Marshal([][]byte{[]byte("good-edit")})
	require.NoError(t, err)
	badContent, err := json.Marshal([][]byte{[]byte("bad-edit")})
	require.NoError(t, err)
	updPublicData := messages.UpdatePublicData{RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(updAuthorPub)}
	goodUpdate, err := codec.CreateUpdate(goodContent, updPublicData, key, updAuthorPriv, 0)
	require.NoError(t, err)
	badUpdate, err := codec.CreateUpdate(badContent, updPublicData, key, updAuthorPriv, 1000)
	require.NoError(t, err)

	doc := messages.Document{
		Type:    messages.TypeDocument,
		DocID:   "doc-1",
		Snapshot: snap,
		Updates: []messages.Update{*goodUpdate, *badUpdate},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	m.dispatch(ctx, Event{Type: EventWebsocketAddToIncomingQueue, Data: raw})

	assert.Equal(t, DocumentDecryptionPartial, m.ctx.DocumentDecryptionState)
	assert.Equal(t, StateFailed, m.state)
	assert.Equal(t, "snap-1", m.ctx.ActiveSnapshotID)
	require.Len(t, host.applied, 2)
	assert.Equal(t, []byte("hello"), host.applied[0])
	assert.Equal(t, []byte("good-edit"), host.applied[1])
}
