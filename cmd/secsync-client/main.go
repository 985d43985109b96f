// Command secsync-client is a minimal demo host: it treats a document as a
// flat log of byte-slice changes (no real CRDT merge, since secsync is
// CRDT-agnostic) and drives one client.Machine against a running
// secsync-server over a websocket loop.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/secsync/secsync/client"
	"github.com/secsync/secsync/client/localstore"
	"github.com/secsync/secsync/client/transport"
	"github.com/secsync/secsync/internal/config"
	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/internal/logging"
	"github.com/secsync/secsync/messages"
)

// flatLogHost accumulates every applied change as an opaque byte slice.
// It exists to exercise client.HostCallbacks end to end; a real host would
// plug in an actual CRDT here.
type flatLogHost struct {
	mu      sync.Mutex
	changes [][]byte
	signKey ed25519.PrivateKey
	docID   string
	pubKey  string
}

func (h *flatLogHost) GetSnapshotKey(ctx context.Context, publicData messages.SnapshotPublicData) ([]byte, error) {
	return staticDocumentKey(h.docID), nil
}

func (h *flatLogHost) GetNewSnapshotData(ctx context.Context) (*client.NewSnapshotData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := json.Marshal(h.changes)
	if err != nil {
		return nil, err
	}
	return &client.NewSnapshotData{
		Data: data,
		ID:   uuid.NewString(),
		Key:  staticDocumentKey(h.docID),
		PublicData: messages.SnapshotPublicData{
			DocID:  h.docID,
			PubKey: h.pubKey,
		},
	}, nil
}

func (h *flatLogHost) GetEphemeralMessageKey(ctx context.Context) ([]byte, error) {
	return staticDocumentKey(h.docID), nil
}

func (h *flatLogHost) ApplySnapshot(ctx context.Context, plaintext []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var changes [][]byte
	if err := json.Unmarshal(plaintext, &changes); err != nil {
		return err
	}
	h.changes = changes
	return nil
}

func (h *flatLogHost) ApplyChanges(ctx context.Context, changes [][]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, changes...)
	return nil
}

func (h *flatLogHost) ApplyEphemeralMessage(ctx context.Context, content []byte, senderPubKey string) error {
	return nil
}

func (h *flatLogHost) IsValidClient(ctx context.Context, pubKey string) (bool, error) {
	return true, nil
}

func (h *flatLogHost) SerializeChanges(ctx context.Context, changes [][]byte) ([]byte, error) {
	return json.Marshal(changes)
}

func (h *flatLogHost) DeserializeChanges(ctx context.Context, data []byte) ([][]byte, error) {
	var changes [][]byte
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// staticDocumentKey derives a deterministic demo document key. A real host
// obtains this from its own key-exchange/key-distribution scheme.
func staticDocumentKey(docID string) []byte {
	sum := make([]byte, cryptutil.KeyBytes)
	copy(sum, []byte(docID))
	return sum
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogJSON)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	docID := os.Getenv("SECSYNC_DOC_ID")
	if docID == "" {
		docID = "demo-doc"
	}

	_, signKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		logger.Fatalw("secsync-client: generate signing key", "error", err)
	}

	store, err := localstore.Open(cfg.LocalStorePath)
	if err != nil {
		logger.Fatalw("secsync-client: open local store", "error", err)
	}
	defer store.Close()

	known, err := store.Load(docID)
	if err != nil {
		logger.Fatalw("secsync-client: load known snapshot", "error", err)
	}

	host := &flatLogHost{signKey: signKey, docID: docID, pubKey: cryptutil.EncodeB64(signKey.Public().(ed25519.PublicKey))}

	machineCfg := client.Config{
		DocumentID:          docID,
		WebsocketHost:       cfg.WebsocketHost,
		WebsocketSessionKey: uuid.NewString(),
		SignatureKeyPair:    signKey,
		Logging:             client.LogDebug,
		KnownSnapshotInfo:   known,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	machine := client.NewMachine(machineCfg, host, nil, logger)
	actor := transport.New(cfg.WebsocketHost, machineCfg.WebsocketSessionKey, docID, machine, logger)
	machine.SetSender(actor)

	go actor.Run(ctx)

	if err := machine.Run(ctx); err != nil {
		logger.Errorw("secsync-client: machine stopped", "error", err)
	}
}
