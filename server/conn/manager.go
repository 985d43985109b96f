// Package conn implements the server-side connection lifecycle: on-connect
// catch-up, snapshot/update validation and persistence, and ephemeral
// fan-out. It holds no transport code of its own — it is driven by
// server/httpapi's websocket handler through the Sender interface, keeping
// connection bookkeeping separate from the network loop.
package conn

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/server/fanout"
	"github.com/secsync/secsync/server/store"
)

// Sender is the minimal capability a transport must provide back to the
// manager: writing one frame to one connection.
type Sender interface {
	Send(frame []byte) error
}

// Manager drives connections for any document against a Store and a
// fanout.Hub; every method takes the docID it acts on. A process typically holds one Manager per document store
// backend, shared across every connection.
type Manager struct {
	st     store.Store
	hub    *fanout.Hub
	logger *zap.SugaredLogger
}

// New creates a Manager backed by st for persistence and hub for fan-out.
func New(st store.Store, hub *fanout.Hub, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{st: st, hub: hub, logger: logger}
}

// HandleConnect looks up docID, creating it leniently if it has never been
// seen, and sends the initial document catch-up frame to sender. It
// returns only the send error; it does not start fan-out. The caller is
// responsible for calling Subscribe and pumping the resulting channel into
// sender for the lifetime of the connection.
func (m *Manager) HandleConnect(ctx context.Context, docID string, sender Sender) error {
	state, err := m.st.GetDocument(ctx, docID, true)
	if err != nil {
		return m.sendDocumentError(sender, docID, err)
	}
	doc := messages.Document{Type: messages.TypeDocument, DocID: docID, Snapshot: state.Snapshot, Updates: state.Updates}
	return sendJSON(sender, doc)
}

// HandleSnapshot validates and persists an incoming snapshot, acking or
// rejecting the author and broadcasting to every other connection on
// acceptance.
func (m *Manager) HandleSnapshot(ctx context.Context, docID, connID string, snap *messages.Snapshot, author Sender) error {
	outcome, err := m.st.SaveSnapshot(ctx, docID, snap)
	if err != nil {
		return m.sendDocumentError(author, docID, err)
	}
	if !outcome.Accepted {
		failed := messages.SnapshotSaveFailed{Type: messages.TypeSnapshotSaveFailed, DocID: docID, Snapshot: outcome.CurrentSnapshot, Updates: outcome.MissingUpdates}
		return sendJSON(author, failed)
	}

	if err := sendJSON(author, messages.SnapshotSaved{Type: messages.TypeSnapshotSaved, SnapshotID: snap.PublicData.SnapshotID, DocID: docID}); err != nil {
		return err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.hub.Broadcast(ctx, docID, connID, raw)
}

// HandleUpdate validates and persists an incoming update, acking the
// author with its assigned server version and broadcasting to every other
// connection on acceptance.
func (m *Manager) HandleUpdate(ctx context.Context, docID, connID string, upd *messages.Update, author Sender) error {
	outcome, err := m.st.SaveUpdate(ctx, docID, upd)
	if err != nil {
		return m.sendDocumentError(author, docID, err)
	}
	if !outcome.Accepted {
		failed := messages.UpdateSaveFailed{Type: messages.TypeUpdateSaveFailed, DocID: docID, SnapshotID: upd.PublicData.RefSnapshotID, Clock: upd.PublicData.Clock}
		return sendJSON(author, failed)
	}

	saved := messages.UpdateSaved{Type: messages.TypeUpdateSaved, DocID: docID, SnapshotID: upd.PublicData.RefSnapshotID, Clock: upd.PublicData.Clock, ServerVersion: outcome.Version}
	if err := sendJSON(author, saved); err != nil {
		return err
	}

	if outcome.AlreadyApplied {
		// Nothing new to broadcast: every other connection already saw
		// this update the first time it was accepted.
		return nil
	}

	raw, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	return m.hub.Broadcast(ctx, docID, connID, raw)
}

// HandleEphemeral validates only docId and fans the message out unchanged;
// it is never persisted.
func (m *Manager) HandleEphemeral(ctx context.Context, docID, connID string, msg *messages.EphemeralMessage) error {
	if msg.PublicData.DocID != docID {
		return nil
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.hub.Broadcast(ctx, docID, connID, raw)
}

// Subscribe registers connID to receive broadcast frames for docID. The
// caller must range over the returned channel until it closes and write
// each frame to its own connection.
func (m *Manager) Subscribe(ctx context.Context, docID, connID string) (<-chan []byte, func()) {
	return m.hub.Subscribe(ctx, docID, connID)
}

func (m *Manager) sendDocumentError(sender Sender, docID string, err error) error {
	m.logger.Errorw("conn: store operation failed", "docId", docID, "error", err)
	return sendJSON(sender, messages.DocumentError{Type: messages.TypeDocumentError, DocID: docID, Message: "internal error"})
}

func sendJSON(sender Sender, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sender.Send(raw)
}
