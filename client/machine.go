// Package client implements secsync's client-side sync state machine:
// connection lifecycle, incoming queue processing, snapshot/update
// in-flight tracking, pending-changes buffering, reconnection and error
// accounting.
package client

import (
	"context"
	"crypto/ed25519"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/secsync/secsync/codec"
	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/secerr"
)

// Machine is the single-threaded sync actor for one document connection. It
// owns a *Context exclusively; the transport actor and host only interact
// with it through Enqueue and the Sender/HostCallbacks interfaces.
type Machine struct {
	cfg    Config
	host   HostCallbacks
	sender Sender
	logger *zap.SugaredLogger

	state State
	ctx   *Context

	// cached material about the currently active snapshot, needed to
	// verify the next snapshot's parent-proof chain and to decrypt
	// updates against it. Not part of Context because it is derived
	// state, not queue/in-flight bookkeeping.
	activeKey               []byte
	activeCiphertext        []byte
	activeProof             []byte
	snapshotInFlightKey     []byte

	events chan Event
}

// NewMachine constructs a Machine in the disconnected state.
func NewMachine(cfg Config, host HostCallbacks, sender Sender, logger *zap.SugaredLogger) *Machine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Machine{
		cfg:    cfg,
		host:   host,
		sender: sender,
		logger: logger,
		state:  StateDisconnected,
		ctx:    NewContext(cfg.DocumentID),
		events: make(chan Event, 256),
	}
	if cfg.KnownSnapshotInfo != nil {
		m.activeProof = nil // unknown until a document/snapshot frame confirms the chain
		m.ctx.ActiveSnapshotID = cfg.KnownSnapshotInfo.SnapshotID
		m.ctx.HasActiveSnapshotID = cfg.KnownSnapshotInfo.SnapshotID != ""
		for k, v := range cfg.KnownSnapshotInfo.ParentSnapshotUpdateClocks {
			m.ctx.PerAuthorUpdateClocks[k] = v
		}
	}
	return m
}

// State returns the machine's current connection-lifecycle state.
func (m *Machine) State() State { return m.state }

// Context exposes the owned context for tests and observability. Only the
// Run goroutine may mutate it.
func (m *Machine) Context() *Context { return m.ctx }

// Enqueue pushes an event onto the machine's queue. Safe to call from the
// transport actor or host goroutines.
func (m *Machine) Enqueue(ev Event) {
	m.events <- ev
}

// SetSender attaches the transport handle the machine sends frames
// through. It exists because a transport actor typically needs a *Machine
// to enqueue incoming events before that machine has a sender to write to;
// callers wire both halves together after construction.
func (m *Machine) SetSender(sender Sender) {
	m.sender = sender
}

// Run drains the event queue until ctx is cancelled or the machine enters
// the failed state, processing each event to completion before the next is
// drained.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.dispatch(ctx, ev)
			if m.state == StateFailed {
				return nil
			}
		}
	}
}

func (m *Machine) pubKeyString() string {
	return cryptutil.EncodeB64(m.cfg.SignatureKeyPair.Public().(ed25519.PublicKey))
}

func (m *Machine) dispatch(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventWebsocketRetry:
		m.ctx.reset()
		m.state = StateConnecting

	case EventWebsocketConnected:
		m.state = StateConnectedIdle
		m.ctx.UnsuccessfulReconnects = 0

	case EventWebsocketDisconnected:
		if m.state != StateFailed {
			m.ctx.UnsuccessfulReconnects++
			m.state = StateConnectingRetrying
		}

	case EventDisconnect:
		m.state = StateDisconnected

	case EventWebsocketAddToIncomingQueue:
		m.ctx.IncomingQueue = append(m.ctx.IncomingQueue, ev.Data)
		m.drainIncomingQueue(ctx)

	case EventWebsocketAddToCustomMsgQueue:
		m.ctx.CustomMessageQueue = append(m.ctx.CustomMessageQueue, ev.Data)

	case EventAddChanges:
		m.ctx.PendingChangesQueue = append(m.ctx.PendingChangesQueue, PendingChange{Data: ev.Data})
		m.tryFlushPendingChanges(ctx)

	case EventCreateSnapshot:
		m.beginSnapshotCreation(ctx)

	case EventFailedCreatingEphemeralUpdate:
		m.ctx.AuthoringEphemeralErrors.Push(ev.Err)

	case EventSendEphemeralUpdate:
		m.sendEphemeralUpdate(ctx, ev.Data, ev.EphemeralMessageType)
	}
}

func (m *Machine) sendEphemeralUpdate(ctx context.Context, body []byte, msgType messages.EphemeralMessageType) {
	key, err := m.host.GetEphemeralMessageKey(ctx)
	if err != nil {
		m.ctx.AuthoringEphemeralErrors.Push(err)
		return
	}
	session, err := m.ctx.EphemeralSession.Get()
	if err != nil {
		m.ctx.AuthoringEphemeralErrors.Push(err)
		return
	}
	env, err := codec.CreateEphemeralMessage(body, msgType, session,
		messages.EphemeralPublicData{DocID: m.ctx.DocID, PubKey: m.pubKeyString()},
		key, m.cfg.SignatureKeyPair)
	if err != nil {
		m.ctx.AuthoringEphemeralErrors.Push(err)
		return
	}
	m.sendFrame(ctx, env)
}

func (m *Machine) sendFrame(ctx context.Context, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		m.logger.Errorw("failed to marshal outgoing frame", "error", err)
		return
	}
	if err := m.sender.Send(ctx, raw); err != nil {
		m.logger.Errorw("failed to send frame", "error", err)
	}
}

// drainIncomingQueue processes every frame currently queued, dispatching by
// its `type` discriminator.
func (m *Machine) drainIncomingQueue(ctx context.Context) {
	if m.state.IsConnected() {
		m.state = StateConnectedProcessingQueues
	}
	for len(m.ctx.IncomingQueue) > 0 {
		raw := m.ctx.IncomingQueue[0]
		m.ctx.IncomingQueue = m.ctx.IncomingQueue[1:]
		m.handleIncomingFrame(ctx, raw)
		if m.state == StateFailed {
			return
		}
	}
	if m.state == StateConnectedProcessingQueues {
		m.state = StateConnectedIdle
	}
}

func (m *Machine) handleIncomingFrame(ctx context.Context, raw []byte) {
	typ, err := messages.SniffType(raw)
	if err != nil {
		m.logger.Errorw("incoming frame has no type discriminator", "error", err)
		return
	}
	switch typ {
	case messages.TypeDocument:
		var f messages.Document
		if err := json.Unmarshal(raw, &f); err != nil {
			m.logger.Errorw("malformed document frame", "error", err)
			return
		}
		m.handleDocument(ctx, &f)
	case messages.TypeSnapshot:
		var f messages.Snapshot
		if err := json.Unmarshal(raw, &f); err != nil {
			m.logger.Errorw("malformed snapshot frame", "error", err)
			return
		}
		m.handleIncomingSnapshot(ctx, &f)
	case messages.TypeSnapshotSaved:
		var f messages.SnapshotSaved
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		m.handleSnapshotSaved(ctx, &f)
	case messages.TypeSnapshotSaveFailed:
		var f messages.SnapshotSaveFailed
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		m.handleSnapshotSaveFailed(ctx, &f)
	case messages.TypeUpdate:
		var f messages.Update
		if err := json.Unmarshal(raw, &f); err != nil {
			m.logger.Errorw("malformed update frame", "error", err)
			return
		}
		m.handleIncomingUpdate(ctx, &f)
	case messages.TypeUpdateSaved:
		var f messages.UpdateSaved
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		m.handleUpdateSaved(ctx, &f)
	case messages.TypeUpdateSaveFailed:
		var f messages.UpdateSaveFailed
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		m.handleUpdateSaveFailed(ctx, &f)
	case messages.TypeEphemeralMessage:
		var f messages.EphemeralMessage
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		m.handleEphemeralMessage(ctx, &f)
	case messages.TypeDocumentNotFound, messages.TypeUnauthorized, messages.TypeDocumentError:
		m.logger.Errorw("server sent a terminal signal", "type", typ)
		m.state = StateFailed
	default:
		m.ctx.CustomMessageQueue = append(m.ctx.CustomMessageQueue, raw)
	}
}

// applyUpdatePlaintext decodes and hands off a decrypted update's changes to
// the host.
func (m *Machine) applyUpdatePlaintext(ctx context.Context, plaintext []byte) error {
	changes, err := m.host.DeserializeChanges(ctx, plaintext)
	if err != nil {
		return err
	}
	return m.host.ApplyChanges(ctx, changes)
}

func (m *Machine) handleDocument(ctx context.Context, f *messages.Document) {
	if f.Snapshot == nil {
		m.beginSnapshotCreation(ctx)
		return
	}

	key, err := m.host.GetSnapshotKey(ctx, f.Snapshot.PublicData)
	if err != nil {
		m.ctx.DocumentDecryptionState = DocumentDecryptionFailed
		m.state = StateFailed
		m.logger.Errorw("getSnapshotKey failed during initial document load", "error", err)
		return
	}

	params := codec.VerifyAndDecryptSnapshotParams{
		Key:          key,
		AuthorPubKey: mustDecodePubKey(f.Snapshot.PublicData.PubKey),
		DocID:        m.ctx.DocID,
	}
	if f.Snapshot.PublicData.ParentSnapshotID == "" {
		// A genesis snapshot's chain is reconstructible locally: it has no
		// ancestor ciphertext and its proof is ChainHash(nil, GenesisProof).
		params.ParentSnapshotCiphertext = nil
		params.GrandParentSnapshotProof = cryptutil.GenesisProof
	} else {
		// A non-genesis snapshot arriving in the initial `document` frame
		// has ancestors this connection never saw; the server already
		// validated its chain before ever storing it, so trust it here.
		params.SkipChainCheck = true
	}
	plaintext, err := codec.VerifyAndDecryptSnapshot(f.Snapshot, params)
	if err != nil {
		m.ctx.DocumentDecryptionState = DocumentDecryptionFailed
		m.state = StateFailed
		m.logger.Errorw("snapshot verify/decrypt failed", "error", err)
		return
	}

	if err := m.host.ApplySnapshot(ctx, plaintext); err != nil {
		m.ctx.DocumentDecryptionState = DocumentDecryptionFailed
		m.state = StateFailed
		m.logger.Errorw("applySnapshot failed", "error", err)
		return
	}

	m.activeKey = key
	m.activeCiphertext, _ = cryptutil.DecodeB64(f.Snapshot.Ciphertext)
	m.activeProof, _ = cryptutil.DecodeB64(f.Snapshot.PublicData.ParentSnapshotProof)
	m.ctx.ActiveSnapshotID = f.Snapshot.PublicData.SnapshotID
	m.ctx.HasActiveSnapshotID = true
	m.ctx.UpdatesLocalClock = -1
	m.ctx.PerAuthorUpdateClocks = make(map[string]int64)

	for _, upd := range f.Updates {
		ignored, err := m.applyDocumentLoadUpdate(ctx, &upd)
		if err != nil {
			m.ctx.DocumentDecryptionState = DocumentDecryptionPartial
			m.state = StateFailed
			m.logger.Errorw("update verify/decrypt failed during document load", "error", err)
			return
		}
		_ = ignored
	}
	m.ctx.DocumentDecryptionState = DocumentDecryptionComplete
	m.tryFlushPendingChanges(ctx)
}

func (m *Machine) applyDocumentLoadUpdate(ctx context.Context, upd *messages.Update) (ignored bool, err error) {
	stored, ok := m.ctx.PerAuthorUpdateClocks[upd.PublicData.PubKey]
	if !ok {
		stored = -1
	}
	result, err := codec.VerifyAndDecryptUpdate(upd, codec.VerifyAndDecryptUpdateParams{
		Key:                     m.activeKey,
		AuthorPubKey:            mustDecodePubKey(upd.PublicData.PubKey),
		CurrentActiveSnapshotID: m.ctx.ActiveSnapshotID,
		CurrentClock:            stored,
	})
	if err != nil {
		return false, err
	}
	if result.Ignored {
		return true, nil
	}
	if err := m.applyUpdatePlaintext(ctx, result.Content); err != nil {
		return false, err
	}
	m.ctx.PerAuthorUpdateClocks[upd.PublicData.PubKey] = result.Clock
	return false, nil
}

func (m *Machine) handleIncomingSnapshot(ctx context.Context, snap *messages.Snapshot) {
	key, err := m.host.GetSnapshotKey(ctx, snap.PublicData)
	if err != nil {
		m.state = StateFailed
		m.logger.Errorw("getSnapshotKey failed for incoming snapshot", "error", err)
		return
	}
	plaintext, err := codec.VerifyAndDecryptSnapshot(snap, codec.VerifyAndDecryptSnapshotParams{
		Key:                      key,
		AuthorPubKey:             mustDecodePubKey(snap.PublicData.PubKey),
		DocID:                    m.ctx.DocID,
		ParentSnapshotCiphertext: m.activeCiphertext,
		GrandParentSnapshotProof: m.activeProof,
		ObservedUpdateClocks:     m.ctx.PerAuthorUpdateClocks,
	})
	if err != nil {
		m.state = StateFailed
		m.logger.Errorw("incoming snapshot verify/decrypt failed", "error", err)
		return
	}
	if err := m.host.ApplySnapshot(ctx, plaintext); err != nil {
		m.state = StateFailed
		return
	}
	m.adoptSnapshot(ctx, snap)
}

// adoptSnapshot installs snap as the active snapshot and re-anchors any
// in-flight/pending updates against it.
func (m *Machine) adoptSnapshot(ctx context.Context, snap *messages.Snapshot) {
	m.activeCiphertext, _ = cryptutil.DecodeB64(snap.Ciphertext)
	m.activeProof, _ = cryptutil.DecodeB64(snap.PublicData.ParentSnapshotProof)
	m.ctx.ActiveSnapshotID = snap.PublicData.SnapshotID
	m.ctx.HasActiveSnapshotID = true
	m.ctx.HasLatestServerVersion = false
	m.ctx.PerAuthorUpdateClocks = make(map[string]int64)
	m.ctx.UpdatesLocalClock = -1

	reanchored := make([]PendingChange, 0, len(m.ctx.UpdatesInFlight)+len(m.ctx.PendingChangesQueue))
	for _, u := range m.ctx.UpdatesInFlight {
		reanchored = append(reanchored, PendingChange{Data: u.Plaintext})
	}
	reanchored = append(reanchored, m.ctx.PendingChangesQueue...)
	m.ctx.UpdatesInFlight = nil
	m.ctx.PendingChangesQueue = reanchored
	m.tryFlushPendingChanges(ctx)
}

// tryFlushPendingChanges bundles the pending-changes queue into a single
// update and sends it, unless a snapshot is currently being created or
// there is no active snapshot to anchor against yet.
func (m *Machine) tryFlushPendingChanges(ctx context.Context) {
	if m.ctx.SnapshotInFlight != nil {
		return
	}
	if !m.ctx.HasActiveSnapshotID {
		return
	}
	if len(m.ctx.PendingChangesQueue) == 0 {
		return
	}

	changeBytes := make([][]byte, 0, len(m.ctx.PendingChangesQueue))
	for _, pc := range m.ctx.PendingChangesQueue {
		changeBytes = append(changeBytes, pc.Data)
	}
	plaintext, err := m.host.SerializeChanges(ctx, changeBytes)
	if err != nil {
		m.logger.Errorw("serializeChanges failed", "error", err)
		return
	}

	key, err := m.host.GetSnapshotKey(ctx, messages.SnapshotPublicData{SnapshotID: m.ctx.ActiveSnapshotID, DocID: m.ctx.DocID})
	if err != nil {
		m.logger.Errorw("getSnapshotKey failed for outgoing update", "error", err)
		return
	}

	clock := m.ctx.UpdatesLocalClock + 1
	upd, err := codec.CreateUpdate(plaintext, messages.UpdatePublicData{
		RefSnapshotID: m.ctx.ActiveSnapshotID,
		DocID:         m.ctx.DocID,
		PubKey:        m.pubKeyString(),
	}, key, m.cfg.SignatureKeyPair, clock)
	if err != nil {
		m.logger.Errorw("createUpdate failed", "error", err)
		return
	}

	m.ctx.UpdatesLocalClock = clock
	m.ctx.PendingChangesQueue = nil
	m.ctx.UpdatesInFlight = append(m.ctx.UpdatesInFlight, OutgoingUpdate{Envelope: upd, Plaintext: plaintext})
	m.sendFrame(ctx, upd)
}

// beginSnapshotCreation triggers producing a new snapshot: the client is
// the initial author of a brand-new document, the host explicitly asked for
// one, or a prior snapshot-save-failed forced a retry.
func (m *Machine) beginSnapshotCreation(ctx context.Context) {
	if m.ctx.SnapshotInFlight != nil {
		return
	}
	data, err := m.host.GetNewSnapshotData(ctx)
	if err != nil {
		m.logger.Errorw("getNewSnapshotData failed", "error", err)
		return
	}

	publicData := data.PublicData
	publicData.SnapshotID = data.ID
	publicData.DocID = m.ctx.DocID
	publicData.PubKey = m.pubKeyString()

	var parentCiphertext, grandParentProof []byte
	if m.ctx.HasActiveSnapshotID {
		publicData.ParentSnapshotID = m.ctx.ActiveSnapshotID
		publicData.ParentSnapshotUpdateClocks = cloneClocks(m.ctx.PerAuthorUpdateClocks)
		parentCiphertext = m.activeCiphertext
		grandParentProof = m.activeProof
	} else {
		publicData.ParentSnapshotID = ""
		publicData.ParentSnapshotUpdateClocks = map[string]int64{}
		parentCiphertext = nil
		grandParentProof = cryptutil.GenesisProof
	}

	snap, err := codec.CreateSnapshot(data.Data, publicData, data.Key, m.cfg.SignatureKeyPair, parentCiphertext, grandParentProof)
	if err != nil {
		m.logger.Errorw("createSnapshot failed", "error", err)
		return
	}

	m.ctx.SnapshotInFlight = snap
	m.snapshotInFlightKey = data.Key
	m.sendFrame(ctx, snap)
}

func cloneClocks(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *Machine) handleSnapshotSaved(ctx context.Context, f *messages.SnapshotSaved) {
	if m.ctx.SnapshotInFlight == nil || m.ctx.SnapshotInFlight.PublicData.SnapshotID != f.SnapshotID {
		m.logger.Errorw("snapshot-saved ack does not match in-flight snapshot", "snapshotId", f.SnapshotID)
		return
	}
	snap := m.ctx.SnapshotInFlight
	m.activeKey = m.snapshotInFlightKey
	m.activeCiphertext, _ = cryptutil.DecodeB64(snap.Ciphertext)
	m.activeProof, _ = cryptutil.DecodeB64(snap.PublicData.ParentSnapshotProof)
	m.ctx.ActiveSnapshotID = f.SnapshotID
	m.ctx.HasActiveSnapshotID = true
	m.ctx.SnapshotInFlight = nil
	m.snapshotInFlightKey = nil
	m.ctx.PerAuthorUpdateClocks = make(map[string]int64)
	m.ctx.UpdatesLocalClock = -1
	m.tryFlushPendingChanges(ctx)
}

func (m *Machine) handleSnapshotSaveFailed(ctx context.Context, f *messages.SnapshotSaveFailed) {
	m.ctx.SnapshotInFlight = nil
	m.snapshotInFlightKey = nil
	m.ctx.PendingChangesQueue = nil

	if f.Snapshot != nil {
		m.handleIncomingSnapshot(ctx, f.Snapshot)
		if m.state == StateFailed {
			return
		}
	}
	if f.Updates != nil {
		for i := range f.Updates {
			if _, err := m.applyDocumentLoadUpdate(ctx, &f.Updates[i]); err != nil {
				m.logger.Errorw("failed applying catch-up update from snapshot-save-failed", "error", err)
				return
			}
		}
	}
	m.beginSnapshotCreation(ctx)
}

func (m *Machine) handleUpdateSaved(ctx context.Context, f *messages.UpdateSaved) {
	for i, u := range m.ctx.UpdatesInFlight {
		if u.Envelope.PublicData.Clock == f.Clock {
			m.ctx.UpdatesInFlight = append(m.ctx.UpdatesInFlight[:i], m.ctx.UpdatesInFlight[i+1:]...)
			break
		}
	}
	m.ctx.LatestServerVersion = f.ServerVersion
	m.ctx.HasLatestServerVersion = true
}

func (m *Machine) handleUpdateSaveFailed(ctx context.Context, f *messages.UpdateSaveFailed) {
	for _, u := range m.ctx.UpdatesInFlight {
		if u.Envelope.PublicData.Clock == f.Clock {
			m.sendFrame(ctx, u.Envelope)
			return
		}
	}
	m.logger.Errorw("update-save-failed for an update no longer in flight", "clock", f.Clock)
}

func (m *Machine) handleEphemeralMessage(ctx context.Context, msg *messages.EphemeralMessage) {
	key, err := m.host.GetEphemeralMessageKey(ctx)
	if err != nil {
		m.ctx.ReceivingEphemeralErrors.Push(err)
		return
	}
	session, err := m.ctx.EphemeralSession.Get()
	if err != nil {
		m.ctx.ReceivingEphemeralErrors.Push(err)
		return
	}

	valid, err := m.host.IsValidClient(ctx, msg.PublicData.PubKey)
	if err != nil || !valid {
		m.ctx.ReceivingEphemeralErrors.Push(secerr.New(secerr.CodeEphemeralInvalidClient, msg.PublicData.PubKey))
		return
	}

	action, err := codec.VerifyAndDecryptEphemeralMessage(msg, codec.VerifyAndDecryptEphemeralMessageParams{
		Key:                key,
		AuthorPubKey:       mustDecodePubKey(msg.PublicData.PubKey),
		DocID:              m.ctx.DocID,
		Session:            session,
		SigningKey:         m.cfg.SignatureKeyPair,
		OutgoingKey:        key,
		OutgoingPublicData: messages.EphemeralPublicData{DocID: m.ctx.DocID, PubKey: m.pubKeyString()},
	})
	if action.Dropped {
		m.ctx.ReceivingEphemeralErrors.Push(secerr.New(secerr.CodeEphemeralDocIDMismatch, msg.PublicData.DocID))
		return
	}
	if err != nil {
		m.ctx.ReceivingEphemeralErrors.Push(err)
	}
	if action.ProofToSend != nil {
		m.sendFrame(ctx, action.ProofToSend)
	}
	if action.Content != nil {
		if err := m.host.ApplyEphemeralMessage(ctx, action.Content, msg.PublicData.PubKey); err != nil {
			m.ctx.ReceivingEphemeralErrors.Push(err)
		}
	}
}

func (m *Machine) handleIncomingUpdate(ctx context.Context, upd *messages.Update) {
	stored, ok := m.ctx.PerAuthorUpdateClocks[upd.PublicData.PubKey]
	if !ok {
		stored = -1
	}
	result, err := codec.VerifyAndDecryptUpdate(upd, codec.VerifyAndDecryptUpdateParams{
		Key:                          m.activeKey,
		AuthorPubKey:                 mustDecodePubKey(upd.PublicData.PubKey),
		CurrentActiveSnapshotID:      m.ctx.ActiveSnapshotID,
		CurrentClock:                 stored,
		SkipIfUpdateAuthoredByClient: true,
		CurrentClientPubKey:          m.pubKeyString(),
	})
	if err != nil {
		m.logger.Errorw("incoming update rejected", "error", err, "code", codeOf(err))
		return
	}
	if result.Ignored {
		return
	}
	if err := m.applyUpdatePlaintext(ctx, result.Content); err != nil {
		m.logger.Errorw("applyChanges failed for incoming update", "error", err)
		return
	}
	m.ctx.PerAuthorUpdateClocks[upd.PublicData.PubKey] = result.Clock
	if upd.ServerData != nil {
		m.ctx.LatestServerVersion = upd.ServerData.Version
		m.ctx.HasLatestServerVersion = true
	}
}

func codeOf(err error) secerr.Code {
	if se, ok := err.(*secerr.Error); ok {
		return se.Code
	}
	return ""
}

func mustDecodePubKey(s string) ed25519.PublicKey {
	b, err := cryptutil.DecodeB64(s)
	if err != nil {
		return nil
	}
	return ed25519.PublicKey(b)
}
