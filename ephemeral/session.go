// Package ephemeral implements secsync's ephemeral-message session engine:
// per-peer session proofs, monotonic counter tracking and replay
// detection.
package ephemeral

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/secsync/secsync/internal/cryptutil"
)

// PeerSession is what a Session remembers about one authenticated peer.
type PeerSession struct {
	SessionID      string
	SessionCounter uint32
}

// Session is the per-client-process, per-document ephemeral session state.
// It owns the client's own session id and outgoing counter, and a table of
// validated peer sessions keyed by peer public key.
type Session struct {
	mu      sync.Mutex
	id      string
	counter uint32
	// validSessions maps a peer's pubKey to the last session it proved
	// ownership of, and the last counter value observed on that session.
	validSessions map[string]PeerSession
}

// New creates a fresh session with a random 24-byte id.
func New() (*Session, error) {
	id, err := cryptutil.GenerateID()
	if err != nil {
		return nil, errors.Wrap(err, "ephemeral: new session")
	}
	return &Session{
		id:            id,
		validSessions: make(map[string]PeerSession),
	}, nil
}

// ID is this process's own session id.
func (s *Session) ID() string {
	return s.id
}

// NextCounter increments and returns this session's outgoing counter. The
// first call returns 0, matching the wire format's zero-based counters.
func (s *Session) NextCounter() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counter
	s.counter++
	return c
}

// PeerState returns what is currently known about a peer, if any.
func (s *Session) PeerState(peerPubKey string) (PeerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.validSessions[peerPubKey]
	return p, ok
}

// RecordProof installs or replaces the validated session for a peer after a
// proof has verified successfully.
func (s *Session) RecordProof(peerPubKey, sessionID string, counter uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validSessions[peerPubKey] = PeerSession{SessionID: sessionID, SessionCounter: counter}
}

// CheckAndAdvance validates an incoming message's session id and counter
// against the recorded peer state, advancing the stored counter on success.
// ok=false with noSession=true means there is no (matching) validated
// session for this peer; ok=false with noSession=false means the counter is
// a replay (storedCounter >= counter).
func (s *Session) CheckAndAdvance(peerPubKey, sessionID string, counter uint32) (ok bool, noSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, known := s.validSessions[peerPubKey]
	if !known || p.SessionID != sessionID {
		return false, true
	}
	if p.SessionCounter >= counter {
		return false, false
	}
	s.validSessions[peerPubKey] = PeerSession{SessionID: sessionID, SessionCounter: counter}
	return true, false
}
