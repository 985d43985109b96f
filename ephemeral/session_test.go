package ephemeral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionHasUniqueID(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNextCounterStartsAtZeroAndIncrements(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.EqualValues(t, 0, s.NextCounter())
	assert.EqualValues(t, 1, s.NextCounter())
	assert.EqualValues(t, 2, s.NextCounter())
}

func TestCheckAndAdvanceWithoutSessionReportsNoSession(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	ok, noSession := s.CheckAndAdvance("peer-a", "session-1", 0)
	assert.False(t, ok)
	assert.True(t, noSession)
}

func TestCheckAndAdvanceAcceptsIncreasingCounters(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s.RecordProof("peer-a", "session-1", 0)

	ok, noSession := s.CheckAndAdvance("peer-a", "session-1", 1)
	assert.True(t, ok)
	assert.False(t, noSession)

	ok, noSession = s.CheckAndAdvance("peer-a", "session-1", 5)
	assert.True(t, ok)
	assert.False(t, noSession)
}

// TestCheckAndAdvanceRejectsReplay verifies that a replayed or stale
// counter on an otherwise-valid session is rejected, not silently ignored
// as a new session.
func TestCheckAndAdvanceRejectsReplay(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s.RecordProof("peer-a", "session-1", 0)
	ok, noSession := s.CheckAndAdvance("peer-a", "session-1", 3)
	require.True(t, ok)
	require.False(t, noSession)

	ok, noSession = s.CheckAndAdvance("peer-a", "session-1", 3)
	assert.False(t, ok)
	assert.False(t, noSession)

	ok, noSession = s.CheckAndAdvance("peer-a", "session-1", 1)
	assert.False(t, ok)
	assert.False(t, noSession)
}

func TestCheckAndAdvanceRejectsMismatchedSessionID(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s.RecordProof("peer-a", "session-1", 5)

	ok, noSession := s.CheckAndAdvance("peer-a", "session-2", 6)
	assert.False(t, ok)
	assert.True(t, noSession)
}

func TestPeerStateReflectsRecordProof(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	_, ok := s.PeerState("peer-a")
	assert.False(t, ok)

	s.RecordProof("peer-a", "session-1", 2)
	p, ok := s.PeerState("peer-a")
	require.True(t, ok)
	assert.Equal(t, "session-1", p.SessionID)
	assert.EqualValues(t, 2, p.SessionCounter)
}
