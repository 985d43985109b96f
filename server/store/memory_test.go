package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync/secsync/messages"
)

func TestGetDocumentCreatesWhenMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetDocument(ctx, "doc-1", false)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	state, err := m.GetDocument(ctx, "doc-1", true)
	require.NoError(t, err)
	assert.Nil(t, state.Snapshot)
	assert.Empty(t, state.Updates)
}

func TestSaveSnapshotAcceptsFirstSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}

	outcome, err := m.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)

	state, err := m.GetDocument(ctx, "doc-1", false)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", state.Snapshot.PublicData.SnapshotID)
}

// TestSaveSnapshotRejectsOutdatedParent covers the outdated-snapshot branch
// of §4.3: a snapshot whose parent isn't the current active one is rejected
// with the server's current snapshot and updates attached.
func TestSaveSnapshotRejectsOutdatedParent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", first)
	require.NoError(t, err)

	stale := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-stale", ParentSnapshotID: "not-snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	outcome, err := m.SaveSnapshot(ctx, "doc-1", stale)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	require.NotNil(t, outcome.CurrentSnapshot)
	assert.Equal(t, "snap-1", outcome.CurrentSnapshot.PublicData.SnapshotID)
}

// TestSaveSnapshotRejectsMissedUpdates verifies that a snapshot that
// doesn't account for updates the server already recorded for an author is
// rejected with those updates attached so the client can catch up and retry.
func TestSaveSnapshotRejectsMissedUpdates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", first)
	require.NoError(t, err)

	upd := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-1", PubKey: "author-a", Clock: 0}}
	updOutcome, err := m.SaveUpdate(ctx, "doc-1", upd)
	require.NoError(t, err)
	require.True(t, updOutcome.Accepted)

	second := &messages.Snapshot{PublicData: messages.SnapshotPublicData{
		SnapshotID: "snap-2", ParentSnapshotID: "snap-1",
		ParentSnapshotUpdateClocks: map[string]int64{"author-a": -1},
	}}
	outcome, err := m.SaveSnapshot(ctx, "doc-1", second)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	require.Len(t, outcome.MissingUpdates, 1)
	assert.Equal(t, "author-a", outcome.MissingUpdates[0].PublicData.PubKey)
}

func TestSaveUpdateRejectsWrongSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)

	upd := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-wrong", PubKey: "author-a", Clock: 0}}
	outcome, err := m.SaveUpdate(ctx, "doc-1", upd)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}

func TestSaveUpdateAssignsMonotonicVersions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		upd := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-1", PubKey: "author-a", Clock: i}}
		outcome, err := m.SaveUpdate(ctx, "doc-1", upd)
		require.NoError(t, err)
		require.True(t, outcome.Accepted)
		assert.Equal(t, i, outcome.Version)
	}
}

// TestSaveUpdateIdempotentReplay verifies that resubmitting the exact same
// (refSnapshotId, pubKey, clock) tuple is acked again rather than treated
// as an error.
func TestSaveUpdateIdempotentReplay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)

	upd := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-1", PubKey: "author-a", Clock: 0}}
	first, err := m.SaveUpdate(ctx, "doc-1", upd)
	require.NoError(t, err)
	require.True(t, first.Accepted)
	require.False(t, first.AlreadyApplied)

	replay := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-1", PubKey: "author-a", Clock: 0}}
	second, err := m.SaveUpdate(ctx, "doc-1", replay)
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.True(t, second.AlreadyApplied)
	assert.Equal(t, first.Version, second.Version)
}

func TestSaveUpdateRejectsOutOfSequenceClock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &messages.Snapshot{PublicData: messages.SnapshotPublicData{SnapshotID: "snap-1", ParentSnapshotUpdateClocks: map[string]int64{}}}
	_, err := m.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)

	upd := &messages.Update{PublicData: messages.UpdatePublicData{RefSnapshotID: "snap-1", PubKey: "author-a", Clock: 4}}
	outcome, err := m.SaveUpdate(ctx, "doc-1", upd)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}
