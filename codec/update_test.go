package codec

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/secerr"
)

func TestUpdateRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)

	upd, err := CreateUpdate([]byte("change-1"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(pub),
	}, key, priv, 0)
	require.NoError(t, err)

	result, err := VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-1", CurrentClock: -1,
	})
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.Equal(t, "change-1", string(result.Content))
	assert.EqualValues(t, 0, result.Clock)
}

func TestUpdateRejectsWrongSnapshot(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)

	upd, err := CreateUpdate([]byte("change"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(pub),
	}, key, priv, 0)
	require.NoError(t, err)

	_, err = VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-2", CurrentClock: -1,
	})
	require.Error(t, err)
	assert.True(t, secerr.Is(err, secerr.CodeUpdateWrongSnapshot))
}

func TestUpdateRejectsOutOfSequenceClock(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)

	upd, err := CreateUpdate([]byte("change"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(pub),
	}, key, priv, 5)
	require.NoError(t, err)

	_, err = VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-1", CurrentClock: -1,
	})
	require.Error(t, err)
	assert.True(t, secerr.Is(err, secerr.CodeUpdateClockOutOfSequence))
}

func TestUpdateSkipsSelfEcho(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)
	myPubKey := cryptutil.EncodeB64(pub)

	upd, err := CreateUpdate([]byte("change"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: myPubKey,
	}, key, priv, 0)
	require.NoError(t, err)

	result, err := VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-1", CurrentClock: -1,
		SkipIfUpdateAuthoredByClient: true, CurrentClientPubKey: myPubKey,
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestUpdateSkipsWhenCurrentClockIsHigher(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)

	upd, err := CreateUpdate([]byte("change"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(pub),
	}, key, priv, 2)
	require.NoError(t, err)

	result, err := VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-1", CurrentClock: 2,
		SkipIfCurrentClockIsHigher: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestUpdateRejectsTamperedCiphertext(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key := make([]byte, cryptutil.KeyBytes)

	upd, err := CreateUpdate([]byte("change"), messages.UpdatePublicData{
		RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: cryptutil.EncodeB64(pub),
	}, key, priv, 0)
	require.NoError(t, err)
	upd.Ciphertext = cryptutil.EncodeB64([]byte("tampered-ciphertext-bytes"))

	_, err = VerifyAndDecryptUpdate(upd, VerifyAndDecryptUpdateParams{
		Key: key, AuthorPubKey: pub, CurrentActiveSnapshotID: "snap-1", CurrentClock: -1,
	})
	require.Error(t, err)
	assert.True(t, secerr.Is(err, secerr.CodeUpdateSignatureOrAEAD))
}
