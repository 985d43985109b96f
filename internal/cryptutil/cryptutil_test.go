package cryptutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, KeyBytes)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ciphertext, err := Seal(key, nonce, []byte("ad"), []byte("hello world"))
	require.NoError(t, err)

	plaintext, err := Open(key, nonce, []byte("ad"), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plaintext))
}

func TestOpenRejectsWrongAD(t *testing.T) {
	key := make([]byte, KeyBytes)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ciphertext, err := Seal(key, nonce, []byte("ad-a"), []byte("payload"))
	require.NoError(t, err)

	_, err = Open(key, nonce, []byte("ad-b"), ciphertext)
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sig := Sign(priv, []byte("message"))
	assert.True(t, Verify(pub, []byte("message"), sig))
	assert.False(t, Verify(pub, []byte("tampered"), sig))
}

func TestVerifyRejectsMalformedKey(t *testing.T) {
	assert.False(t, Verify(ed25519.PublicKey{0x01}, []byte("msg"), []byte("sig")))
}

func TestEncodeDecodeB64RoundTrip(t *testing.T) {
	raw := []byte{0, 1, 2, 255, 254}
	encoded := EncodeB64(raw)
	assert.NotContains(t, encoded, "=")

	decoded, err := DecodeB64(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestChainHashDeterministic(t *testing.T) {
	h1, err := ChainHash([]byte("cipher"), []byte("proof"))
	require.NoError(t, err)
	h2, err := ChainHash([]byte("cipher"), []byte("proof"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := ChainHash([]byte("other"), []byte("proof"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestGenerateIDUnique(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
