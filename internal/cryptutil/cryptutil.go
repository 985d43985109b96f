// Package cryptutil wraps the low-level primitives secsync's message codecs
// build on: XChaCha20-Poly1305 AEAD, detached Ed25519 signatures, a
// BLAKE2b-256 hash chain for snapshot parent proofs, and random id
// generation. Nothing above this package touches a cipher or a curve
// directly.
package cryptutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyBytes is the size in bytes of an XChaCha20-Poly1305 key.
const KeyBytes = chacha20poly1305.KeySize

// NonceBytes is the size in bytes of an XChaCha20-Poly1305 nonce.
const NonceBytes = chacha20poly1305.NonceSizeX

var b64 = base64.RawURLEncoding

// EncodeB64 encodes bytes as unpadded base64url, the on-wire form for every
// binary field in secsync's envelopes.
func EncodeB64(b []byte) string { return b64.EncodeToString(b) }

// DecodeB64 decodes unpadded base64url.
func DecodeB64(s string) ([]byte, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "cryptutil: decode base64")
	}
	return b, nil
}

// GenerateID returns a fresh 24-byte random id, base64url encoded. Used for
// ephemeral session ids; snapshot ids are supplied by the host.
func GenerateID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "cryptutil: generate id")
	}
	return EncodeB64(buf), nil
}

// NewNonce returns a fresh random AEAD nonce.
func NewNonce() ([]byte, error) {
	buf := make([]byte, NonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "cryptutil: generate nonce")
	}
	return buf, nil
}

// Seal encrypts plaintext under key with the given nonce and associated
// data, returning the ciphertext (which includes the Poly1305 tag).
func Seal(key, nonce, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "cryptutil: init aead")
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// Open decrypts and authenticates ciphertext under key, nonce and ad.
func Open(key, nonce, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "cryptutil: init aead")
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, errors.Wrap(err, "cryptutil: aead open failed")
	}
	return pt, nil
}

// Sign produces a detached Ed25519 signature over msg.
func Sign(signingKey ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(signingKey, msg)
}

// Verify checks a detached Ed25519 signature.
func Verify(pubKey ed25519.PublicKey, msg, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pubKey, msg, sig)
}

// GenesisProof is the parentSnapshotProof value used by the first snapshot
// of a brand-new document, which has no real ancestor to commit to.
var GenesisProof = make([]byte, blake2b.Size256)

// ChainHash computes the BLAKE2b-256 hash-chain link
// hash(parentCiphertext || parentProof) used for parentSnapshotProof.
func ChainHash(parentCiphertext, parentProof []byte) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cryptutil: init blake2b")
	}
	h.Write(parentCiphertext)
	h.Write(parentProof)
	return h.Sum(nil), nil
}
