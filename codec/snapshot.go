// Package codec implements secsync's message codecs: creation and
// verification+decryption of Snapshot, Update and EphemeralMessage
// envelopes.
package codec

import (
	"crypto/ed25519"

	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/secerr"
)

// CreateSnapshot encrypts content under key and signs it with signingKey,
// computing parentSnapshotProof from the caller-supplied ancestor ciphertext
// and proof. publicData must already carry snapshotId, docId, pubKey,
// parentSnapshotId, parentSnapshotUpdateClocks and any host additional
// fields; ParentSnapshotProof is overwritten by this call.
func CreateSnapshot(
	content []byte,
	publicData messages.SnapshotPublicData,
	key []byte,
	signingKey ed25519.PrivateKey,
	parentSnapshotCiphertext []byte,
	grandParentSnapshotProof []byte,
) (*messages.Snapshot, error) {
	proof, err := cryptutil.ChainHash(parentSnapshotCiphertext, grandParentSnapshotProof)
	if err != nil {
		return nil, err
	}
	publicData.ParentSnapshotProof = cryptutil.EncodeB64(proof)

	adBytes, err := publicData.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	adB64 := cryptutil.EncodeB64(adBytes)

	nonce, err := cryptutil.NewNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := cryptutil.Seal(key, nonce, []byte(adB64), content)
	if err != nil {
		return nil, err
	}

	sig := signSnapshot(signingKey, nonce, ciphertext, adB64)

	return &messages.Snapshot{
		Type:       messages.TypeSnapshot,
		PublicData: publicData,
		Nonce:      cryptutil.EncodeB64(nonce),
		Ciphertext: cryptutil.EncodeB64(ciphertext),
		Signature:  cryptutil.EncodeB64(sig),
	}, nil
}

func signSnapshot(signingKey ed25519.PrivateKey, nonce, ciphertext []byte, adB64 string) []byte {
	msg := append(append(append([]byte{}, nonce...), ciphertext...), []byte(adB64)...)
	return cryptutil.Sign(signingKey, msg)
}

// VerifyAndDecryptSnapshotParams bundles the context VerifyAndDecryptSnapshot
// needs to check a snapshot against its ancestor and against the locally
// observed update clocks.
type VerifyAndDecryptSnapshotParams struct {
	Key                      []byte
	AuthorPubKey             ed25519.PublicKey
	DocID                    string
	ParentSnapshotCiphertext []byte
	GrandParentSnapshotProof []byte
	// ObservedUpdateClocks, if non-nil, are compared against the
	// snapshot's parentSnapshotUpdateClocks: every recorded clock must be
	// >= what the caller has already applied, or the snapshot silently
	// dropped updates.
	ObservedUpdateClocks map[string]int64
	// SkipChainCheck trusts the server's parentSnapshotProof instead of
	// recomputing and comparing it. The client needs this for a non-genesis
	// snapshot delivered in the initial `document` frame: at that point it
	// has no cached ancestor ciphertext/proof of its own to recompute the
	// chain from (the server already validated the chain before ever
	// storing this snapshot), so ParentSnapshotCiphertext/
	// GrandParentSnapshotProof are ignored when this is set.
	SkipChainCheck bool
}

// VerifyAndDecryptSnapshot verifies the signature, the parent-proof chain,
// the docId, and optionally the parentSnapshotUpdateClocks, then decrypts.
func VerifyAndDecryptSnapshot(snap *messages.Snapshot, p VerifyAndDecryptSnapshotParams) ([]byte, error) {
	nonce, err := cryptutil.DecodeB64(snap.Nonce)
	if err != nil {
		return nil, secerr.New(secerr.CodeSnapshotDecryptionFailed, err.Error())
	}
	ciphertext, err := cryptutil.DecodeB64(snap.Ciphertext)
	if err != nil {
		return nil, secerr.New(secerr.CodeSnapshotDecryptionFailed, err.Error())
	}
	sig, err := cryptutil.DecodeB64(snap.Signature)
	if err != nil {
		return nil, secerr.New(secerr.CodeSnapshotSignatureInvalid, err.Error())
	}

	adBytes, err := snap.PublicData.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	adB64 := cryptutil.EncodeB64(adBytes)

	msg := append(append(append([]byte{}, nonce...), ciphertext...), []byte(adB64)...)
	if !cryptutil.Verify(p.AuthorPubKey, msg, sig) {
		return nil, secerr.New(secerr.CodeSnapshotSignatureInvalid, "snapshot signature invalid")
	}

	if snap.PublicData.DocID != p.DocID {
		return nil, secerr.New(secerr.CodeSnapshotDocIDMismatch, "snapshot docId does not match")
	}

	if !p.SkipChainCheck {
		wantProof, err := cryptutil.ChainHash(p.ParentSnapshotCiphertext, p.GrandParentSnapshotProof)
		if err != nil {
			return nil, err
		}
		gotProof, err := cryptutil.DecodeB64(snap.PublicData.ParentSnapshotProof)
		if err != nil {
			return nil, secerr.New(secerr.CodeSnapshotParentProofMismatch, err.Error())
		}
		if !bytesEqual(wantProof, gotProof) {
			return nil, secerr.New(secerr.CodeSnapshotParentProofMismatch, "parentSnapshotProof does not match ancestor chain")
		}
	}

	if p.ObservedUpdateClocks != nil {
		for author, observed := range p.ObservedUpdateClocks {
			recorded, ok := snap.PublicData.ParentSnapshotUpdateClocks[author]
			if !ok || recorded < observed {
				return nil, secerr.New(secerr.CodeSnapshotMissedUpdates, "snapshot does not account for all observed updates for "+author)
			}
		}
	}

	plaintext, err := cryptutil.Open(p.Key, nonce, []byte(adB64), ciphertext)
	if err != nil {
		return nil, secerr.New(secerr.CodeSnapshotDecryptionFailed, err.Error())
	}
	return plaintext, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
