package codec

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/secsync/secsync/ephemeral"
	"github.com/secsync/secsync/internal/cryptutil"
	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/secerr"
)

// header sizes for the ephemeral plaintext layout:
// [messageType:1][sessionId:24][sessionCounter:4 big-endian][body:rest]
const (
	ephemeralSessionIDBytes = 24
	ephemeralHeaderBytes    = 1 + ephemeralSessionIDBytes + 4
)

// CreateEphemeralMessage assembles and encrypts one ephemeral message,
// advancing the session's outgoing counter.
func CreateEphemeralMessage(
	body []byte,
	msgType messages.EphemeralMessageType,
	session *ephemeral.Session,
	publicData messages.EphemeralPublicData,
	key []byte,
	signingKey ed25519.PrivateKey,
) (*messages.EphemeralMessage, error) {
	sessionIDRaw, err := cryptutil.DecodeB64(session.ID())
	if err != nil {
		return nil, err
	}
	counter := session.NextCounter()

	plaintext := make([]byte, 0, ephemeralHeaderBytes+len(body))
	plaintext = append(plaintext, byte(msgType))
	plaintext = append(plaintext, sessionIDRaw...)
	var counterBuf [4]byte
	binary.BigEndian.PutUint32(counterBuf[:], counter)
	plaintext = append(plaintext, counterBuf[:]...)
	plaintext = append(plaintext, body...)

	adBytes, err := publicData.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	adB64 := cryptutil.EncodeB64(adBytes)

	nonce, err := cryptutil.NewNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := cryptutil.Seal(key, nonce, []byte(adB64), plaintext)
	if err != nil {
		return nil, err
	}
	msg := append(append(append([]byte{}, nonce...), ciphertext...), []byte(adB64)...)
	sig := cryptutil.Sign(signingKey, msg)

	return &messages.EphemeralMessage{
		Type:       messages.TypeEphemeralMessage,
		PublicData: publicData,
		Nonce:      cryptutil.EncodeB64(nonce),
		Ciphertext: cryptutil.EncodeB64(ciphertext),
		Signature:  cryptutil.EncodeB64(sig),
	}, nil
}

// sessionProof computes Sign(signerKey, signerSessionID || recipientSessionID),
// the canonical session-binding proof exchanged during the handshake.
func sessionProof(signerKey ed25519.PrivateKey, signerSessionIDRaw, recipientSessionIDRaw []byte) []byte {
	msg := append(append([]byte{}, signerSessionIDRaw...), recipientSessionIDRaw...)
	return cryptutil.Sign(signerKey, msg)
}

func verifySessionProof(signerPubKey ed25519.PublicKey, signerSessionIDRaw, recipientSessionIDRaw, proof []byte) bool {
	msg := append(append([]byte{}, signerSessionIDRaw...), recipientSessionIDRaw...)
	return cryptutil.Verify(signerPubKey, msg, proof)
}

// EphemeralAction is the decoded outcome of an incoming ephemeral message.
type EphemeralAction struct {
	// Dropped is true when publicData.docId did not match: the message
	// is discarded without being applied. The client machine counts it by
	// recording a SECSYNC_ERROR_26 in its receiving-error buffer.
	Dropped bool
	// ProofToSend, if non-nil, must be sent back over the transport.
	ProofToSend *messages.EphemeralMessage
	// Content is set when a "message" type was accepted.
	Content []byte
}

// VerifyAndDecryptEphemeralMessageParams bundles the context needed to
// decode one incoming ephemeral message.
type VerifyAndDecryptEphemeralMessageParams struct {
	Key          []byte
	AuthorPubKey ed25519.PublicKey
	DocID        string
	Session      *ephemeral.Session
	SigningKey   ed25519.PrivateKey
	// OutgoingKey encrypts any proof this call emits in response; usually
	// the same as Key, kept distinct because getEphemeralMessageKey may
	// rotate independently of the key used to decrypt inbound traffic.
	OutgoingKey      []byte
	OutgoingPublicData messages.EphemeralPublicData
}

// VerifyAndDecryptEphemeralMessage implements the ephemeral session state
// machine: verifies the envelope, then dispatches on the decoded
// messageType.
func VerifyAndDecryptEphemeralMessage(msg *messages.EphemeralMessage, p VerifyAndDecryptEphemeralMessageParams) (EphemeralAction, error) {
	if msg.PublicData.DocID != p.DocID {
		return EphemeralAction{Dropped: true}, nil
	}

	nonce, err := cryptutil.DecodeB64(msg.Nonce)
	if err != nil {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralDecryptionFailed, err.Error())
	}
	ciphertext, err := cryptutil.DecodeB64(msg.Ciphertext)
	if err != nil {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralDecryptionFailed, err.Error())
	}
	sig, err := cryptutil.DecodeB64(msg.Signature)
	if err != nil {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralSignatureInvalid, err.Error())
	}

	adBytes, err := msg.PublicData.CanonicalBytes()
	if err != nil {
		return EphemeralAction{}, err
	}
	adB64 := cryptutil.EncodeB64(adBytes)

	sigMsg := append(append(append([]byte{}, nonce...), ciphertext...), []byte(adB64)...)
	if !cryptutil.Verify(p.AuthorPubKey, sigMsg, sig) {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralSignatureInvalid, "ephemeral message signature invalid")
	}

	plaintext, err := cryptutil.Open(p.Key, nonce, []byte(adB64), ciphertext)
	if err != nil {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralDecryptionFailed, err.Error())
	}
	if len(plaintext) < ephemeralHeaderBytes {
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralDecryptionFailed, "ephemeral plaintext shorter than header")
	}

	msgType := messages.EphemeralMessageType(plaintext[0])
	senderSessionIDRaw := plaintext[1 : 1+ephemeralSessionIDBytes]
	senderSessionID := cryptutil.EncodeB64(senderSessionIDRaw)
	counter := binary.BigEndian.Uint32(plaintext[1+ephemeralSessionIDBytes : ephemeralHeaderBytes])
	body := plaintext[ephemeralHeaderBytes:]

	mySessionIDRaw, err := cryptutil.DecodeB64(p.Session.ID())
	if err != nil {
		return EphemeralAction{}, err
	}

	switch msgType {
	case messages.EphemeralInitialize:
		proof, err := buildProof(p, senderSessionIDRaw, mySessionIDRaw, messages.EphemeralProofAndRequestProof)
		if err != nil {
			return EphemeralAction{}, err
		}
		return EphemeralAction{ProofToSend: proof}, nil

	case messages.EphemeralProof, messages.EphemeralProofAndRequestProof:
		if !verifySessionProof(p.AuthorPubKey, senderSessionIDRaw, mySessionIDRaw, body) {
			return EphemeralAction{}, secerr.New(secerr.CodeEphemeralSignatureInvalid, "ephemeral session proof invalid")
		}
		p.Session.RecordProof(string(p.AuthorPubKey), senderSessionID, counter)
		if msgType == messages.EphemeralProofAndRequestProof {
			proof, err := buildProof(p, senderSessionIDRaw, mySessionIDRaw, messages.EphemeralProof)
			if err != nil {
				return EphemeralAction{}, err
			}
			return EphemeralAction{ProofToSend: proof}, nil
		}
		return EphemeralAction{}, nil

	case messages.EphemeralContent:
		ok, noSession := p.Session.CheckAndAdvance(string(p.AuthorPubKey), senderSessionID, counter)
		if noSession {
			proof, perr := buildProof(p, senderSessionIDRaw, mySessionIDRaw, messages.EphemeralProofAndRequestProof)
			if perr != nil {
				return EphemeralAction{}, perr
			}
			return EphemeralAction{ProofToSend: proof}, secerr.New(secerr.CodeEphemeralNoValidSession, "no verified session for sender")
		}
		if !ok {
			return EphemeralAction{}, secerr.New(secerr.CodeEphemeralReplay, "ephemeral message counter is not strictly increasing")
		}
		return EphemeralAction{Content: body}, nil

	default:
		return EphemeralAction{}, secerr.New(secerr.CodeEphemeralUnknownType, "unknown ephemeral message type")
	}
}

func buildProof(p VerifyAndDecryptEphemeralMessageParams, senderSessionIDRaw, mySessionIDRaw []byte, replyType messages.EphemeralMessageType) (*messages.EphemeralMessage, error) {
	proof := sessionProof(p.SigningKey, mySessionIDRaw, senderSessionIDRaw)
	return CreateEphemeralMessage(proof, replyType, p.Session, p.OutgoingPublicData, p.OutgoingKey, p.SigningKey)
}
