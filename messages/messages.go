// Package messages defines secsync's wire envelopes: the JSON shapes
// exchanged over the transport, with binary fields as unpadded base64url
// strings.
package messages

import "encoding/json"

// SnapshotPublicData is the publicData object of a Snapshot, canonicalized
// and used both as AEAD associated data and as the signed payload.
type SnapshotPublicData struct {
	SnapshotID                 string           `json:"snapshotId"`
	DocID                      string           `json:"docId"`
	PubKey                     string           `json:"pubKey"`
	ParentSnapshotID           string           `json:"parentSnapshotId"`
	ParentSnapshotProof        string           `json:"parentSnapshotProof"`
	ParentSnapshotUpdateClocks map[string]int64 `json:"parentSnapshotUpdateClocks"`
	// AdditionalFields carries arbitrary host-defined fields. It is
	// flattened into the JSON object at canonicalization time, never
	// nested under a sub-key, so every implementation signs the same
	// bytes regardless of how its host happens to store extra data.
	AdditionalFields map[string]interface{} `json:"-"`
}

// Snapshot is the full wire envelope for a snapshot.
type Snapshot struct {
	Type        string             `json:"type"`
	PublicData  SnapshotPublicData `json:"publicData"`
	Nonce       string             `json:"nonce"`
	Ciphertext  string             `json:"ciphertext"`
	Signature   string             `json:"signature"`
	ServerData  *SnapshotServerData `json:"serverData,omitempty"`
}

// SnapshotServerData is attached by the server on delivery.
type SnapshotServerData struct {
	LatestVersion int64 `json:"latestVersion"`
}

// UpdatePublicData is the publicData object of an Update.
type UpdatePublicData struct {
	RefSnapshotID string `json:"refSnapshotId"`
	DocID         string `json:"docId"`
	PubKey        string `json:"pubKey"`
	Clock         int64  `json:"clock"`
}

// Update is the full wire envelope for an update.
type Update struct {
	Type       string           `json:"type"`
	PublicData UpdatePublicData `json:"publicData"`
	Nonce      string           `json:"nonce"`
	Ciphertext string           `json:"ciphertext"`
	Signature  string           `json:"signature"`
	ServerData *UpdateServerData `json:"serverData,omitempty"`
}

// UpdateServerData is attached by the server on delivery/ack.
type UpdateServerData struct {
	Version int64 `json:"version"`
}

// EphemeralPublicData is the publicData object of an EphemeralMessage.
type EphemeralPublicData struct {
	DocID  string `json:"docId"`
	PubKey string `json:"pubKey"`
}

// EphemeralMessage is the full wire envelope for an ephemeral message.
type EphemeralMessage struct {
	Type       string              `json:"type"`
	PublicData EphemeralPublicData `json:"publicData"`
	Nonce      string              `json:"nonce"`
	Ciphertext string              `json:"ciphertext"`
	Signature  string              `json:"signature"`
}

// EphemeralMessageType is the one-byte plaintext header discriminator.
type EphemeralMessageType byte

const (
	EphemeralInitialize            EphemeralMessageType = 0
	EphemeralProof                 EphemeralMessageType = 1
	EphemeralProofAndRequestProof  EphemeralMessageType = 2
	EphemeralContent               EphemeralMessageType = 3
)

// Document is the server's initial catch-up frame sent on connect.
type Document struct {
	Type     string     `json:"type"`
	DocID    string     `json:"docId"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Updates  []Update   `json:"updates,omitempty"`
}

// SnapshotSaved acknowledges a snapshot to its author.
type SnapshotSaved struct {
	Type       string `json:"type"`
	SnapshotID string `json:"snapshotId"`
	DocID      string `json:"docId"`
}

// SnapshotSaveFailed rejects a snapshot, optionally attaching the catch-up
// payload the client needs to retry.
type SnapshotSaveFailed struct {
	Type     string    `json:"type"`
	DocID    string    `json:"docId"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Updates  []Update  `json:"updates,omitempty"`
}

// UpdateSaved acknowledges an update to its author.
type UpdateSaved struct {
	Type          string `json:"type"`
	DocID         string `json:"docId"`
	SnapshotID    string `json:"snapshotId"`
	Clock         int64  `json:"clock"`
	ServerVersion int64  `json:"serverVersion"`
}

// UpdateSaveFailed rejects an update.
type UpdateSaveFailed struct {
	Type       string `json:"type"`
	DocID      string `json:"docId"`
	SnapshotID string `json:"snapshotId"`
	Clock      int64  `json:"clock"`
}

// Terminal server signals.
type DocumentNotFound struct {
	Type  string `json:"type"`
	DocID string `json:"docId"`
}

type Unauthorized struct {
	Type  string `json:"type"`
	DocID string `json:"docId"`
}

type DocumentError struct {
	Type    string `json:"type"`
	DocID   string `json:"docId"`
	Message string `json:"message"`
}

// typeEnvelope is used only to sniff the `type` discriminator before
// deciding which concrete struct to unmarshal a frame into.
type typeEnvelope struct {
	Type string `json:"type"`
}

// SniffType returns the `type` discriminator of a raw incoming frame.
func SniffType(raw []byte) (string, error) {
	var te typeEnvelope
	if err := json.Unmarshal(raw, &te); err != nil {
		return "", err
	}
	return te.Type, nil
}

const (
	TypeDocument           = "document"
	TypeSnapshot            = "snapshot"
	TypeSnapshotSaved       = "snapshot-saved"
	TypeSnapshotSaveFailed  = "snapshot-save-failed"
	TypeUpdate              = "update"
	TypeUpdateSaved         = "update-saved"
	TypeUpdateSaveFailed    = "update-save-failed"
	TypeEphemeralMessage    = "ephemeral-message"
	TypeDocumentNotFound    = "document-not-found"
	TypeUnauthorized        = "unauthorized"
	TypeDocumentError       = "document-error"
)
