package messages

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/secsync/secsync/internal/canonjson"
)

// CanonicalBytes returns the canonical JSON encoding of publicData used as
// AEAD associated data and as the signed payload. AdditionalFields are
// merged directly into the top-level object so every implementation signs
// an identical flat structure regardless of how a host happens to store its
// extra fields.
func (d SnapshotPublicData) CanonicalBytes() ([]byte, error) {
	base, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "messages: marshal snapshot public data")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, errors.Wrap(err, "messages: unmarshal snapshot public data")
	}
	for k, v := range d.AdditionalFields {
		if _, reserved := m[k]; reserved {
			return nil, errors.Newf("messages: additional field %q collides with a reserved publicData key", k)
		}
		m[k] = v
	}
	return canonjson.Marshal(m)
}

// CanonicalBytes returns the canonical JSON encoding of an update's
// publicData.
func (d UpdatePublicData) CanonicalBytes() ([]byte, error) {
	return canonjson.Marshal(d)
}

// CanonicalBytes returns the canonical JSON encoding of an ephemeral
// message's publicData.
func (d EphemeralPublicData) CanonicalBytes() ([]byte, error) {
	return canonjson.Marshal(d)
}
