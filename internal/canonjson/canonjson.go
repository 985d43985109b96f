// Package canonjson produces a deterministic JSON encoding used as AEAD
// associated data and as the signed payload throughout secsync: object keys
// sorted lexicographically, no insignificant whitespace, and numbers
// restricted to integers (non-integer numbers are rejected rather than
// risking non-deterministic float formatting across implementations).
package canonjson

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
)

// Marshal canonicalizes v by round-tripping it through encoding/json into a
// generic tree and re-emitting it with sorted object keys and no whitespace.
//
// Floating point values are rejected: CRDT hosts attach arbitrary additional
// fields to publicData, and float formatting is not guaranteed identical
// across the language implementations this wire format must interoperate
// with, so floats never round-trip deterministically enough to sign over.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "canonjson: marshal")
	}
	var tree interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "canonjson: decode intermediate")
	}
	if err := rejectFloats(tree); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rejectFloats(v interface{}) error {
	switch t := v.(type) {
	case json.Number:
		if bytes.ContainsAny([]byte(t.String()), ".eE") {
			return errors.Newf("canonjson: non-integer number %q is not canonicalizable", t.String())
		}
	case map[string]interface{}:
		for _, vv := range t {
			if err := rejectFloats(vv); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, vv := range t {
			if err := rejectFloats(vv); err != nil {
				return err
			}
		}
	}
	return nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool, json.Number, string:
		b, err := json.Marshal(t)
		if err != nil {
			return errors.Wrap(err, "canonjson: encode scalar")
		}
		buf.Write(b)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return errors.Wrap(err, "canonjson: encode key")
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.Newf("canonjson: unsupported type %T", v)
	}
	return nil
}
