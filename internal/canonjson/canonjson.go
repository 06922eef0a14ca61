// Package canonjson produces the canonical JSON encoding spec.md §6
// requires for all hashing and signing: struct fields in source
// declaration order, no extraneous whitespace, omitted-when-absent
// optional fields. encoding/json already marshals struct fields in
// declaration order and honors `omitempty`, so canonical encoding is a
// thin, explicit wrapper rather than a bespoke serializer — callers
// should not reach for encoding/json directly on these types, since the
// exact byte sequence here is part of the consensus-critical hash and
// signature preimage.
package canonjson

import (
	"bytes"
	"encoding/json"
)

// Marshal returns the canonical encoding of v. v's struct fields must be
// declared in wire order and use `json:"name,omitempty"` tags for every
// optional field.
func Marshal(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// json.Marshal never emits insignificant whitespace, but Compact
	// guards against that invariant changing under us.
	var out bytes.Buffer
	if err := json.Compact(&out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
