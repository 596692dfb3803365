// Package cid implements content identifiers: deterministic SHA-256 digests
// of byte payloads with a canonical text encoding.
//
// A ContentID is the unit of both deduplication (identical payloads share a
// ContentID) and causal linking (events reference their parents by ContentID).
// Two nodes that compute the same ContentID for an event are guaranteed to
// hold byte-identical canonical content, which is what allows replicas to
// verify consistency by comparing identifiers alone.
package cid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

// prefix versions the canonical text encoding. A future hash change would
// bump this and keep the old parser accepting both.
const prefix = "c1-"

// encodedLen is the length of the canonical string form: prefix + hex digest.
const encodedLen = len(prefix) + sha256.Size*2

// ErrMalformedCid is returned when a string cannot be parsed as a ContentID.
var ErrMalformedCid = errors.CidError("malformed content identifier").Build()

// ContentID is a content-addressed identifier: the SHA-256 digest of a byte
// payload. The zero value is not a valid identifier of any content and is
// used to mean "absent".
type ContentID struct {
	digest [sha256.Size]byte
}

// FromContent computes the ContentID of a byte payload. Pure: no randomness,
// no clock, no machine state.
func FromContent(content []byte) ContentID {
	return ContentID{digest: sha256.Sum256(content)}
}

// Parse decodes the canonical string form produced by String. It fails with
// ErrMalformedCid on wrong prefix, wrong length or non-hex characters.
func Parse(s string) (ContentID, error) {
	if len(s) != encodedLen || !strings.HasPrefix(s, prefix) {
		return ContentID{}, ErrMalformedCid.WithContext("input", s)
	}
	raw, err := hex.DecodeString(s[len(prefix):])
	if err != nil {
		return ContentID{}, ErrMalformedCid.WithContext("input", s)
	}
	var id ContentID
	copy(id.digest[:], raw)
	return id, nil
}

// String returns the canonical text form, e.g. "c1-9f86d08...".
func (c ContentID) String() string {
	return prefix + hex.EncodeToString(c.digest[:])
}

// Bytes returns a copy of the raw digest.
func (c ContentID) Bytes() []byte {
	out := make([]byte, sha256.Size)
	copy(out, c.digest[:])
	return out
}

// IsZero reports whether this is the zero (absent) identifier.
func (c ContentID) IsZero() bool {
	return c.digest == [sha256.Size]byte{}
}

// Equal reports byte equality of the underlying digests.
func (c ContentID) Equal(other ContentID) bool {
	return c.digest == other.digest
}

// Compare orders two identifiers lexicographically by digest. Used only for
// stable ordering of parent lists; the order has no semantic meaning.
func (c ContentID) Compare(other ContentID) int {
	return bytes.Compare(c.digest[:], other.digest[:])
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (c ContentID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
