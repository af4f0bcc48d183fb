// Package coreapi defines the shared wire types of the Runtime Core:
// resource identifiers, IPC messages, results, stat projections, and
// the error taxonomy every service reports through.
package coreapi

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
)

// ID is a 64-bit resource or request identifier drawn from a
// cryptographic RNG. Zero is reserved to mean "absent".
type ID uint64

// NoID is the reserved zero value meaning "absent".
const NoID ID = 0

// NewID draws a fresh, non-zero ID from a CSPRNG, matching the
// original runtime's rand64() used for post and resource identifiers.
func NewID() ID {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("coreapi: failed to read random bytes: " + err.Error())
		}
		id := ID(binary.BigEndian.Uint64(buf[:]))
		if id != NoID {
			return id
		}
	}
}

// String renders the ID as a base-10 string, the form used in URIs
// and JSON payloads throughout the Router and Services.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a base-10 string into an ID. An empty or malformed
// string yields NoID and ok=false.
func ParseID(s string) (id ID, ok bool) {
	if s == "" {
		return NoID, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoID, false
	}
	return ID(v), true
}
