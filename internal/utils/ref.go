// Package utils provides small helpers shared across the service.
package utils

import (
	"encoding/base32"

	"github.com/google/uuid"
)

// crockford is the Crockford base32 alphabet: case-insensitive and free of
// the easily confused characters I, L, O and U.  Sixteen UUIDv7 bytes
// encode to 26 characters that sort lexicographically by creation time.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewRequestID returns a 128-bit time-ordered identifier for a queued
// request.  UUIDv7 embeds a millisecond timestamp in the high bits, so the
// canonical string form sorts by submission time.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than refusing the request.
		return uuid.NewString()
	}
	return id.String()
}

// NewBookingReference returns an externally quotable booking reference:
// "BK-" followed by a UUIDv7 rendered in Crockford base32.  References are
// globally unique and lexicographically sortable by creation time.
func NewBookingReference() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "BK-" + crockford.EncodeToString(id[:])
}
