/*
Package txid defines the transaction identifier type shared by every
datahost component. spec.md §3 treats TXID as "a totally ordered value
(monotonic timestamp + nonce). Produced externally; the core treats it as an
opaque, comparable token." This package defines that token and, per
SPEC_FULL.md §6 open question 3, a convenience constructor for callers that
have no external source of TXIDs (e.g. a Raft log index).

Grounded on original_source/src/transaction.rs's `TransactionId{timestamp,
nonce}`.
*/
package txid

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is an opaque, totally ordered transaction identifier: nanoseconds
// since the Unix epoch plus a tie-breaking nonce.
type ID struct {
	Timestamp int64
	Nonce     uint32
}

// Less reports whether id sorts strictly before other, the total order
// spec.md §3/§5 requires ("TXID ... totally ordered").
func (id ID) Less(other ID) bool {
	if id.Timestamp != other.Timestamp {
		return id.Timestamp < other.Timestamp
	}
	return id.Nonce < other.Nonce
}

// Compare returns -1, 0, or 1 following the usual comparator convention.
func (id ID) Compare(other ID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	default:
		return 0
	}
}

// String renders the id as "<timestamp>-<nonce>", matching the original's
// Display impl.
func (id ID) String() string {
	return fmt.Sprintf("%d-%d", id.Timestamp, id.Nonce)
}

// New constructs a fresh ID from the given wall-clock nanosecond timestamp
// and a random nonce. Callers that have an external ordering source (a
// cluster's Raft log index, a coordinator's logical clock) should construct
// ID values directly instead; this constructor exists only for tests and
// single-process callers with no other source of truth.
func New(timestampNanos int64) ID {
	nonce := uuid.New()
	// fold the random UUID down to 32 bits of nonce; collisions only matter
	// within the same nanosecond, and a 32-bit nonce makes that negligible.
	n := uint32(nonce[0]) | uint32(nonce[1])<<8 | uint32(nonce[2])<<16 | uint32(nonce[3])<<24
	return ID{Timestamp: timestampNanos, Nonce: n}
}
