package loyalty

import "github.com/google/uuid"

// IDGenerator produces identifiers for ledger rows, grants, and
// sessions. The production implementation is UUIDv7Generator; tests use
// a fixed-sequence generator for deterministic output.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ledger and
// grant IDs sort by creation time, which keeps audit listings readable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
