// Package payload provides deterministic serialization for operation
// payloads stored on idempotency records.
//
// Replays must observe byte-identical result payloads, and request
// fingerprints must be stable across processes, so payloads are encoded
// as canonical JSON: sorted keys, NFC-normalized strings, no HTML
// escaping, integers only. Floats and nulls are rejected because they
// have no canonical representation that survives a round trip through
// the store.
package payload
