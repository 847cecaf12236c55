package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint computes a stable SHA-256 hex digest of a payload's
// canonical JSON form.
//
// The idempotency guard stores the fingerprint of an operation's
// arguments on the record so a replayed key with different arguments
// can be rejected instead of silently returning an unrelated result.
func Fingerprint(args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	data, err := Marshal(args)
	if err != nil {
		return "", fmt.Errorf("fingerprint args: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
