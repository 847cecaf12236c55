package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	args := map[string]any{
		"account_id": "acct-1",
		"delta":      int64(25),
	}

	h1, err := Fingerprint(args)
	require.NoError(t, err)

	h2, err := Fingerprint(args)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintIgnoresMapOrder(t *testing.T) {
	// Canonical serialization sorts keys, so construction order cannot
	// leak into the digest.
	h1, err := Fingerprint(map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	h2, err := Fingerprint(map[string]any{"c": 3, "b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestFingerprintChangesWithArgs(t *testing.T) {
	h1, err := Fingerprint(map[string]any{"delta": int64(25)})
	require.NoError(t, err)

	h2, err := Fingerprint(map[string]any{"delta": int64(26)})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestFingerprintNilArgs(t *testing.T) {
	h1, err := Fingerprint(nil)
	require.NoError(t, err)

	h2, err := Fingerprint(map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestFingerprintRejectsFloats(t *testing.T) {
	_, err := Fingerprint(map[string]any{"amount": 1.5})
	assert.Error(t, err)
}
