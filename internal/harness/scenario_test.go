package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioValid(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, `
name: sample
description: A sample scenario.
setup:
  - create: account
    args: {id: a, customer_id: c, program_id: p, points: 10}
flow:
  - op: adjust
    args: {account_id: a, delta: 5, reason: r}
    key: k1
assertions:
  - type: row_count
    table: points_transactions
    count: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	require.Len(t, s.Setup, 1)
	assert.Equal(t, SetupAccount, s.Setup[0].Create)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, OpAdjust, s.Flow[0].Op)
	assert.Equal(t, "k1", s.Flow[0].Key)
}

func TestLoadScenarioRejectsUnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
flows:
  - op: adjust
`))
	require.Error(t, err)
}

func TestLoadScenarioRequiresKey(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
flow:
  - op: adjust
    args: {account_id: a, delta: 5, reason: r}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key or key_prefix")
}

func TestLoadScenarioRejectsBothKeys(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
flow:
  - op: adjust
    args: {account_id: a, delta: 5, reason: r}
    key: k
    key_prefix: p
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadScenarioRejectsUnknownOp(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
flow:
  - op: transfer
    args: {}
    key: k
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op")
}

func TestLoadScenarioRejectsUnknownSetupKind(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
setup:
  - create: warehouse
    args: {}
flow:
  - op: adjust
    args: {}
    key: k
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity kind")
}

func TestLoadScenarioRejectsUnknownAssertionType(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: sample
description: d
flow:
  - op: adjust
    args: {}
    key: k
assertions:
  - type: eventually
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadAllShippedScenarios(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		s, err := LoadScenario(path)
		require.NoError(t, err, "scenario %s", path)
		assert.NotEmpty(t, s.Name)
	}
}
