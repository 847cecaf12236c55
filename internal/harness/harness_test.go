package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestShippedScenariosPass runs every scenario in testdata/scenarios
// and requires all expect clauses and assertions to hold.
func TestShippedScenariosPass(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			t.Parallel()

			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

// TestGoldenTraces pins byte-stable traces for deterministic scenarios.
// Fanout steps appear as summary events, so even the concurrent
// retry-storm scenario has a stable trace.
func TestGoldenTraces(t *testing.T) {
	for _, name := range []string{"retry-storm-adjust", "adjust-then-replay"} {
		name := name
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestRunFailsExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "expect-mismatch",
		Description: "expect clause that cannot hold",
		Setup: []SetupStep{
			{Create: SetupAccount, Args: map[string]any{
				"id": "acct-1", "customer_id": "c", "program_id": "p", "points": 100,
			}},
		},
		Flow: []FlowStep{
			{
				Op:   OpAdjust,
				Args: map[string]any{"account_id": "acct-1", "delta": 5, "reason": "r"},
				Key:  "k1",
				// The call will commit, so expecting a rejection fails.
				Expect: &ExpectClause{Committed: 0, Rejected: 1},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.NotEmpty(t, result.Errors)
}

func TestRunFailsStateAssertionMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "state-mismatch",
		Description: "final_state assertion that cannot hold",
		Setup: []SetupStep{
			{Create: SetupAccount, Args: map[string]any{
				"id": "acct-1", "customer_id": "c", "program_id": "p", "points": 100,
			}},
		},
		Flow: []FlowStep{
			{
				Op:   OpAdjust,
				Args: map[string]any{"account_id": "acct-1", "delta": 5, "reason": "r"},
				Key:  "k1",
			},
		},
		Assertions: []Assertion{
			{
				Type:   AssertFinalState,
				Table:  "customer_loyalty",
				Where:  map[string]any{"id": "acct-1"},
				Expect: map[string]any{"current_points": 999},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
}

func TestRunErrorsOnMissingArg(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing-arg",
		Description: "flow step without required args",
		Flow: []FlowStep{
			{
				Op:   OpAdjust,
				Args: map[string]any{"delta": 5},
				Key:  "k1",
			},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_id")
}
