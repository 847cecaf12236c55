package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/eduardojeem/Mipos-sub025/internal/payload"
)

// TraceSnapshot captures a scenario's trace for golden comparison.
// Serialization uses the canonical payload encoding so byte output is
// stable across runs.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// toCanonicalMap flattens the snapshot into the plain map/slice shape
// the canonical encoder accepts. Empty fields are omitted so call and
// fanout events only carry their own shape.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"op":   event.Op,
		}
		if event.Key != "" {
			eventMap["key"] = event.Key
		}
		if event.Outcome != "" {
			eventMap["outcome"] = event.Outcome
		}
		if event.Code != "" {
			eventMap["code"] = event.Code
		}
		if event.Result != nil {
			eventMap["result"] = event.Result
		}
		if event.Type == EventFanout {
			eventMap["concurrency"] = event.Concurrency
			eventMap["committed"] = event.Committed
			eventMap["replayed"] = event.Replayed
			eventMap["rejected"] = event.Rejected
			codes := make([]any, len(event.Codes))
			for j, c := range event.Codes {
				codes[j] = c
			}
			eventMap["codes"] = codes
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<scenario.Name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-produced result's trace against the
// named golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}

	traceJSON, err := payload.Marshal(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
