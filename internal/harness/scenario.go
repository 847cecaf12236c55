package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one contention test: seeded state, a flow of
// operations (possibly concurrent), and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup seeds accounts, rewards, and cash sessions before the flow.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow is the sequence of operations to execute. Steps run in
	// order; within a step, calls may fan out concurrently.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and final database state.
	Assertions []Assertion `yaml:"assertions"`
}

// SetupStep seeds one row of initial state.
type SetupStep struct {
	// Create names the entity kind: "account", "reward", or "session".
	Create string `yaml:"create"`

	// Args carries the entity's fields.
	Args map[string]any `yaml:"args"`
}

// Setup entity kinds.
const (
	SetupAccount = "account"
	SetupReward  = "reward"
	SetupSession = "session"
)

// FlowStep is one operation in the flow, optionally fanned out across
// concurrent callers.
type FlowStep struct {
	// Op names the operation: "adjust", "redeem", or "close_session".
	Op string `yaml:"op"`

	// Args carries the operation arguments.
	Args map[string]any `yaml:"args"`

	// Key is the idempotency key. With Concurrency > 1 every call
	// shares this key, modeling a retry storm.
	Key string `yaml:"key,omitempty"`

	// KeyPrefix gives each concurrent call its own key
	// ("<prefix>-1" .. "<prefix>-N"), modeling independent callers
	// contending for the same rows. Exactly one of Key and KeyPrefix
	// must be set.
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// Concurrency is the fan-out width. Zero or one means a single
	// sequential call.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Expect validates the step's outcome counts. If nil the step's
	// outcome is recorded but not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Flow operation names.
const (
	OpAdjust       = "adjust"
	OpRedeem       = "redeem"
	OpCloseSession = "close_session"
)

// ExpectClause validates outcome counts for one flow step.
type ExpectClause struct {
	// Committed is the expected number of calls that executed the
	// effect themselves.
	Committed int `yaml:"committed"`

	// Replayed is the expected number of calls that returned a stored
	// result without executing the effect.
	Replayed int `yaml:"replayed,omitempty"`

	// Rejected is the expected number of calls that failed with a
	// terminal rejection.
	Rejected int `yaml:"rejected,omitempty"`

	// Code, if set, requires every rejection to carry this code.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates the trace or final database state.
type Assertion struct {
	// Type is one of "final_state", "row_count", or "trace_count".
	Type string `yaml:"type"`

	// Table names the table to query (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by exact column match (final_state, row_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect lists expected column values, subset match (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected row or event count (row_count, trace_count).
	Count int `yaml:"count,omitempty"`

	// Op filters trace events by operation (trace_count).
	Op string `yaml:"op,omitempty"`

	// Outcome filters trace events by outcome (trace_count). Empty
	// matches any outcome.
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertRowCount   = "row_count"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently passing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		switch step.Create {
		case SetupAccount, SetupReward, SetupSession:
		case "":
			return fmt.Errorf("setup[%d]: create is required", i)
		default:
			return fmt.Errorf("setup[%d]: unknown entity kind %q", i, step.Create)
		}
		if step.Args == nil {
			return fmt.Errorf("setup[%d]: args is required", i)
		}
	}

	for i, step := range s.Flow {
		switch step.Op {
		case OpAdjust, OpRedeem, OpCloseSession:
		case "":
			return fmt.Errorf("flow[%d]: op is required", i)
		default:
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required", i)
		}
		if step.Concurrency < 0 {
			return fmt.Errorf("flow[%d]: concurrency must be non-negative", i)
		}
		if step.Key == "" && step.KeyPrefix == "" {
			return fmt.Errorf("flow[%d]: key or key_prefix is required", i)
		}
		if step.Key != "" && step.KeyPrefix != "" {
			return fmt.Errorf("flow[%d]: key and key_prefix are mutually exclusive", i)
		}
		if step.Expect != nil {
			if step.Expect.Committed < 0 || step.Expect.Replayed < 0 || step.Expect.Rejected < 0 {
				return fmt.Errorf("flow[%d].expect: counts must be non-negative", i)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
