package harness

// Trace event types.
const (
	EventCall   = "call"
	EventFanout = "fanout"
)

// Call outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeReplayed  = "replayed"
	OutcomeRejected  = "rejected"
)

// TraceEvent records one flow step's observable outcome.
//
// A sequential step produces a "call" event with the call's own result.
// A concurrent step produces a single "fanout" event carrying outcome
// counts, because per-call results depend on scheduling.
type TraceEvent struct {
	Type string `json:"type"`
	Op   string `json:"op"`

	// Call fields.
	Key     string         `json:"key,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Code    string         `json:"code,omitempty"`
	Result  map[string]any `json:"result,omitempty"`

	// Fanout fields.
	Concurrency int      `json:"concurrency,omitempty"`
	Committed   int      `json:"committed,omitempty"`
	Replayed    int      `json:"replayed,omitempty"`
	Rejected    int      `json:"rejected,omitempty"`
	Codes       []string `json:"codes,omitempty"` // sorted distinct rejection codes
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists one event per flow step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expect and assertion failures. Empty when Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
