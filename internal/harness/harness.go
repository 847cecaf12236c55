package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/eduardojeem/Mipos-sub025/internal/loyalty"
	"github.com/eduardojeem/Mipos-sub025/internal/store"
	"github.com/eduardojeem/Mipos-sub025/internal/testutil"
)

// Harness executes a scenario against a fresh service instance.
type Harness struct {
	store  *store.Store
	svc    *loyalty.Service
	logger *slog.Logger
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and ID sequence, so repeated runs produce identical traces.
// Run returns an error only for scenario or infrastructure problems;
// expect-clause and assertion failures are recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	ids := testutil.NewSequenceIDGenerator("gen")

	svc := loyalty.NewService(st,
		loyalty.WithClock(clock.Now),
		loyalty.WithIDGenerator(ids),
		loyalty.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	h := &Harness{
		store:  st,
		svc:    svc,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []SetupStep) error {
	for i, step := range setup {
		var err error
		switch step.Create {
		case SetupAccount:
			err = h.seedAccount(ctx, step.Args)
		case SetupReward:
			err = h.seedReward(ctx, step.Args)
		case SetupSession:
			err = h.seedSession(ctx, step.Args)
		default:
			err = fmt.Errorf("unknown entity kind %q", step.Create)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Create, err)
		}
	}
	return nil
}

func (h *Harness) seedAccount(ctx context.Context, args map[string]any) error {
	id, err := argString(args, "id")
	if err != nil {
		return err
	}
	customerID, err := argString(args, "customer_id")
	if err != nil {
		return err
	}
	programID, err := argString(args, "program_id")
	if err != nil {
		return err
	}
	points := optInt(args, "points", 0)

	return h.store.CreateLoyaltyAccount(ctx, store.LoyaltyAccount{
		ID:                id,
		CustomerID:        customerID,
		ProgramID:         programID,
		CurrentPoints:     points,
		TotalPointsEarned: points,
	})
}

func (h *Harness) seedReward(ctx context.Context, args map[string]any) error {
	id, err := argString(args, "id")
	if err != nil {
		return err
	}
	programID, err := argString(args, "program_id")
	if err != nil {
		return err
	}
	name, err := argString(args, "name")
	if err != nil {
		return err
	}
	cost, err := argInt(args, "points_cost")
	if err != nil {
		return err
	}
	stock, err := argInt(args, "max_redemptions")
	if err != nil {
		return err
	}

	return h.store.UpsertReward(ctx, store.Reward{
		ID:             id,
		ProgramID:      programID,
		Name:           name,
		PointsCost:     cost,
		MaxRedemptions: stock,
		IsActive:       optBool(args, "active", true),
	})
}

func (h *Harness) seedSession(ctx context.Context, args map[string]any) error {
	id, err := argString(args, "id")
	if err != nil {
		return err
	}
	openedBy, err := argString(args, "opened_by")
	if err != nil {
		return err
	}

	_, err = h.svc.OpenCashSession(ctx, id, openedBy, optInt(args, "opening_amount", 0))
	return err
}

// callOutcome is one call's classified result.
type callOutcome struct {
	outcome string
	code    string
	result  map[string]any
	err     error // infrastructure error, nil for classified outcomes
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		n := step.Concurrency
		if n < 1 {
			n = 1
		}

		keys := make([]string, n)
		for j := range keys {
			if step.KeyPrefix != "" {
				keys[j] = fmt.Sprintf("%s-%d", step.KeyPrefix, j+1)
			} else {
				keys[j] = step.Key
			}
		}

		outcomes := make([]callOutcome, n)
		if n == 1 {
			outcomes[0] = h.call(ctx, step, keys[0])
		} else {
			var wg sync.WaitGroup
			for j := 0; j < n; j++ {
				wg.Add(1)
				go func(j int) {
					defer wg.Done()
					outcomes[j] = h.call(ctx, step, keys[j])
				}(j)
			}
			wg.Wait()
		}

		tally := struct {
			committed, replayed, rejected int
			codes                         map[string]bool
		}{codes: make(map[string]bool)}

		for _, oc := range outcomes {
			if oc.err != nil {
				return fmt.Errorf("step %d (%s): %w", i, step.Op, oc.err)
			}
			switch oc.outcome {
			case OutcomeCommitted:
				tally.committed++
			case OutcomeReplayed:
				tally.replayed++
			case OutcomeRejected:
				tally.rejected++
				tally.codes[oc.code] = true
			}
		}

		if n == 1 {
			result.Trace = append(result.Trace, TraceEvent{
				Type:    EventCall,
				Op:      step.Op,
				Key:     keys[0],
				Outcome: outcomes[0].outcome,
				Code:    outcomes[0].code,
				Result:  outcomes[0].result,
			})
		} else {
			codes := make([]string, 0, len(tally.codes))
			for c := range tally.codes {
				codes = append(codes, c)
			}
			sort.Strings(codes)
			result.Trace = append(result.Trace, TraceEvent{
				Type:        EventFanout,
				Op:          step.Op,
				Concurrency: n,
				Committed:   tally.committed,
				Replayed:    tally.replayed,
				Rejected:    tally.rejected,
				Codes:       codes,
			})
		}

		if exp := step.Expect; exp != nil {
			if tally.committed != exp.Committed {
				result.AddError(fmt.Sprintf("step %d (%s): expected %d committed, got %d", i, step.Op, exp.Committed, tally.committed))
			}
			if tally.replayed != exp.Replayed {
				result.AddError(fmt.Sprintf("step %d (%s): expected %d replayed, got %d", i, step.Op, exp.Replayed, tally.replayed))
			}
			if tally.rejected != exp.Rejected {
				result.AddError(fmt.Sprintf("step %d (%s): expected %d rejected, got %d", i, step.Op, exp.Rejected, tally.rejected))
			}
			if exp.Code != "" {
				for c := range tally.codes {
					if c != exp.Code {
						result.AddError(fmt.Sprintf("step %d (%s): expected rejection code %s, got %s", i, step.Op, exp.Code, c))
					}
				}
			}
		}
	}
	return nil
}

// call invokes one operation and classifies its outcome.
func (h *Harness) call(ctx context.Context, step FlowStep, key string) callOutcome {
	switch step.Op {
	case OpAdjust:
		accountID, err := argString(step.Args, "account_id")
		if err != nil {
			return callOutcome{err: err}
		}
		delta, err := argInt(step.Args, "delta")
		if err != nil {
			return callOutcome{err: err}
		}
		reason, err := argString(step.Args, "reason")
		if err != nil {
			return callOutcome{err: err}
		}

		res, err := h.svc.AdjustPoints(ctx, accountID, delta, reason, key)
		if err != nil {
			return classifyError(err)
		}
		return classifySuccess(res.Replayed, map[string]any{"new_balance": res.NewBalance})

	case OpRedeem:
		rewardID, err := argString(step.Args, "reward_id")
		if err != nil {
			return callOutcome{err: err}
		}
		accountID, err := argString(step.Args, "account_id")
		if err != nil {
			return callOutcome{err: err}
		}
		saleID := optString(step.Args, "sale_id", "")

		res, err := h.svc.RedeemReward(ctx, rewardID, accountID, saleID, key)
		if err != nil {
			return classifyError(err)
		}
		return classifySuccess(res.Replayed, map[string]any{"points_cost": res.PointsCost})

	case OpCloseSession:
		sessionID, err := argString(step.Args, "session_id")
		if err != nil {
			return callOutcome{err: err}
		}
		amount, err := argInt(step.Args, "closing_amount")
		if err != nil {
			return callOutcome{err: err}
		}

		res, err := h.svc.CloseCashSession(ctx, sessionID, amount, key)
		if err != nil {
			return classifyError(err)
		}
		return classifySuccess(res.Replayed, map[string]any{
			"status":         res.Status,
			"closing_amount": res.ClosingAmount,
		})

	default:
		return callOutcome{err: fmt.Errorf("unknown op %q", step.Op)}
	}
}

func classifySuccess(replayed bool, resultFields map[string]any) callOutcome {
	outcome := OutcomeCommitted
	if replayed {
		outcome = OutcomeReplayed
	}
	return callOutcome{outcome: outcome, result: resultFields}
}

func classifyError(err error) callOutcome {
	var rejection *loyalty.RejectionError
	if errors.As(err, &rejection) {
		return callOutcome{outcome: OutcomeRejected, code: string(rejection.Code)}
	}
	return callOutcome{err: err}
}

func argString(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing arg %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q: expected string, got %T", name, v)
	}
	return s, nil
}

func optString(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return def
}

func argInt(args map[string]any, name string) (int64, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("missing arg %q", name)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("arg %q: expected integer, got %T", name, v)
	}
}

func optInt(args map[string]any, name string, def int64) int64 {
	switch n := args[name].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return def
	}
}

func optBool(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}
