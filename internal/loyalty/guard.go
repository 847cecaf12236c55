package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduardojeem/Mipos-sub025/internal/payload"
	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// Effect is the side-effecting body of an operation. It must be free of
// partial side effects when it returns an error: either its conditional
// writes all commit, or none do.
type Effect func(ctx context.Context) (map[string]any, error)

// Guard makes any effectful operation safe to call multiple times with
// the same logical intent (e.g. a client retry after a timeout).
//
// The key is claimed with a unique-constraint insert before the effect
// runs; the store's uniqueness constraint is the race arbiter, so only
// one concurrent caller wins the claim. The winner executes the effect
// and persists its canonical result on the record; losers read the
// stored outcome back and return it without re-executing the effect.
type Guard struct {
	store        *store.Store
	logger       *slog.Logger
	now          func() time.Time
	pollInterval time.Duration
	pollAttempts int
}

// NewGuard creates a guard over the given store.
func NewGuard(st *store.Store, logger *slog.Logger, now func() time.Time) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{
		store:  st,
		logger: logger,
		now:    now,
		// A loser that finds the winner's record still PENDING waits
		// for it to settle. The winner holds no locks between claim and
		// commit, so settling is bounded by one effect execution.
		pollInterval: 20 * time.Millisecond,
		pollAttempts: 250,
	}
}

// RunOnce executes effect at most once for the given idempotency key.
//
// For N concurrent calls with the same key, the effect executes exactly
// once; all N calls observe the same result payload (or the same
// terminal rejection). replayed reports whether the result came from a
// stored record instead of this call's own effect execution.
//
// Failure handling:
//   - A RejectionError from the effect is terminal: it is persisted on
//     the record and replayed to every caller sharing the key.
//   - Any other effect error is treated as an infrastructure failure:
//     the claim is released and the call fails with a StoreError, so
//     the caller may retry with the same key.
//   - A replay whose arguments do not match the original attempt's
//     fingerprint is rejected with CodeKeyConflict.
func (g *Guard) RunOnce(ctx context.Context, key, operation string, args map[string]any, effect Effect) (result map[string]any, replayed bool, err error) {
	if key == "" {
		return nil, false, fmt.Errorf("run once: idempotency key is required")
	}

	requestHash, err := payload.Fingerprint(args)
	if err != nil {
		return nil, false, fmt.Errorf("run once: %w", err)
	}

	claimed, err := g.store.ClaimIdempotencyKey(ctx, key, operation, requestHash, g.now())
	if err != nil {
		return nil, false, &StoreError{Operation: operation, Err: err}
	}

	if !claimed {
		return g.replay(ctx, key, operation, requestHash)
	}

	result, effErr := effect(ctx)
	if effErr != nil {
		var rejection *RejectionError
		if errors.As(effErr, &rejection) {
			// Terminal rejection: persist so replays observe the same
			// outcome.
			if failErr := g.store.FailIdempotencyRecord(ctx, key, string(rejection.Code), rejection.Message); failErr != nil {
				return nil, false, &StoreError{Operation: operation, Err: failErr}
			}
			g.logger.Info("operation rejected",
				"operation", operation,
				"key", key,
				"code", rejection.Code,
			)
			return nil, false, rejection
		}

		// Infrastructure failure: release the claim so the caller can
		// retry with the same key.
		if relErr := g.store.ReleaseIdempotencyKey(ctx, key); relErr != nil {
			g.logger.Warn("failed to release idempotency key",
				"operation", operation,
				"key", key,
				"error", relErr,
			)
		}
		return nil, false, &StoreError{Operation: operation, Err: effErr}
	}

	resultJSON, err := payload.Marshal(result)
	if err != nil {
		// The effect committed but its result cannot be serialized.
		// Leave the record PENDING rather than release it: releasing
		// would allow a retry to execute the effect a second time.
		return nil, false, &StoreError{Operation: operation, Err: fmt.Errorf("marshal result: %w", err)}
	}

	if err := g.store.CommitIdempotencyResult(ctx, key, string(resultJSON)); err != nil {
		// Same invariant as above: the effect already ran, so the
		// claim must not be released.
		return nil, false, &StoreError{Operation: operation, Err: err}
	}

	g.logger.Info("operation committed",
		"operation", operation,
		"key", key,
	)
	return result, false, nil
}

// replay returns the stored outcome for a key that lost the claim race
// or belongs to a prior attempt. If the winner's record is still
// PENDING, the replay polls briefly for it to settle.
func (g *Guard) replay(ctx context.Context, key, operation, requestHash string) (map[string]any, bool, error) {
	for attempt := 0; attempt < g.pollAttempts; attempt++ {
		rec, err := g.store.GetIdempotencyRecord(ctx, key)
		if err != nil {
			// The record can vanish between the failed claim and this
			// read if the winner hit an infrastructure failure and
			// released the key. Surface as retryable.
			return nil, false, &StoreError{Operation: operation, Err: err}
		}

		if rec.RequestHash != requestHash {
			return nil, false, NewKeyConflictError(key, operation)
		}

		switch rec.Status {
		case store.IdempotencyCommitted:
			result, err := payload.Unmarshal(rec.Result)
			if err != nil {
				return nil, false, &StoreError{Operation: operation, Err: err}
			}
			g.logger.Info("operation replayed",
				"operation", operation,
				"key", key,
			)
			return result, true, nil

		case store.IdempotencyFailed:
			return nil, true, &RejectionError{
				Code:           RejectionCode(rec.ErrorCode),
				Message:        rec.ErrorMessage,
				IdempotencyKey: key,
			}

		case store.IdempotencyPending:
			select {
			case <-ctx.Done():
				return nil, false, &StoreError{Operation: operation, Err: ctx.Err()}
			case <-time.After(g.pollInterval):
			}

		default:
			return nil, false, &StoreError{
				Operation: operation,
				Err:       fmt.Errorf("unknown idempotency status %q for key %q", rec.Status, key),
			}
		}
	}

	return nil, false, &StoreError{
		Operation: operation,
		Err:       fmt.Errorf("pending effect for key %q did not settle", key),
	}
}
