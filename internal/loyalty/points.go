package loyalty

import (
	"context"
	"fmt"
)

// OpAdjustPoints names the points adjustment operation on idempotency
// records and logs.
const OpAdjustPoints = "loyalty.adjust_points"

// AdjustResult is the outcome of a points adjustment.
type AdjustResult struct {
	// NewBalance is the account balance after the delta was applied.
	NewBalance int64

	// TransactionID identifies the appended audit ledger row.
	TransactionID string

	// Replayed reports whether this call returned a stored result
	// instead of executing the effect itself.
	Replayed bool
}

// AdjustPoints applies a signed point delta to a customer's loyalty
// balance with an audit ledger entry.
//
// delta may be positive or negative. A negative delta is verified
// against the balance as part of the same conditional update that
// applies it, never as a separate read-then-write, so concurrent
// adjusters for the same account serialize through the store's
// row-level atomic update and every accepted adjustment is reflected
// exactly once.
//
// Fails with CodeInsufficientPoints if the delta would drive the
// balance negative.
func (s *Service) AdjustPoints(ctx context.Context, accountID string, delta int64, reason, idempotencyKey string) (AdjustResult, error) {
	if accountID == "" {
		return AdjustResult{}, fmt.Errorf("adjust points: account id is required")
	}
	if reason == "" {
		return AdjustResult{}, fmt.Errorf("adjust points: reason is required")
	}

	args := map[string]any{
		"account_id": accountID,
		"delta":      delta,
		"reason":     reason,
	}

	result, replayed, err := s.guard.RunOnce(ctx, idempotencyKey, OpAdjustPoints, args, func(ctx context.Context) (map[string]any, error) {
		txnID := s.ids.NewID()

		newBalance, applied, err := s.store.AdjustPointsAtomic(ctx, txnID, accountID, delta, reason, idempotencyKey, s.now())
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, NewInsufficientPointsError(idempotencyKey, accountID, delta)
		}

		s.logger.Info("points adjusted",
			"account_id", accountID,
			"delta", delta,
			"new_balance", newBalance,
			"transaction_id", txnID,
		)

		return map[string]any{
			"new_balance":    newBalance,
			"transaction_id": txnID,
		}, nil
	})
	if err != nil {
		return AdjustResult{}, err
	}

	newBalance, err := payloadInt64(result, "new_balance")
	if err != nil {
		return AdjustResult{}, fmt.Errorf("adjust points: %w", err)
	}
	txnID, err := payloadString(result, "transaction_id")
	if err != nil {
		return AdjustResult{}, fmt.Errorf("adjust points: %w", err)
	}

	return AdjustResult{
		NewBalance:    newBalance,
		TransactionID: txnID,
		Replayed:      replayed,
	}, nil
}
