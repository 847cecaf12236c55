package loyalty

import (
	"context"
	"fmt"

	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// OpCloseCashSession names the session close operation on idempotency
// records and logs.
const OpCloseCashSession = "loyalty.close_cash_session"

// CloseResult is the outcome of a cash session close.
type CloseResult struct {
	SessionID     string
	Status        string // always store.SessionClosed on success
	ClosingAmount int64  // cents

	// Replayed reports whether this call returned a stored result
	// instead of executing the effect itself.
	Replayed bool
}

// OpenCashSession creates a cash session in OPEN status.
//
// Opening is idempotent on the session ID (duplicate opens are no-ops)
// but is not a contested transition, so it bypasses the guard. If id is
// empty a new identifier is generated.
func (s *Service) OpenCashSession(ctx context.Context, id, openedBy string, openingAmount int64) (store.CashSession, error) {
	if openedBy == "" {
		return store.CashSession{}, fmt.Errorf("open cash session: opened_by is required")
	}
	if id == "" {
		id = s.ids.NewID()
	}

	session := store.CashSession{
		ID:            id,
		OpenedBy:      openedBy,
		OpeningAmount: openingAmount,
		Status:        store.SessionOpen,
		OpenedAt:      s.now(),
	}

	created, err := s.store.CreateCashSession(ctx, session)
	if err != nil {
		return store.CashSession{}, &StoreError{Operation: "loyalty.open_cash_session", Err: err}
	}
	if !created {
		// Duplicate open: return the existing row.
		return s.store.GetCashSession(ctx, id)
	}

	s.logger.Info("cash session opened",
		"session_id", id,
		"opened_by", openedBy,
		"opening_amount", openingAmount,
	)
	return session, nil
}

// CloseCashSession transitions a cash session from OPEN to CLOSED
// exactly once, recording the closing amount.
//
// OPEN -> CLOSED is the only transition and CLOSED is terminal. Among
// concurrent close attempts exactly one succeeds; the rest fail with
// CodeSessionAlreadyClosed, a benign race loss the caller can use to
// reconcile UI state.
func (s *Service) CloseCashSession(ctx context.Context, sessionID string, closingAmount int64, idempotencyKey string) (CloseResult, error) {
	if sessionID == "" {
		return CloseResult{}, fmt.Errorf("close cash session: session id is required")
	}

	args := map[string]any{
		"session_id":     sessionID,
		"closing_amount": closingAmount,
	}

	result, replayed, err := s.guard.RunOnce(ctx, idempotencyKey, OpCloseCashSession, args, func(ctx context.Context) (map[string]any, error) {
		closed, err := s.store.CloseCashSession(ctx, sessionID, closingAmount, s.now())
		if err != nil {
			return nil, err
		}
		if !closed {
			return nil, NewSessionAlreadyClosedError(idempotencyKey, sessionID)
		}

		s.logger.Info("cash session closed",
			"session_id", sessionID,
			"closing_amount", closingAmount,
		)

		return map[string]any{
			"session_id":     sessionID,
			"status":         store.SessionClosed,
			"closing_amount": closingAmount,
		}, nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	id, err := payloadString(result, "session_id")
	if err != nil {
		return CloseResult{}, fmt.Errorf("close cash session: %w", err)
	}
	status, err := payloadString(result, "status")
	if err != nil {
		return CloseResult{}, fmt.Errorf("close cash session: %w", err)
	}
	amount, err := payloadInt64(result, "closing_amount")
	if err != nil {
		return CloseResult{}, fmt.Errorf("close cash session: %w", err)
	}

	return CloseResult{
		SessionID:     id,
		Status:        status,
		ClosingAmount: amount,
		Replayed:      replayed,
	}, nil
}
