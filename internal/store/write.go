package store

import (
	"context"
	"fmt"
	"time"
)

// ClaimIdempotencyKey attempts to claim a key for one logical attempt.
// Uses ON CONFLICT(key) DO NOTHING - the unique constraint is the single
// arbitration point, so among N concurrent callers exactly one observes
// claimed=true and proceeds to execute the effect.
//
// The record is created in PENDING status; the winner must finalize it
// with CommitIdempotencyResult, FailIdempotencyRecord, or release it
// with ReleaseIdempotencyKey.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key, operation, requestHash string, now time.Time) (claimed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records
		(key, operation, request_hash, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`,
		key,
		operation,
		requestHash,
		IdempotencyPending,
		now.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CommitIdempotencyResult finalizes a claimed key with the effect's
// canonical result payload. Replays with the same key read this payload
// back without re-executing the effect.
func (s *Store) CommitIdempotencyResult(ctx context.Context, key, result string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = ?, result = ?
		WHERE key = ? AND status = ?
	`, IdempotencyCommitted, result, key, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("commit idempotency result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit idempotency result: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("commit idempotency result: no pending record for key %q", key)
	}
	return nil
}

// FailIdempotencyRecord finalizes a claimed key with a terminal
// rejection. Replays with the same key observe the same rejection.
func (s *Store) FailIdempotencyRecord(ctx context.Context, key, code, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = ?, error_code = ?, error_message = ?
		WHERE key = ? AND status = ?
	`, IdempotencyFailed, code, message, key, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("fail idempotency record: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail idempotency record: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("fail idempotency record: no pending record for key %q", key)
	}
	return nil
}

// ReleaseIdempotencyKey deletes a PENDING record so the caller can
// safely retry with the same key after an infrastructure failure.
// Committed and failed records are never released.
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE key = ? AND status = ?
	`, key, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// AdjustPointsAtomic applies a signed point delta to an account and
// appends the audit ledger row in a single transaction.
//
// The balance update is conditional: the guard predicate
// `current_points + delta >= 0` rides on the UPDATE itself, so the
// non-negative invariant holds without a separate read-then-write.
// Returns applied=false when the guard rejects the delta.
//
// Returns ErrAccountNotFound if the account does not exist.
func (s *Store) AdjustPointsAtomic(ctx context.Context, txnID, accountID string, delta int64, reason, idempotencyKey string, now time.Time) (newBalance int64, applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("adjust points: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		UPDATE customer_loyalty
		SET current_points = current_points + ?,
		    total_points_earned = total_points_earned + MAX(?, 0),
		    total_points_redeemed = total_points_redeemed + MAX(-?, 0)
		WHERE id = ? AND current_points + ? >= 0
	`, delta, delta, delta, accountID, delta)
	if err != nil {
		return 0, false, fmt.Errorf("adjust points: update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("adjust points: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing account from a guard rejection.
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM customer_loyalty WHERE id = ?
		`, accountID).Scan(&exists)
		if err != nil {
			return 0, false, fmt.Errorf("adjust points: check account: %w", err)
		}
		if exists == 0 {
			return 0, false, fmt.Errorf("adjust points: account %q: %w", accountID, ErrAccountNotFound)
		}

		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("adjust points: commit (rejected): %w", err)
		}
		return 0, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions
		(id, customer_loyalty_id, delta, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, txnID, accountID, delta, reason, idempotencyKey, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, false, fmt.Errorf("adjust points: insert transaction: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT current_points FROM customer_loyalty WHERE id = ?
	`, accountID).Scan(&newBalance)
	if err != nil {
		return 0, false, fmt.Errorf("adjust points: read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("adjust points: commit: %w", err)
	}

	return newBalance, true, nil
}

// RedeemDenial identifies which guard predicate rejected a redemption.
type RedeemDenial string

const (
	// RedeemDenialNone means the redemption was granted.
	RedeemDenialNone RedeemDenial = ""

	// RedeemDenialUnavailable means the reward is inactive or its stock
	// is exhausted.
	RedeemDenialUnavailable RedeemDenial = "reward_unavailable"

	// RedeemDenialInsufficientPoints means the customer cannot cover
	// the reward's cost.
	RedeemDenialInsufficientPoints RedeemDenial = "insufficient_points"
)

// RedeemRewardAtomic claims one unit of reward stock, debits the
// customer's points, and records the grant plus its ledger row - all in
// a single transaction.
//
// Step order matters: the stock claim is the contested write, so it goes
// first; if the points debit then fails, the transaction rollback undoes
// the claim, never leaving stock decremented without a grant.
//
// The store's row-lock order decides the single winner among concurrent
// attempts for the last unit of stock; no fairness is guaranteed.
//
// Returns ErrRewardNotFound / ErrAccountNotFound for missing rows.
func (s *Store) RedeemRewardAtomic(ctx context.Context, grantID, txnID, rewardID, accountID, saleID, idempotencyKey string, now time.Time) (pointsCost int64, denial RedeemDenial, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Step 1: claim one unit of stock (the contested conditional write)
	result, err := tx.ExecContext(ctx, `
		UPDATE loyalty_rewards
		SET current_redemptions = current_redemptions + 1
		WHERE id = ? AND is_active = 1 AND current_redemptions < max_redemptions
	`, rewardID)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: claim stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM loyalty_rewards WHERE id = ?
		`, rewardID).Scan(&exists)
		if err != nil {
			return 0, RedeemDenialNone, fmt.Errorf("redeem reward: check reward: %w", err)
		}
		if exists == 0 {
			return 0, RedeemDenialNone, fmt.Errorf("redeem reward: reward %q: %w", rewardID, ErrRewardNotFound)
		}

		if err := tx.Commit(); err != nil {
			return 0, RedeemDenialNone, fmt.Errorf("redeem reward: commit (denied): %w", err)
		}
		return 0, RedeemDenialUnavailable, nil
	}

	err = tx.QueryRowContext(ctx, `
		SELECT points_cost FROM loyalty_rewards WHERE id = ?
	`, rewardID).Scan(&pointsCost)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: read cost: %w", err)
	}

	// Step 2: debit the customer's points with the same guarded-update
	// pattern as AdjustPointsAtomic.
	result, err = tx.ExecContext(ctx, `
		UPDATE customer_loyalty
		SET current_points = current_points - ?,
		    total_points_redeemed = total_points_redeemed + ?
		WHERE id = ? AND current_points - ? >= 0
	`, pointsCost, pointsCost, accountID, pointsCost)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: debit points: %w", err)
	}

	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM customer_loyalty WHERE id = ?
		`, accountID).Scan(&exists)
		if err != nil {
			return 0, RedeemDenialNone, fmt.Errorf("redeem reward: check account: %w", err)
		}
		if exists == 0 {
			return 0, RedeemDenialNone, fmt.Errorf("redeem reward: account %q: %w", accountID, ErrAccountNotFound)
		}

		// Rollback (via defer) undoes the stock claim from step 1.
		return pointsCost, RedeemDenialInsufficientPoints, nil
	}

	// Step 3: record the grant and its ledger row
	redeemedAt := now.UTC().Format(timeLayout)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_rewards
		(id, customer_loyalty_id, reward_id, sale_id, redeemed_at)
		VALUES (?, ?, ?, ?, ?)
	`, grantID, accountID, rewardID, saleID, redeemedAt)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: insert grant: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions
		(id, customer_loyalty_id, delta, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, txnID, accountID, -pointsCost, "reward redemption: "+rewardID, idempotencyKey, redeemedAt)
	if err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, RedeemDenialNone, fmt.Errorf("redeem reward: commit: %w", err)
	}

	return pointsCost, RedeemDenialNone, nil
}

// CloseCashSession transitions a session OPEN -> CLOSED exactly once.
// The status guard rides on the UPDATE; among concurrent closers exactly
// one observes closed=true.
//
// Returns ErrSessionNotFound if the session does not exist.
func (s *Store) CloseCashSession(ctx context.Context, sessionID string, closingAmount int64, now time.Time) (closed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = ?, closing_amount = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`, SessionClosed, closingAmount, now.UTC().Format(timeLayout), sessionID, SessionOpen)
	if err != nil {
		return false, fmt.Errorf("close cash session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close cash session: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists int
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM cash_sessions WHERE id = ?
		`, sessionID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("close cash session: check session: %w", err)
		}
		if exists == 0 {
			return false, fmt.Errorf("close cash session: session %q: %w", sessionID, ErrSessionNotFound)
		}
		return false, nil
	}

	return true, nil
}

// CreateLoyaltyAccount inserts a customer loyalty account.
// Uses ON CONFLICT(id) DO NOTHING for idempotent seeding.
func (s *Store) CreateLoyaltyAccount(ctx context.Context, acct LoyaltyAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_loyalty
		(id, customer_id, program_id, current_points, total_points_earned, total_points_redeemed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		acct.ID,
		acct.CustomerID,
		acct.ProgramID,
		acct.CurrentPoints,
		acct.TotalPointsEarned,
		acct.TotalPointsRedeemed,
		acct.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("create loyalty account: %w", err)
	}
	return nil
}

// UpsertReward inserts or updates a reward catalog entry.
// Catalog reloads update definition fields but never touch
// current_redemptions - redeemed stock is owned by the arbiter.
func (s *Store) UpsertReward(ctx context.Context, reward Reward) error {
	isActive := 0
	if reward.IsActive {
		isActive = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loyalty_rewards
		(id, program_id, name, points_cost, max_redemptions, current_redemptions, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			program_id = excluded.program_id,
			name = excluded.name,
			points_cost = excluded.points_cost,
			max_redemptions = excluded.max_redemptions,
			is_active = excluded.is_active
	`,
		reward.ID,
		reward.ProgramID,
		reward.Name,
		reward.PointsCost,
		reward.MaxRedemptions,
		reward.CurrentRedemptions,
		isActive,
	)
	if err != nil {
		return fmt.Errorf("upsert reward: %w", err)
	}
	return nil
}

// CreateCashSession inserts a session in OPEN status.
// Uses ON CONFLICT(id) DO NOTHING for idempotent opens.
func (s *Store) CreateCashSession(ctx context.Context, session CashSession) (created bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions
		(id, opened_by, opening_amount, status, opened_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		session.ID,
		session.OpenedBy,
		session.OpeningAmount,
		SessionOpen,
		session.OpenedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("create cash session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create cash session: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
