package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetIdempotencyRecord retrieves the record for a key.
// Returns ErrRecordNotFound if the key was never claimed.
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT key, operation, request_hash, status, result, error_code, error_message, created_at
		FROM idempotency_records
		WHERE key = ?
	`, key).Scan(
		&rec.Key, &rec.Operation, &rec.RequestHash, &rec.Status,
		&rec.Result, &rec.ErrorCode, &rec.ErrorMessage, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRecord{}, fmt.Errorf("idempotency key %q: %w", key, ErrRecordNotFound)
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// GetLoyaltyAccount retrieves an account by ID.
// Returns ErrAccountNotFound if it does not exist.
func (s *Store) GetLoyaltyAccount(ctx context.Context, id string) (LoyaltyAccount, error) {
	var acct LoyaltyAccount
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, program_id, current_points, total_points_earned, total_points_redeemed, created_at
		FROM customer_loyalty
		WHERE id = ?
	`, id).Scan(
		&acct.ID, &acct.CustomerID, &acct.ProgramID,
		&acct.CurrentPoints, &acct.TotalPointsEarned, &acct.TotalPointsRedeemed,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return LoyaltyAccount{}, fmt.Errorf("account %q: %w", id, ErrAccountNotFound)
	}
	if err != nil {
		return LoyaltyAccount{}, fmt.Errorf("get loyalty account: %w", err)
	}

	acct.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return LoyaltyAccount{}, fmt.Errorf("get loyalty account: %w", err)
	}
	return acct, nil
}

// GetReward retrieves a reward by ID.
// Returns ErrRewardNotFound if it does not exist.
func (s *Store) GetReward(ctx context.Context, id string) (Reward, error) {
	var reward Reward
	var isActive int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, program_id, name, points_cost, max_redemptions, current_redemptions, is_active
		FROM loyalty_rewards
		WHERE id = ?
	`, id).Scan(
		&reward.ID, &reward.ProgramID, &reward.Name,
		&reward.PointsCost, &reward.MaxRedemptions, &reward.CurrentRedemptions,
		&isActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Reward{}, fmt.Errorf("reward %q: %w", id, ErrRewardNotFound)
	}
	if err != nil {
		return Reward{}, fmt.Errorf("get reward: %w", err)
	}

	reward.IsActive = isActive != 0
	return reward, nil
}

// GetCashSession retrieves a session by ID.
// Returns ErrSessionNotFound if it does not exist.
func (s *Store) GetCashSession(ctx context.Context, id string) (CashSession, error) {
	var session CashSession
	var closingAmount sql.NullInt64
	var openedAt string
	var closedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, opened_by, opening_amount, closing_amount, status, opened_at, closed_at
		FROM cash_sessions
		WHERE id = ?
	`, id).Scan(
		&session.ID, &session.OpenedBy, &session.OpeningAmount,
		&closingAmount, &session.Status, &openedAt, &closedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CashSession{}, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return CashSession{}, fmt.Errorf("get cash session: %w", err)
	}

	if closingAmount.Valid {
		session.ClosingAmount = closingAmount.Int64
	}
	session.OpenedAt, err = parseTime(openedAt)
	if err != nil {
		return CashSession{}, fmt.Errorf("get cash session: %w", err)
	}
	if closedAt.Valid {
		session.ClosedAt, err = parseTime(closedAt.String)
		if err != nil {
			return CashSession{}, fmt.Errorf("get cash session: %w", err)
		}
	}
	return session, nil
}

// ReadPointsTransactions returns the audit ledger for an account with
// deterministic ordering: created_at ASC, id ASC.
//
// Returns an empty slice (not nil) if the account has no transactions.
func (s *Store) ReadPointsTransactions(ctx context.Context, accountID string) ([]PointsTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_loyalty_id, delta, reason, idempotency_key, created_at
		FROM points_transactions
		WHERE customer_loyalty_id = ?
		ORDER BY created_at ASC, id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query points transactions: %w", err)
	}
	defer rows.Close()

	var txns []PointsTransaction
	for rows.Next() {
		var txn PointsTransaction
		var createdAt string
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Delta, &txn.Reason, &txn.IdempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scan points transaction: %w", err)
		}
		txn.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan points transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points transactions: %w", err)
	}

	// Return empty slice instead of nil
	if txns == nil {
		txns = []PointsTransaction{}
	}
	return txns, nil
}

// ReadCustomerRewards returns the grants for a reward with deterministic
// ordering: redeemed_at ASC, id ASC.
//
// Returns an empty slice (not nil) if the reward has no grants.
func (s *Store) ReadCustomerRewards(ctx context.Context, rewardID string) ([]CustomerReward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_loyalty_id, reward_id, sale_id, redeemed_at
		FROM customer_rewards
		WHERE reward_id = ?
		ORDER BY redeemed_at ASC, id ASC
	`, rewardID)
	if err != nil {
		return nil, fmt.Errorf("query customer rewards: %w", err)
	}
	defer rows.Close()

	var grants []CustomerReward
	for rows.Next() {
		var grant CustomerReward
		var redeemedAt string
		if err := rows.Scan(&grant.ID, &grant.AccountID, &grant.RewardID, &grant.SaleID, &redeemedAt); err != nil {
			return nil, fmt.Errorf("scan customer reward: %w", err)
		}
		grant.RedeemedAt, err = parseTime(redeemedAt)
		if err != nil {
			return nil, fmt.Errorf("scan customer reward: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer rewards: %w", err)
	}

	if grants == nil {
		grants = []CustomerReward{}
	}
	return grants, nil
}

// CountPointsTransactions returns the number of ledger rows for an account.
// Used by harness assertions.
func (s *Store) CountPointsTransactions(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM points_transactions WHERE customer_loyalty_id = ?
	`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count points transactions: %w", err)
	}
	return count, nil
}

// parseTime parses a stored timestamp.
func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
