package loyalty

import (
	"context"
	"fmt"

	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// OpRedeemReward names the reward redemption operation on idempotency
// records and logs.
const OpRedeemReward = "loyalty.redeem_reward"

// RedeemResult is the outcome of a reward redemption.
type RedeemResult struct {
	// CustomerRewardID identifies the grant record.
	CustomerRewardID string

	// PointsCost is the number of points debited.
	PointsCost int64

	// Replayed reports whether this call returned a stored result
	// instead of executing the effect itself.
	Replayed bool
}

// RedeemReward grants a reward redemption only while stock is
// available, rejecting excess concurrent demand.
//
// The stock claim, points debit, grant insert, and ledger insert commit
// in a single store transaction; if the debit fails, the rollback
// undoes the stock claim, so stock is never decremented without a
// corresponding grant.
//
// No fairness is guaranteed among concurrent requesters: the store's
// row-lock order decides the single winner for the last unit of stock.
//
// Fails with CodeRewardUnavailable when the reward is inactive or out
// of stock, and CodeInsufficientPoints when the customer cannot cover
// the cost.
func (s *Service) RedeemReward(ctx context.Context, rewardID, accountID, saleID, idempotencyKey string) (RedeemResult, error) {
	if rewardID == "" {
		return RedeemResult{}, fmt.Errorf("redeem reward: reward id is required")
	}
	if accountID == "" {
		return RedeemResult{}, fmt.Errorf("redeem reward: account id is required")
	}

	args := map[string]any{
		"reward_id":  rewardID,
		"account_id": accountID,
		"sale_id":    saleID,
	}

	result, replayed, err := s.guard.RunOnce(ctx, idempotencyKey, OpRedeemReward, args, func(ctx context.Context) (map[string]any, error) {
		grantID := s.ids.NewID()
		txnID := s.ids.NewID()

		pointsCost, denial, err := s.store.RedeemRewardAtomic(ctx, grantID, txnID, rewardID, accountID, saleID, idempotencyKey, s.now())
		if err != nil {
			return nil, err
		}

		switch denial {
		case store.RedeemDenialUnavailable:
			return nil, NewRewardUnavailableError(idempotencyKey, rewardID)
		case store.RedeemDenialInsufficientPoints:
			return nil, NewInsufficientPointsError(idempotencyKey, accountID, -pointsCost)
		}

		s.logger.Info("reward redeemed",
			"reward_id", rewardID,
			"account_id", accountID,
			"customer_reward_id", grantID,
			"points_cost", pointsCost,
		)

		return map[string]any{
			"customer_reward_id": grantID,
			"points_cost":        pointsCost,
		}, nil
	})
	if err != nil {
		return RedeemResult{}, err
	}

	grantID, err := payloadString(result, "customer_reward_id")
	if err != nil {
		return RedeemResult{}, fmt.Errorf("redeem reward: %w", err)
	}
	pointsCost, err := payloadInt64(result, "points_cost")
	if err != nil {
		return RedeemResult{}, fmt.Errorf("redeem reward: %w", err)
	}

	return RedeemResult{
		CustomerRewardID: grantID,
		PointsCost:       pointsCost,
		Replayed:         replayed,
	}, nil
}
