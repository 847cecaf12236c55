package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RedeemOptions holds flags for the redeem command.
type RedeemOptions struct {
	*RootOptions
	SaleID string
	Key    string
}

// NewRedeemCommand creates the redeem command.
func NewRedeemCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RedeemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "redeem <reward-id> <account-id>",
		Short: "Redeem a reward for a customer",
		Long: `Redeem a catalog reward, debiting its points cost from the account.

The stock claim and the points debit commit atomically: stock is never
consumed without a grant, and the last unit goes to exactly one of any
concurrent redeemers.

Exit codes:
  0 - reward granted (or replayed)
  1 - rejected (out of stock, inactive, insufficient points)
  2 - command error

Examples:
  mipos redeem free-coffee acct-42 --key redeem-77
  mipos redeem free-coffee acct-42 --sale sale-1009 --key redeem-78`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedeem(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.SaleID, "sale", "", "sale to attach the grant to")
	cmd.Flags().StringVar(&opts.Key, "key", "", "idempotency key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runRedeem(cmd *cobra.Command, opts *RedeemOptions, rewardID, accountID string) error {
	f := newFormatter(cmd, opts.RootOptions)

	svc, st, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := svc.RedeemReward(cmd.Context(), rewardID, accountID, opts.SaleID, opts.Key)
	if err != nil {
		return reportError(f, err)
	}

	text := fmt.Sprintf("Redeemed %s for %s (%d points)", rewardID, accountID, res.PointsCost)
	if res.Replayed {
		text += " (replayed)"
	}

	return f.SuccessText(text, map[string]any{
		"reward_id":          rewardID,
		"account_id":         accountID,
		"customer_reward_id": res.CustomerRewardID,
		"points_cost":        res.PointsCost,
		"replayed":           res.Replayed,
	})
}
