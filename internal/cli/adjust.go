package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// AdjustOptions holds flags for the adjust command.
type AdjustOptions struct {
	*RootOptions
	Reason string
	Key    string
}

// NewAdjustCommand creates the adjust command.
func NewAdjustCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdjustOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "adjust <account-id> <delta>",
		Short: "Adjust a loyalty account's points balance",
		Long: `Apply a signed point delta to a loyalty account.

The delta may be negative (a redemption or correction); the balance
never goes below zero. Retrying with the same --key replays the first
attempt's result instead of applying the delta again.

Exit codes:
  0 - adjustment applied (or replayed)
  1 - rejected (insufficient points, key conflict)
  2 - command error

Examples:
  mipos adjust acct-42 150 --reason "purchase #1009" --key sale-1009
  mipos adjust acct-42 -500 --reason "reward redemption" --key redeem-77`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid delta %q", args[1]))
			}
			return runAdjust(cmd, opts, args[0], delta)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "audit reason for the adjustment (required)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "idempotency key (required)")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runAdjust(cmd *cobra.Command, opts *AdjustOptions, accountID string, delta int64) error {
	f := newFormatter(cmd, opts.RootOptions)

	svc, st, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := svc.AdjustPoints(cmd.Context(), accountID, delta, opts.Reason, opts.Key)
	if err != nil {
		return reportError(f, err)
	}

	text := fmt.Sprintf("Adjusted %s by %+d, new balance %d", accountID, delta, res.NewBalance)
	if res.Replayed {
		text += " (replayed)"
	}

	return f.SuccessText(text, map[string]any{
		"account_id":     accountID,
		"delta":          delta,
		"new_balance":    res.NewBalance,
		"transaction_id": res.TransactionID,
		"replayed":       res.Replayed,
	})
}
