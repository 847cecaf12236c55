package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <account-id>",
		Short: "Show an account's points ledger",
		Long: `List the append-only points ledger for an account, oldest first.

Each row records the signed delta, the audit reason, and the
idempotency key of the operation that produced it, so every balance
change is traceable back to one logical attempt.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runTrace(cmd *cobra.Command, opts *RootOptions, accountID string) error {
	f := newFormatter(cmd, opts)

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	// Fail clearly for unknown accounts instead of printing an empty
	// ledger.
	acct, err := st.GetLoyaltyAccount(cmd.Context(), accountID)
	if err != nil {
		return reportError(f, err)
	}

	txns, err := st.ReadPointsTransactions(cmd.Context(), accountID)
	if err != nil {
		return reportError(f, err)
	}

	if opts.Format == "json" {
		entries := make([]map[string]any, 0, len(txns))
		for _, txn := range txns {
			entries = append(entries, map[string]any{
				"transaction_id":  txn.ID,
				"delta":           txn.Delta,
				"reason":          txn.Reason,
				"idempotency_key": txn.IdempotencyKey,
				"created_at":      txn.CreatedAt,
			})
		}
		return f.Success(map[string]any{
			"account_id":     accountID,
			"current_points": acct.CurrentPoints,
			"transactions":   entries,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ledger for %s (balance %d):\n", accountID, acct.CurrentPoints)
	if len(txns) == 0 {
		b.WriteString("  (no transactions)")
	}
	for i, txn := range txns {
		fmt.Fprintf(&b, "  %+d  %-30s  key=%s", txn.Delta, txn.Reason, txn.IdempotencyKey)
		if i < len(txns)-1 {
			b.WriteByte('\n')
		}
	}
	fmt.Fprintln(f.Writer, b.String())
	return nil
}
