package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// AccountOptions holds flags for account subcommands.
type AccountOptions struct {
	*RootOptions
	CustomerID string
	ProgramID  string
	Points     int64
}

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage loyalty accounts",
	}

	cmd.AddCommand(newAccountCreateCommand(rootOpts))
	cmd.AddCommand(newAccountShowCommand(rootOpts))

	return cmd
}

func newAccountCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create [account-id]",
		Short: "Create a loyalty account",
		Long: `Create a loyalty account for a customer within a program.

If account-id is omitted a UUID is generated. Creating an account that
already exists is a no-op.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runAccountCreate(cmd, opts, id)
		},
	}

	cmd.Flags().StringVar(&opts.CustomerID, "customer", "", "customer ID (required)")
	cmd.Flags().StringVar(&opts.ProgramID, "program", "", "loyalty program ID (required)")
	cmd.Flags().Int64Var(&opts.Points, "points", 0, "initial points balance")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runAccountCreate(cmd *cobra.Command, opts *AccountOptions, id string) error {
	f := newFormatter(cmd, opts.RootOptions)

	if opts.Points < 0 {
		return NewExitError(ExitCommandError, "initial points must be non-negative")
	}
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	acct := store.LoyaltyAccount{
		ID:                id,
		CustomerID:        opts.CustomerID,
		ProgramID:         opts.ProgramID,
		CurrentPoints:     opts.Points,
		TotalPointsEarned: opts.Points,
	}
	if err := st.CreateLoyaltyAccount(cmd.Context(), acct); err != nil {
		return reportError(f, err)
	}

	return f.SuccessText(
		fmt.Sprintf("Account %s created (%d points)", id, opts.Points),
		map[string]any{"account_id": id, "current_points": opts.Points},
	)
}

func newAccountShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <account-id>",
		Short:         "Show a loyalty account's balance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountShow(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runAccountShow(cmd *cobra.Command, opts *RootOptions, id string) error {
	f := newFormatter(cmd, opts)

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	acct, err := st.GetLoyaltyAccount(cmd.Context(), id)
	if err != nil {
		return reportError(f, err)
	}

	return f.SuccessText(
		fmt.Sprintf("Account %s: %d points (earned %d, redeemed %d)",
			acct.ID, acct.CurrentPoints, acct.TotalPointsEarned, acct.TotalPointsRedeemed),
		map[string]any{
			"account_id":            acct.ID,
			"customer_id":           acct.CustomerID,
			"program_id":            acct.ProgramID,
			"current_points":        acct.CurrentPoints,
			"total_points_earned":   acct.TotalPointsEarned,
			"total_points_redeemed": acct.TotalPointsRedeemed,
		},
	)
}
