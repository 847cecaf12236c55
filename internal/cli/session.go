package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// SessionOptions holds flags for session subcommands.
type SessionOptions struct {
	*RootOptions
	OpenedBy      string
	OpeningAmount int64
	Key           string
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage cash sessions",
	}

	cmd.AddCommand(newSessionOpenCommand(rootOpts))
	cmd.AddCommand(newSessionCloseCommand(rootOpts))

	return cmd
}

func newSessionOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "open [session-id]",
		Short: "Open a cash session",
		Long: `Open a cash session (a till shift).

If session-id is omitted a UUID is generated. Opening an existing
session is a no-op that reports the current session.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runSessionOpen(cmd, opts, id)
		},
	}

	cmd.Flags().StringVar(&opts.OpenedBy, "opened-by", "", "cashier opening the session (required)")
	cmd.Flags().Int64Var(&opts.OpeningAmount, "opening-amount", 0, "opening float in cents")
	_ = cmd.MarkFlagRequired("opened-by")

	return cmd
}

func runSessionOpen(cmd *cobra.Command, opts *SessionOptions, id string) error {
	f := newFormatter(cmd, opts.RootOptions)

	svc, st, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := svc.OpenCashSession(cmd.Context(), id, opts.OpenedBy, opts.OpeningAmount)
	if err != nil {
		return reportError(f, err)
	}

	return f.SuccessText(
		fmt.Sprintf("Session %s opened by %s (float %d cents)",
			session.ID, session.OpenedBy, session.OpeningAmount),
		map[string]any{
			"session_id":     session.ID,
			"opened_by":      session.OpenedBy,
			"opening_amount": session.OpeningAmount,
			"status":         session.Status,
		},
	)
}

func newSessionCloseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "close <session-id> <closing-amount>",
		Short: "Close a cash session",
		Long: `Close a cash session, recording the counted closing amount in cents.

A session closes exactly once. If another cashier already closed it the
command is rejected with SESSION_ALREADY_CLOSED; retrying with the same
--key replays the original close instead.

Exit codes:
  0 - session closed (or replayed)
  1 - rejected (already closed)
  2 - command error`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid closing amount %q", args[1]))
			}
			return runSessionClose(cmd, opts, args[0], amount)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "idempotency key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runSessionClose(cmd *cobra.Command, opts *SessionOptions, id string, amount int64) error {
	f := newFormatter(cmd, opts.RootOptions)

	svc, st, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := svc.CloseCashSession(cmd.Context(), id, amount, opts.Key)
	if err != nil {
		return reportError(f, err)
	}

	text := fmt.Sprintf("Session %s closed with %d cents", res.SessionID, res.ClosingAmount)
	if res.Replayed {
		text += " (replayed)"
	}

	return f.SuccessText(text, map[string]any{
		"session_id":     res.SessionID,
		"status":         res.Status,
		"closing_amount": res.ClosingAmount,
		"replayed":       res.Replayed,
	})
}
