package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/Mipos-sub025/internal/catalog"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog.cue>",
		Short: "Validate a reward catalog file",
		Long: `Compile a CUE reward catalog and report constraint violations.

The catalog's business rules (positive points cost, non-negative stock)
are CUE constraints, so violations are reported with file positions.

Exit codes:
  0 - catalog is valid
  1 - catalog has errors
  2 - command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	cat, err := catalog.Load(path)
	if err != nil {
		if f.Format == "json" {
			_ = f.Error("INVALID_CATALOG", err.Error(), nil)
		}
		return WrapExitError(ExitRejected, "catalog validation failed", err)
	}

	rewards := make([]map[string]any, 0, len(cat.Rewards))
	for _, r := range cat.Rewards {
		rewards = append(rewards, map[string]any{
			"id":              r.ID,
			"name":            r.Name,
			"points_cost":     r.PointsCost,
			"max_redemptions": r.MaxRedemptions,
			"active":          r.IsActive,
		})
	}

	return f.SuccessText(
		fmt.Sprintf("Catalog OK: program %q with %d rewards", cat.Program.ID, len(cat.Rewards)),
		map[string]any{
			"program_id":   cat.Program.ID,
			"program_name": cat.Program.Name,
			"rewards":      rewards,
		},
	)
}
