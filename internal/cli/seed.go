package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/Mipos-sub025/internal/catalog"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <catalog.cue>",
		Short: "Seed the reward catalog into the database",
		Long: `Compile a CUE reward catalog and upsert its rewards.

Seeding is safe to repeat: reward definitions (name, cost, stock limit,
active flag) are updated in place, and redemption counters are never
touched, so re-seeding cannot resurrect consumed stock.

Examples:
  mipos seed catalog.cue
  mipos seed catalog.cue --db shop.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	cat, err := catalog.Load(path)
	if err != nil {
		if f.Format == "json" {
			_ = f.Error("INVALID_CATALOG", err.Error(), nil)
		}
		return WrapExitError(ExitRejected, "catalog validation failed", err)
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, reward := range cat.Rewards {
		f.VerboseLog("seeding reward %s (%d points)", reward.ID, reward.PointsCost)
		if err := st.UpsertReward(cmd.Context(), reward); err != nil {
			return reportError(f, fmt.Errorf("seed reward %s: %w", reward.ID, err))
		}
	}

	return f.SuccessText(
		fmt.Sprintf("Seeded %d rewards from program %q", len(cat.Rewards), cat.Program.ID),
		map[string]any{
			"program_id": cat.Program.ID,
			"seeded":     len(cat.Rewards),
		},
	)
}
