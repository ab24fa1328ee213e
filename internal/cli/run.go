package cli

import (
	"github.com/spf13/cobra"

	"github.com/malganis13/g2a-automation/internal/app"
)

var cycleDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the repricing service on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single repricing cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunCycle(cmd.Context(), app.CycleOptions{DryRun: cycleDryRun})
	},
}

func init() {
	cycleCmd.Flags().BoolVar(&cycleDryRun, "dry-run", false, "Print planned changes without applying them")
}
