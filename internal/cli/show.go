package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/malganis13/g2a-automation/internal/app"
)

var (
	historyLimit int
	statsDays    int
	statsProduct string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent price changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().History(cmd.Context(), app.HistoryOptions{Limit: historyLimit})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise price changes over the last days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}
		return getApp().Stats(cmd.Context(), app.StatsOptions{Days: statsDays, ProductID: statsProduct})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of changes to display")
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Length of the period in days")
	statsCmd.Flags().StringVar(&statsProduct, "product", "", "Restrict to one product id")
}
