package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/malganis13/g2a-automation/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportDays      int
	exportProduct   string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price change history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDays > 0 && exportFrom != "" {
			return errors.New("--days and --from are mutually exclusive")
		}

		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}
		if exportDays > 0 {
			end := time.Now()
			if to != nil {
				end = *to
			}
			start := end.AddDate(0, 0, -exportDays)
			from = &start
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			From:      from,
			To:        to,
			ProductID: exportProduct,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

// parseTimeFlag accepts RFC3339 timestamps or plain local dates.
func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, raw)
	}
	return &t, nil
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVar(&exportFrom, "from", "", "Start (RFC3339 or YYYY-MM-DD, inclusive; default 30 days before --to)")
	flags.StringVar(&exportTo, "to", "", "End (RFC3339 or YYYY-MM-DD, exclusive; default now)")
	flags.IntVar(&exportDays, "days", 0, "Export the last N days before --to")
	flags.StringVar(&exportProduct, "product", "", "Restrict to one product id and chart its price")
	flags.StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	flags.StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	flags.IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
