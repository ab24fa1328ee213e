package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/malganis13/g2a-automation/internal/storage"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders price change history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	changes, err := store.ListPriceChangesBetween(ctx, opts.ProductID, from, to)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		a.Logger.Info().Msg("no price changes found for export window")
		return nil
	}

	downsampled := downsampleChanges(changes, opts.MaxPoints)
	a.Logger.Info().Int("total", len(changes)).Int("exported", len(downsampled)).Msg("exporting price changes")

	if opts.CSVPath != "" {
		if err := writeChangesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(downsampled) < 2 {
			a.Logger.Warn().Msg("chart needs at least two price changes; png skipped")
			return nil
		}
		if err := writeChangesPNG(opts.PNGPath, opts.ProductID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleChanges(changes []storage.PriceChange, max int) []storage.PriceChange {
	if max <= 0 || len(changes) <= max {
		return changes
	}
	if max == 1 {
		return changes[len(changes)-1:]
	}

	result := make([]storage.PriceChange, 0, max)
	step := float64(len(changes)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(changes) {
			idx = len(changes) - 1
		}
		result = append(result, changes[idx])
	}
	return result
}

func writeChangesCSV(path string, changes []storage.PriceChange) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "cycle_id", "product_id", "display_name", "old_price", "new_price", "competitor_price", "delta", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range changes {
		record := []string{
			c.CreatedAt.UTC().Format(time.RFC3339),
			c.CycleID,
			c.ProductID,
			c.DisplayName,
			c.OldPrice.StringFixed(2),
			c.NewPrice.StringFixed(2),
			c.CompetitorPrice.StringFixed(2),
			c.Delta.StringFixed(2),
			c.Reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeChangesPNG plots own and competitor price for a single product, or
// the cumulative price movement across all products.
func writeChangesPNG(path, productID string, changes []storage.PriceChange) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(changes))
	primary := make([]float64, len(changes))
	secondary := make([]float64, len(changes))

	cumulative := decimal.Zero
	for i, c := range changes {
		x[i] = c.CreatedAt
		if productID != "" {
			primary[i] = c.NewPrice.InexactFloat64()
			secondary[i] = c.CompetitorPrice.InexactFloat64()
			continue
		}
		cumulative = cumulative.Add(c.Delta)
		primary[i] = cumulative.InexactFloat64()
		secondary[i] = c.Delta.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	var series []chart.Series
	yName := "Price (EUR)"
	if productID != "" {
		series = []chart.Series{
			chart.TimeSeries{Name: "Own price (" + productID + ")", XValues: x, YValues: primary},
			chart.TimeSeries{Name: "Competitor", XValues: x, YValues: secondary},
		}
	} else {
		yName = "Cumulative change (EUR)"
		series = []chart.Series{
			chart.TimeSeries{Name: "Cumulative change", XValues: x, YValues: primary},
			chart.TimeSeries{Name: "Change", XValues: x, YValues: secondary, YAxis: chart.YAxisSecondary},
		}
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           yName,
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	if productID == "" {
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Change per update (EUR)",
			ValueFormatter: priceFormatter,
		}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
