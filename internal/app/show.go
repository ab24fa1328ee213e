package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/malganis13/g2a-automation/internal/storage"
)

// History prints the most recent price changes.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	changes, err := store.ListRecentPriceChanges(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(a.Out, "no price changes recorded")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tProduct\tName\tOld\tNew\tCompetitor\tDelta\tReason")

	for _, c := range changes {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime),
			c.ProductID,
			sanitizeInline(c.DisplayName),
			c.OldPrice.StringFixed(2),
			c.NewPrice.StringFixed(2),
			c.CompetitorPrice.StringFixed(2),
			c.Delta.StringFixed(2),
			sanitizeInline(c.Reason),
		)
	}

	writer.Flush()
	return nil
}

// Stats prints aggregate price change figures for the last N days.
func (a *App) Stats(ctx context.Context, opts StatsOptions) error {
	if opts.Days <= 0 {
		return errors.New("days must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now()
	from := to.AddDate(0, 0, -opts.Days)
	changes, err := store.ListPriceChangesBetween(ctx, opts.ProductID, from, to)
	if err != nil {
		return err
	}

	a.printStats(opts, storage.Summarize(changes))
	return nil
}

func (a *App) printStats(opts StatsOptions, stats storage.ChangeStats) {
	scope := "all products"
	if opts.ProductID != "" {
		scope = "product " + opts.ProductID
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Period\tlast %d days (%s)\n", opts.Days, scope)
	fmt.Fprintf(writer, "Changes\t%d\n", stats.Total)
	fmt.Fprintf(writer, "Increases\t%d\n", stats.Increases)
	fmt.Fprintf(writer, "Decreases\t%d\n", stats.Decreases)
	fmt.Fprintf(writer, "Total change\t%s\n", stats.TotalChange.StringFixed(2))
	fmt.Fprintf(writer, "Average change\t%s\n", stats.AvgChange.StringFixed(2))
	writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
