package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/malganis13/g2a-automation/internal/pricing"
	"github.com/malganis13/g2a-automation/internal/repricer"
)

// RunCycle executes a single cycle now. With DryRun the planned changes are
// printed and nothing is applied or recorded.
func (a *App) RunCycle(ctx context.Context, opts CycleOptions) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		var (
			report repricer.Report
			err    error
		)
		if opts.DryRun {
			report, err = engine.Plan(ctx)
		} else {
			a.attachNotifier(engine)
			report, err = engine.RunCycle(ctx)
		}
		a.printReport(report)
		return err
	})
}

func (a *App) printReport(r repricer.Report) {
	if r.CycleID == "" {
		return
	}
	mode := "live"
	if r.DryRun {
		mode = "dry-run"
	}
	a.printf("cycle %s (%s)\n", r.CycleID, mode)
	if r.LockedOut {
		a.printf("skipped: another process holds the cycle lock\n")
		return
	}
	a.printf("offers: %d  applied: %d  failed: %d  errors: %d\n", r.Offers, r.Applied, r.Failed, r.Errors)
	a.printf("budget: %d/%d used, %d remaining\n", r.Budget.Used, r.Budget.Limit, r.Budget.Remaining)
	if !r.ResumeAt.IsZero() {
		a.printf("daily limit reached; next changes after %s\n", r.ResumeAt.Format("2006-01-02 15:04"))
	}

	if len(r.Outcomes) > 0 {
		outcomes := make([]string, 0, len(r.Outcomes))
		for o := range r.Outcomes {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			a.printf("  %-12s %d\n", o, r.Outcomes[pricing.Outcome(o)])
		}
	}

	if len(r.Planned) == 0 {
		return
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Product\tOffer\tCurrent\tCompetitor\tNew\tReason")
	for _, action := range r.Planned {
		d := action.Decision
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			action.Offer.ProductID,
			action.Offer.OfferID,
			d.Current.StringFixed(2),
			d.Competitor.StringFixed(2),
			d.NewPrice.StringFixed(2),
			action.Reason,
		)
	}
	writer.Flush()
}
