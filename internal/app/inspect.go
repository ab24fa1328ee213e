package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/malganis13/g2a-automation/internal/gateway"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

// Inspect prints the market position of the seller's offer for a product and
// the decision the next cycle would take.
func (a *App) Inspect(ctx context.Context, productID string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	gw := a.newGateway()
	engine := a.newEngine(store, gw)

	offers, err := gw.ListOffers(ctx)
	if err != nil {
		return err
	}
	offer, ok := offers.ByProduct()[productID]
	if !ok {
		return fmt.Errorf("no offer listed for product %s", productID)
	}

	quote, err := gw.GetCompetitorQuote(ctx, productID)
	if err != nil {
		return err
	}

	view, err := engine.GetProductPolicy(ctx, productID)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "product\t%s\t%s\n", productID, offer.DisplayName)
	fmt.Fprintf(writer, "offer\t%s\t%s\n", offer.OfferID, activeLabel(offer))
	fmt.Fprintf(writer, "stock\t%d\n", a.stock(ctx, gw, offer))
	fmt.Fprintf(writer, "own price\t%s\n", offer.CurrentPrice.StringFixed(2))

	if !quote.MinPrice.Valid {
		fmt.Fprintln(writer, "market\tno listed price")
		writer.Flush()
		return nil
	}

	pos := pricing.Position(offer.CurrentPrice, quote.MinPrice.Decimal)
	fmt.Fprintf(writer, "top price\t%s\t%d offers\n", pos.TopPrice.StringFixed(2), quote.Competitors)
	fmt.Fprintf(writer, "position\t%s\n", pos.Label())
	fmt.Fprintf(writer, "margin\t%s\n", pos.Margin.StringFixed(2))

	decision := pricing.Decide(view.Effective, offer.CurrentPrice, quote)
	switch decision.Outcome {
	case pricing.OutcomeChange:
		fmt.Fprintf(writer, "next cycle\tchange to %s\n", decision.NewPrice.StringFixed(2))
	case pricing.OutcomeIneligible:
		fmt.Fprintf(writer, "next cycle\tskip (%s)\n", view.Effective.Veto)
	default:
		fmt.Fprintf(writer, "next cycle\tno change (%s)\n", decision.Outcome)
	}
	writer.Flush()
	return nil
}

func (a *App) stock(ctx context.Context, gw *gateway.Client, offer gateway.Offer) int {
	detail, err := gw.GetOffer(ctx, offer.OfferID)
	if err != nil {
		a.Logger.Debug().Err(err).Str("offer_id", offer.OfferID).Msg("offer detail unavailable; using listed stock")
		return offer.Stock
	}
	return detail.Stock
}

func activeLabel(o gateway.Offer) string {
	if o.Active {
		return "active"
	}
	return "inactive"
}
