// Package pricing resolves the effective repricing policy for a product and
// decides whether its listed price should move.
//
// A product's new price is the lowest competitor price minus the undercut
// amount, rounded half-up to cents and capped at the global maximum. A
// candidate below the floor is never applied: the product is left alone
// rather than clamped up.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Outcome classifies a per-product decision.
type Outcome string

const (
	OutcomeChange     Outcome = "change"
	OutcomeInactive   Outcome = "inactive"
	OutcomeIneligible Outcome = "ineligible"
	OutcomeNoQuote    Outcome = "no_quote"
	OutcomeSelfSeller Outcome = "self_seller"
	OutcomeBelowFloor Outcome = "below_floor"
	OutcomeUnchanged  Outcome = "unchanged"
)

// Cent is the currency minor unit.
var Cent = decimal.New(1, -2)

// Policy is the effective configuration for one product.
type Policy struct {
	ProductID   string
	Eligible    bool
	Veto        string
	Floor       decimal.Decimal
	Ceiling     decimal.Decimal
	Undercut    decimal.Decimal
	ProtectSelf bool
	Overridden  bool
}

// Quote is the lowest listed price of a product at decision time.
// Competitors is the number of listings the marketplace reports; zero means
// no other seller is visible.
type Quote struct {
	MinPrice    decimal.NullDecimal
	Competitors int
}

// Decision is the result of evaluating one product.
type Decision struct {
	Outcome    Outcome
	Current    decimal.Decimal
	Competitor decimal.Decimal
	Candidate  decimal.Decimal
	NewPrice   decimal.Decimal
	Floor      decimal.Decimal
}

// Changes reports whether the decision requires a price update.
func (d Decision) Changes() bool {
	return d.Outcome == OutcomeChange
}

// Delta is the signed difference between the new and current price.
func (d Decision) Delta() decimal.Decimal {
	return d.NewPrice.Sub(d.Current)
}

// Resolve layers the override over the global settings. The override's
// auto flag can only veto; it never grants eligibility the globals deny.
func Resolve(productID string, s Settings, o *Override) Policy {
	p := Policy{
		ProductID:   productID,
		Floor:       s.MinPrice,
		Ceiling:     s.MaxPrice,
		Undercut:    s.UndercutAmount,
		ProtectSelf: s.ProtectSingleSeller,
	}

	p.Eligible, p.Veto = s.Permits(productID)

	if o != nil {
		p.Overridden = true
		if o.FloorPrice.Valid {
			p.Floor = o.FloorPrice.Decimal
		}
		if o.UndercutAmount.Valid {
			p.Undercut = o.UndercutAmount.Decimal
		}
		if p.Eligible && !o.AutoEnabled {
			p.Eligible, p.Veto = false, "auto-pricing disabled for product"
		}
	}
	return p
}

// Decide computes the new price for a product given its current price and quote.
func Decide(p Policy, current decimal.Decimal, q Quote) Decision {
	d := Decision{Current: current, Floor: p.Floor}

	if !p.Eligible {
		d.Outcome = OutcomeIneligible
		return d
	}
	if !q.MinPrice.Valid {
		d.Outcome = OutcomeNoQuote
		return d
	}
	d.Competitor = q.MinPrice.Decimal

	// The quote includes the seller's own offer, so a match is always ours.
	if WithinCent(d.Competitor, current) {
		d.Outcome = OutcomeSelfSeller
		return d
	}
	if p.ProtectSelf && q.Competitors == 0 {
		d.Outcome = OutcomeSelfSeller
		return d
	}

	d.Candidate = d.Competitor.Sub(p.Undercut)
	if d.Candidate.LessThan(p.Floor) || !d.Candidate.IsPositive() {
		d.Outcome = OutcomeBelowFloor
		return d
	}

	price := d.Candidate
	if price.GreaterThan(p.Ceiling) {
		price = p.Ceiling
	}
	price = RoundPrice(price)
	if price.LessThan(p.Floor) {
		// a per-product floor above the global ceiling
		d.Outcome = OutcomeBelowFloor
		return d
	}
	d.NewPrice = price

	if WithinCent(price, current) {
		d.Outcome = OutcomeUnchanged
		return d
	}
	d.Outcome = OutcomeChange
	return d
}

// RoundPrice rounds half-up to the currency minor unit.
func RoundPrice(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// InCents reports whether v has no fraction below the currency minor unit.
func InCents(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

// WithinCent reports whether two prices differ by less than one cent.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Cent)
}
