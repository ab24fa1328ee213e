package pricing

import "github.com/shopspring/decimal"

// Rank values of a MarketPosition.
const (
	RankAnomaly = 0
	RankFirst   = 1
	RankSecond  = 2
)

// MarketPosition compares the seller's own price with the lowest listed price.
type MarketPosition struct {
	Rank     int
	OwnPrice decimal.Decimal
	TopPrice decimal.Decimal
	// Margin is own minus top price; negative only for an anomaly.
	Margin decimal.Decimal
}

// Label is a short human description of the rank.
func (p MarketPosition) Label() string {
	switch p.Rank {
	case RankFirst:
		return "1st (lowest price)"
	case RankSecond:
		return "2nd (competitor cheaper)"
	default:
		return "anomaly: own price below listed minimum"
	}
}

// Position ranks own against the marketplace minimum. Within a cent the
// seller holds the minimum; a minimum above own price means the listing is stale.
func Position(own, top decimal.Decimal) MarketPosition {
	p := MarketPosition{
		OwnPrice: RoundPrice(own),
		TopPrice: RoundPrice(top),
	}
	switch {
	case WithinCent(top, own):
		p.Rank = RankFirst
		p.Margin = decimal.Zero
	case top.LessThan(own):
		p.Rank = RankSecond
		p.Margin = RoundPrice(own.Sub(top))
	default:
		p.Rank = RankAnomaly
		p.Margin = RoundPrice(own.Sub(top))
	}
	return p
}
