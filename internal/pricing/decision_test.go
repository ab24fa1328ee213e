package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func quote(v string) Quote {
	return Quote{MinPrice: decimal.NewNullDecimal(d(v)), Competitors: 3}
}

func enabledSettings() Settings {
	s := DefaultSettings()
	s.Enabled = true
	s.MinPrice = d("0.10")
	s.MaxPrice = d("100.00")
	s.UndercutAmount = d("0.01")
	return s
}

func TestDecideUndercutsLowestCompetitor(t *testing.T) {
	p := Resolve("1001", enabledSettings(), nil)
	got := Decide(p, d("5.50"), quote("5.00"))
	if got.Outcome != OutcomeChange {
		t.Fatalf("expected change, got %s", got.Outcome)
	}
	if !got.NewPrice.Equal(d("4.99")) {
		t.Fatalf("expected 4.99, got %s", got.NewPrice)
	}
	if !got.Delta().Equal(d("-0.51")) {
		t.Fatalf("expected delta -0.51, got %s", got.Delta())
	}
}

func TestDecideFloorIsHardStop(t *testing.T) {
	o := NewOverride("1001")
	o.FloorPrice = decimal.NewNullDecimal(d("5.00"))
	p := Resolve("1001", enabledSettings(), &o)

	got := Decide(p, d("5.50"), quote("4.50"))
	if got.Outcome != OutcomeBelowFloor {
		t.Fatalf("expected below_floor, got %s", got.Outcome)
	}
	if !got.NewPrice.IsZero() {
		t.Fatalf("no price should be proposed below the floor, got %s", got.NewPrice)
	}
	if !got.Candidate.Equal(d("4.49")) {
		t.Fatalf("candidate should be 4.49, got %s", got.Candidate)
	}
}

func TestDecideClampsToCeiling(t *testing.T) {
	s := enabledSettings()
	s.MaxPrice = d("20.00")
	got := Decide(Resolve("1", s, nil), d("10.00"), quote("35.00"))
	if got.Outcome != OutcomeChange || !got.NewPrice.Equal(d("20.00")) {
		t.Fatalf("expected clamp to 20.00, got %s %s", got.Outcome, got.NewPrice)
	}
}

func TestDecideFloorAboveCeilingNeverApplies(t *testing.T) {
	s := enabledSettings()
	s.MaxPrice = d("20.00")
	o := NewOverride("1")
	o.FloorPrice = decimal.NewNullDecimal(d("25.00"))
	got := Decide(Resolve("1", s, &o), d("30.00"), quote("40.00"))
	if got.Outcome != OutcomeBelowFloor {
		t.Fatalf("clamped price under the floor must be skipped, got %s", got.Outcome)
	}
}

func TestDecideSelfSellerProtection(t *testing.T) {
	p := Resolve("1", enabledSettings(), nil)
	got := Decide(p, d("5.00"), quote("5.004"))
	if got.Outcome != OutcomeSelfSeller {
		t.Fatalf("expected self_seller, got %s", got.Outcome)
	}

	lone := Quote{MinPrice: decimal.NewNullDecimal(d("6.00"))}
	if got := Decide(p, d("5.50"), lone); got.Outcome != OutcomeSelfSeller {
		t.Fatalf("a lone seller should be left alone, got %s", got.Outcome)
	}

	s := enabledSettings()
	s.ProtectSingleSeller = false
	p = Resolve("1", s, nil)
	if got := Decide(p, d("5.50"), lone); got.Outcome != OutcomeChange || !got.NewPrice.Equal(d("5.99")) {
		t.Fatalf("without protection a lone quote is followed, got %s %s", got.Outcome, got.NewPrice)
	}
}

func TestDecideNeverUndercutsOwnPrice(t *testing.T) {
	s := enabledSettings()
	s.ProtectSingleSeller = false
	p := Resolve("1", s, nil)

	current := d("5.50")
	market := d("5.00")
	var changes int
	for cycle := 0; cycle < 4; cycle++ {
		got := Decide(p, current, Quote{MinPrice: decimal.NewNullDecimal(market), Competitors: 2})
		if got.Changes() {
			changes++
			current = got.NewPrice
			market = decimal.Min(market, current)
		}
	}
	if changes != 1 || !current.Equal(d("4.99")) {
		t.Fatalf("expected a single change to 4.99, got %d changes ending at %s", changes, current)
	}
}

func TestDecideNoQuote(t *testing.T) {
	got := Decide(Resolve("1", enabledSettings(), nil), d("5.00"), Quote{})
	if got.Outcome != OutcomeNoQuote {
		t.Fatalf("expected no_quote, got %s", got.Outcome)
	}
}

func TestDecideUnchangedWithinCent(t *testing.T) {
	got := Decide(Resolve("1", enabledSettings(), nil), d("4.99"), quote("5.00"))
	if got.Outcome != OutcomeUnchanged {
		t.Fatalf("second evaluation should be a no-op, got %s", got.Outcome)
	}
}

func TestDecideOverrideUndercut(t *testing.T) {
	o := NewOverride("1")
	o.UndercutAmount = decimal.NewNullDecimal(d("0.25"))
	got := Decide(Resolve("1", enabledSettings(), &o), d("9.00"), quote("8.00"))
	if !got.NewPrice.Equal(d("7.75")) {
		t.Fatalf("expected override undercut 7.75, got %s", got.NewPrice)
	}
}

func TestRoundPriceHalfUp(t *testing.T) {
	cases := map[string]string{
		"9.995": "10",
		"9.994": "9.99",
		"4.985": "4.99",
		"0.105": "0.11",
	}
	for in, want := range cases {
		if got := RoundPrice(d(in)); !got.Equal(d(want)) {
			t.Fatalf("RoundPrice(%s) = %s, want %s", in, got, want)
		}
	}
	if got := RoundPrice(d("9.995")).StringFixed(2); got != "10.00" {
		t.Fatalf("expected 10.00, got %s", got)
	}
}

func TestResolveEligibility(t *testing.T) {
	s := enabledSettings()
	s.Enabled = false
	o := NewOverride("1")
	if p := Resolve("1", s, &o); p.Eligible {
		t.Fatal("global disable must win over override auto_enabled=true")
	}

	s = enabledSettings()
	s.IncludedProducts = []string{"1"}
	o.AutoEnabled = false
	if p := Resolve("1", s, &o); p.Eligible {
		t.Fatal("override auto_enabled=false must veto allow-list membership")
	}

	s.IncludedProducts = []string{"2"}
	if p := Resolve("1", s, nil); p.Eligible {
		t.Fatal("products outside a non-empty allow-list are ineligible")
	}

	s = enabledSettings()
	s.ExcludedProducts = []string{"1"}
	if p := Resolve("1", s, nil); p.Eligible {
		t.Fatal("excluded product must be ineligible")
	}
	if p := Resolve("3", s, nil); !p.Eligible {
		t.Fatal("product with no restrictions should be eligible")
	}
}
