package pricing

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Settings is the global repricing configuration persisted by the settings store.
type Settings struct {
	Enabled             bool            `json:"enabled"`
	UndercutAmount      decimal.Decimal `json:"undercut_amount"`
	MinPrice            decimal.Decimal `json:"min_price"`
	MaxPrice            decimal.Decimal `json:"max_price"`
	DailyLimit          int             `json:"daily_limit"`
	CycleLimit          int             `json:"cycle_limit"`
	ProtectSingleSeller bool            `json:"protect_single_seller"`
	ExcludedProducts    []string        `json:"excluded_products"`
	IncludedProducts    []string        `json:"included_products"`
}

// DefaultSettings returns the hard defaults used when nothing has been stored yet.
func DefaultSettings() Settings {
	return Settings{
		Enabled:             false,
		UndercutAmount:      decimal.RequireFromString("0.01"),
		MinPrice:            decimal.RequireFromString("0.10"),
		MaxPrice:            decimal.RequireFromString("100.00"),
		DailyLimit:          20,
		CycleLimit:          0,
		ProtectSingleSeller: true,
		ExcludedProducts:    []string{},
		IncludedProducts:    []string{},
	}
}

// Validate reports configuration that would make price decisions meaningless.
func (s Settings) Validate() error {
	if s.UndercutAmount.IsNegative() {
		return errors.New("undercut_amount cannot be negative")
	}
	if s.MinPrice.IsNegative() {
		return errors.New("min_price cannot be negative")
	}
	if !s.MaxPrice.IsPositive() {
		return errors.New("max_price must be greater than zero")
	}
	if s.MaxPrice.LessThan(s.MinPrice) {
		return fmt.Errorf("max_price %s is below min_price %s", s.MaxPrice.StringFixed(2), s.MinPrice.StringFixed(2))
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"undercut_amount", s.UndercutAmount},
		{"min_price", s.MinPrice},
		{"max_price", s.MaxPrice},
	} {
		if !InCents(f.v) {
			return fmt.Errorf("%s %s must be a whole number of cents", f.name, f.v)
		}
	}
	if s.DailyLimit < 0 {
		return errors.New("daily_limit cannot be negative")
	}
	if s.CycleLimit < 0 {
		return errors.New("cycle_limit cannot be negative")
	}
	return nil
}

// Normalize trims product lists and drops duplicates so lookups stay exact.
func (s Settings) Normalize() Settings {
	s.ExcludedProducts = normalizeIDs(s.ExcludedProducts)
	s.IncludedProducts = normalizeIDs(s.IncludedProducts)
	return s
}

// Permits applies the global part of the eligibility rule.
func (s Settings) Permits(productID string) (bool, string) {
	if !s.Enabled {
		return false, "repricing disabled"
	}
	if slices.Contains(s.ExcludedProducts, productID) {
		return false, "product excluded"
	}
	if len(s.IncludedProducts) > 0 && !slices.Contains(s.IncludedProducts, productID) {
		return false, "product not in allow-list"
	}
	return true, ""
}

// ToggleProduct moves a product between the allow and deny lists. Enabling a
// product only extends the allow-list when one is already in use.
func (s *Settings) ToggleProduct(productID string, enabled bool) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return
	}
	if enabled {
		s.ExcludedProducts = remove(s.ExcludedProducts, productID)
		if len(s.IncludedProducts) > 0 && !slices.Contains(s.IncludedProducts, productID) {
			s.IncludedProducts = append(s.IncludedProducts, productID)
		}
		return
	}
	s.IncludedProducts = remove(s.IncludedProducts, productID)
	if !slices.Contains(s.ExcludedProducts, productID) {
		s.ExcludedProducts = append(s.ExcludedProducts, productID)
	}
}

func remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
