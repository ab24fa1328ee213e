package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Override holds per-product values that take precedence over the global settings.
type Override struct {
	ProductID      string
	FloorPrice     decimal.NullDecimal
	UndercutAmount decimal.NullDecimal
	AutoEnabled    bool
	UpdatedAt      time.Time
}

// OverrideUpdate describes a partial change to an override. Nil fields keep the stored value.
type OverrideUpdate struct {
	FloorPrice     *decimal.Decimal
	UndercutAmount *decimal.Decimal
	AutoEnabled    *bool
	ClearFloor     bool
	ClearUndercut  bool
}

// NewOverride returns an override with auto-pricing enabled and no individual values.
func NewOverride(productID string) Override {
	return Override{ProductID: strings.TrimSpace(productID), AutoEnabled: true}
}

// Apply merges an update into the override.
func (o Override) Apply(u OverrideUpdate) Override {
	if u.ClearFloor {
		o.FloorPrice = decimal.NullDecimal{}
	}
	if u.FloorPrice != nil {
		o.FloorPrice = decimal.NewNullDecimal(*u.FloorPrice)
	}
	if u.ClearUndercut {
		o.UndercutAmount = decimal.NullDecimal{}
	}
	if u.UndercutAmount != nil {
		o.UndercutAmount = decimal.NewNullDecimal(*u.UndercutAmount)
	}
	if u.AutoEnabled != nil {
		o.AutoEnabled = *u.AutoEnabled
	}
	return o
}

// Validate rejects overrides that cannot be used for a decision.
func (o Override) Validate() error {
	if o.ProductID == "" {
		return errors.New("product id is required")
	}
	if o.FloorPrice.Valid && o.FloorPrice.Decimal.IsNegative() {
		return errors.New("floor price cannot be negative")
	}
	if o.UndercutAmount.Valid && o.UndercutAmount.Decimal.IsNegative() {
		return errors.New("undercut amount cannot be negative")
	}
	if o.FloorPrice.Valid && !InCents(o.FloorPrice.Decimal) {
		return errors.New("floor price must be a whole number of cents")
	}
	if o.UndercutAmount.Valid && !InCents(o.UndercutAmount.Decimal) {
		return errors.New("undercut amount must be a whole number of cents")
	}
	return nil
}
