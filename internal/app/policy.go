package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/malganis13/g2a-automation/internal/pricing"
	"github.com/malganis13/g2a-automation/internal/repricer"
)

// SettingsUpdate is a partial change to the global settings. Nil fields are kept.
type SettingsUpdate struct {
	Enabled             *bool
	UndercutAmount      *decimal.Decimal
	MinPrice            *decimal.Decimal
	MaxPrice            *decimal.Decimal
	DailyLimit          *int
	CycleLimit          *int
	ProtectSingleSeller *bool
}

func (u SettingsUpdate) empty() bool {
	return u == SettingsUpdate{}
}

func (u SettingsUpdate) apply(s pricing.Settings) pricing.Settings {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.UndercutAmount != nil {
		s.UndercutAmount = *u.UndercutAmount
	}
	if u.MinPrice != nil {
		s.MinPrice = *u.MinPrice
	}
	if u.MaxPrice != nil {
		s.MaxPrice = *u.MaxPrice
	}
	if u.DailyLimit != nil {
		s.DailyLimit = *u.DailyLimit
	}
	if u.CycleLimit != nil {
		s.CycleLimit = *u.CycleLimit
	}
	if u.ProtectSingleSeller != nil {
		s.ProtectSingleSeller = *u.ProtectSingleSeller
	}
	return s
}

// ShowSettings prints the global settings in effect.
func (a *App) ShowSettings(ctx context.Context) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		s, err := engine.Settings(ctx)
		if err != nil {
			return err
		}
		a.printSettings(s)
		return nil
	})
}

// UpdateSettings merges u into the stored settings.
func (a *App) UpdateSettings(ctx context.Context, u SettingsUpdate) error {
	if u.empty() {
		return errors.New("nothing to update")
	}
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		s, err := engine.Settings(ctx)
		if err != nil {
			return err
		}
		saved, err := engine.SaveSettings(ctx, u.apply(s))
		if err != nil {
			return err
		}
		a.printSettings(saved)
		return nil
	})
}

// ToggleProduct moves a product between the include and exclude lists.
func (a *App) ToggleProduct(ctx context.Context, productID string, enabled bool) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		s, err := engine.ToggleProduct(ctx, productID, enabled)
		if err != nil {
			return err
		}
		state := "excluded"
		if enabled {
			state = "included"
		}
		a.printf("product %s %s\n", productID, state)
		a.printSettings(s)
		return nil
	})
}

func (a *App) printSettings(s pricing.Settings) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "enabled\t%t\n", s.Enabled)
	fmt.Fprintf(writer, "undercut_amount\t%s\n", s.UndercutAmount.StringFixed(2))
	fmt.Fprintf(writer, "min_price\t%s\n", s.MinPrice.StringFixed(2))
	fmt.Fprintf(writer, "max_price\t%s\n", s.MaxPrice.StringFixed(2))
	fmt.Fprintf(writer, "daily_limit\t%d\n", s.DailyLimit)
	fmt.Fprintf(writer, "cycle_limit\t%d\n", s.CycleLimit)
	fmt.Fprintf(writer, "protect_single_seller\t%t\n", s.ProtectSingleSeller)
	fmt.Fprintf(writer, "excluded_products\t%s\n", joinOrDash(s.ExcludedProducts))
	fmt.Fprintf(writer, "included_products\t%s\n", joinOrDash(s.IncludedProducts))
	writer.Flush()
}

// ShowPolicy prints the effective policy of one product.
func (a *App) ShowPolicy(ctx context.Context, productID string) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		view, err := engine.GetProductPolicy(ctx, productID)
		if err != nil {
			return err
		}
		p := view.Effective
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "product_id\t%s\n", p.ProductID)
		fmt.Fprintf(writer, "eligible\t%t\n", p.Eligible)
		if p.Veto != "" {
			fmt.Fprintf(writer, "reason\t%s\n", p.Veto)
		}
		fmt.Fprintf(writer, "floor\t%s\t%s\n", p.Floor.StringFixed(2), source(view.Override != nil && view.Override.FloorPrice.Valid))
		fmt.Fprintf(writer, "undercut\t%s\t%s\n", p.Undercut.StringFixed(2), source(view.Override != nil && view.Override.UndercutAmount.Valid))
		fmt.Fprintf(writer, "ceiling\t%s\tglobal\n", p.Ceiling.StringFixed(2))
		if view.Override != nil {
			fmt.Fprintf(writer, "auto_enabled\t%t\n", view.Override.AutoEnabled)
			fmt.Fprintf(writer, "updated_at\t%s\n", view.Override.UpdatedAt.Local().Format(time.DateTime))
		}
		writer.Flush()
		return nil
	})
}

// SetPolicy applies a partial update to a product override.
func (a *App) SetPolicy(ctx context.Context, productID string, u pricing.OverrideUpdate) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		o, err := engine.SetProductPolicy(ctx, productID, u)
		if err != nil {
			return err
		}
		a.printf("policy for %s saved (floor %s, undercut %s, auto %t)\n",
			o.ProductID, nullOrDash(o.FloorPrice), nullOrDash(o.UndercutAmount), o.AutoEnabled)
		return nil
	})
}

// DeletePolicy removes a product override.
func (a *App) DeletePolicy(ctx context.Context, productID string) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		if err := engine.DeleteProductPolicy(ctx, productID); err != nil {
			return err
		}
		a.printf("policy for %s deleted\n", productID)
		return nil
	})
}

// ListPolicies prints every stored override.
func (a *App) ListPolicies(ctx context.Context) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		overrides, err := engine.ListProductPolicies(ctx)
		if err != nil {
			return err
		}
		if len(overrides) == 0 {
			fmt.Fprintln(a.Out, "no product policies stored")
			return nil
		}
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Product\tFloor\tUndercut\tAuto\tUpdated")
		for _, o := range overrides {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%t\t%s\n",
				o.ProductID, nullOrDash(o.FloorPrice), nullOrDash(o.UndercutAmount), o.AutoEnabled,
				o.UpdatedAt.Local().Format(time.DateTime))
		}
		writer.Flush()
		return nil
	})
}

// Budget prints today's change budget.
func (a *App) Budget(ctx context.Context) error {
	return a.withEngine(ctx, func(engine *repricer.Engine) error {
		status, err := engine.BudgetStatus(ctx)
		if err != nil {
			return err
		}
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "date\t%s\n", status.Date)
		fmt.Fprintf(writer, "used\t%d\n", status.Used)
		fmt.Fprintf(writer, "limit\t%d\n", status.Limit)
		fmt.Fprintf(writer, "remaining\t%d\n", status.Remaining)
		fmt.Fprintf(writer, "resets_at\t%s\n", status.ResetAt.Format(time.DateTime))
		writer.Flush()
		return nil
	})
}

func source(overridden bool) string {
	if overridden {
		return "product"
	}
	return "global"
}

func nullOrDash(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(2)
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}
