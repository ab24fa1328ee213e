package repricer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malganis13/g2a-automation/internal/budget"
	"github.com/malganis13/g2a-automation/internal/pricing"
	"github.com/malganis13/g2a-automation/internal/storage"
)

// PolicyView pairs the stored override, if any, with the effective policy.
type PolicyView struct {
	Effective pricing.Policy
	Override  *pricing.Override
}

// Settings returns the stored global settings, or the configured defaults
// when none were saved yet.
func (e *Engine) Settings(ctx context.Context) (pricing.Settings, error) {
	s, err := e.store.LoadSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return e.opts.Defaults, nil
	}
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// SaveSettings validates and persists the global settings.
func (e *Engine) SaveSettings(ctx context.Context, s pricing.Settings) (pricing.Settings, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return pricing.Settings{}, err
	}
	if err := e.store.SaveSettings(ctx, s); err != nil {
		return pricing.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	e.logger.Info().Bool("enabled", s.Enabled).Int("daily_limit", s.DailyLimit).Msg("settings saved")
	return s, nil
}

// ToggleProduct enables or disables auto-pricing for a product through the
// global include and exclude lists.
func (e *Engine) ToggleProduct(ctx context.Context, productID string, enabled bool) (pricing.Settings, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return pricing.Settings{}, errors.New("product id is required")
	}
	s, err := e.Settings(ctx)
	if err != nil {
		return pricing.Settings{}, err
	}
	s.ToggleProduct(productID, enabled)
	return e.SaveSettings(ctx, s)
}

// GetProductPolicy returns the effective policy for a product.
func (e *Engine) GetProductPolicy(ctx context.Context, productID string) (PolicyView, error) {
	s, err := e.Settings(ctx)
	if err != nil {
		return PolicyView{}, err
	}
	o, err := e.override(ctx, productID)
	if err != nil {
		return PolicyView{}, fmt.Errorf("load policy %s: %w", productID, err)
	}
	return PolicyView{Effective: pricing.Resolve(productID, s, o), Override: o}, nil
}

// SetProductPolicy applies a partial update to the product's override,
// creating it when absent.
func (e *Engine) SetProductPolicy(ctx context.Context, productID string, u pricing.OverrideUpdate) (pricing.Override, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return pricing.Override{}, errors.New("product id is required")
	}

	current, err := e.store.GetProductPolicy(ctx, productID)
	var malformed *storage.PolicyError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		current = pricing.NewOverride(productID)
	case errors.As(err, &malformed):
		e.logger.Warn().Err(err).Str("product_id", productID).Msg("replacing unreadable product policy")
		current = pricing.NewOverride(productID)
		current.AutoEnabled = malformed.AutoEnabled
	case err != nil:
		return pricing.Override{}, fmt.Errorf("load policy %s: %w", productID, err)
	}

	next := current.Apply(u)
	next.UpdatedAt = e.opts.Now().UTC()
	if err := next.Validate(); err != nil {
		return pricing.Override{}, err
	}
	if err := e.store.PutProductPolicy(ctx, next); err != nil {
		return pricing.Override{}, fmt.Errorf("save policy %s: %w", productID, err)
	}
	e.logger.Info().Str("product_id", productID).Bool("auto_enabled", next.AutoEnabled).Msg("product policy saved")
	return next, nil
}

// DeleteProductPolicy removes a product's override so the globals apply again.
func (e *Engine) DeleteProductPolicy(ctx context.Context, productID string) error {
	if err := e.store.DeleteProductPolicy(ctx, productID); err != nil {
		return fmt.Errorf("delete policy %s: %w", productID, err)
	}
	return nil
}

// ListProductPolicies returns every stored override.
func (e *Engine) ListProductPolicies(ctx context.Context) ([]pricing.Override, error) {
	return e.store.ListProductPolicies(ctx)
}

// BudgetStatus reports today's budget under the current daily limit.
func (e *Engine) BudgetStatus(ctx context.Context) (budget.Status, error) {
	s, err := e.Settings(ctx)
	if err != nil {
		return budget.Status{}, err
	}
	return e.budget.Status(ctx, s.DailyLimit)
}
