package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/malganis13/g2a-automation/internal/config"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

var (
	// ErrNotConfigured indicates the storage handle was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrNotFound is returned when a record was never written.
	ErrNotFound = errors.New("storage: record not found")
	// ErrLimitReached is returned when a conditional budget increment is refused.
	ErrLimitReached = errors.New("storage: daily limit reached")
	// ErrMalformedPolicy marks a stored override that cannot be decoded.
	ErrMalformedPolicy = errors.New("storage: malformed product policy")
)

// PolicyError describes a stored override that cannot be decoded. The row's
// auto flag is still reported so that a rewrite can keep it.
type PolicyError struct {
	ProductID   string
	AutoEnabled bool
	Err         error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrMalformedPolicy, e.ProductID, e.Err)
}

func (e *PolicyError) Is(target error) bool { return target == ErrMalformedPolicy }

func (e *PolicyError) Unwrap() error { return e.Err }

const (
	settingsKey   = "repricing"
	budgetRowID   = 1
	timestampForm = "2006-01-02T15:04:05.000000Z"
)

// SettingsStore persists the global repricing settings as one record.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (pricing.Settings, error)
	SaveSettings(ctx context.Context, settings pricing.Settings) error
}

// PolicyStore persists per-product overrides keyed by product id.
type PolicyStore interface {
	GetProductPolicy(ctx context.Context, productID string) (pricing.Override, error)
	PutProductPolicy(ctx context.Context, override pricing.Override) error
	DeleteProductPolicy(ctx context.Context, productID string) error
	ListProductPolicies(ctx context.Context) ([]pricing.Override, error)
}

// BudgetStore persists the single daily budget record.
type BudgetStore interface {
	LoadBudget(ctx context.Context) (BudgetRecord, error)
	ResetBudget(ctx context.Context, date string) error
	// IncrementBudget atomically adds one change for date unless limit is reached,
	// restarting the count when the stored date differs.
	IncrementBudget(ctx context.Context, date string, limit int) (int, error)
}

// HistoryStore persists the append-only price change audit trail.
type HistoryStore interface {
	AppendPriceChange(ctx context.Context, change PriceChange) (PriceChange, error)
	ListRecentPriceChanges(ctx context.Context, limit int) ([]PriceChange, error)
	ListPriceChangesBetween(ctx context.Context, productID string, from, to time.Time) ([]PriceChange, error)
}

// Repository aggregates every store the repricer needs.
type Repository interface {
	SettingsStore
	PolicyStore
	BudgetStore
	HistoryStore
	Migrate(ctx context.Context) error
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Open connects the configured backend and applies the schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Repository, error) {
	var (
		repo Repository
		err  error
	)

	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		repo, err = OpenSQLite(ctx, cfg.Path)
	case "postgres", "postgresql":
		var pool *PostgresStore
		pool, err = OpenPostgres(ctx, cfg)
		repo = pool
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	return repo, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampForm)
}

func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(timestampForm, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
