package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malganis13/g2a-automation/internal/config"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
        name       TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS product_policies (
        product_id      TEXT PRIMARY KEY,
        floor_price     NUMERIC(12,2),
        undercut_amount NUMERIC(12,2),
        auto_enabled    BOOLEAN NOT NULL DEFAULT TRUE,
        updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS daily_budget (
        id           SMALLINT PRIMARY KEY CHECK (id = 1),
        budget_date  TEXT NOT NULL,
        changes_made INTEGER NOT NULL DEFAULT 0,
        updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS price_changes (
        id               BIGSERIAL PRIMARY KEY,
        cycle_id         TEXT NOT NULL,
        product_id       TEXT NOT NULL,
        display_name     TEXT NOT NULL DEFAULT '',
        old_price        NUMERIC(12,2) NOT NULL,
        new_price        NUMERIC(12,2) NOT NULL,
        competitor_price NUMERIC(12,2) NOT NULL,
        delta            NUMERIC(12,2) NOT NULL,
        reason           TEXT NOT NULL DEFAULT '',
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_price_changes_created_at ON price_changes (created_at);`,
}

const (
	loadSettingsSQL = `SELECT value::text FROM settings WHERE name = $1;`

	saveSettingsSQL = `INSERT INTO settings (name, value, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (name) DO UPDATE
    SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;`

	selectPolicyColumns = `SELECT product_id, floor_price::text, undercut_amount::text, auto_enabled, updated_at
    FROM product_policies`

	upsertPolicySQL = `INSERT INTO product_policies (
        product_id,
        floor_price,
        undercut_amount,
        auto_enabled,
        updated_at
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (product_id) DO UPDATE
    SET
        floor_price     = EXCLUDED.floor_price,
        undercut_amount = EXCLUDED.undercut_amount,
        auto_enabled    = EXCLUDED.auto_enabled,
        updated_at      = EXCLUDED.updated_at;`

	deletePolicySQL = `DELETE FROM product_policies WHERE product_id = $1;`

	loadBudgetSQL = `SELECT budget_date, changes_made, updated_at FROM daily_budget WHERE id = $1;`

	resetBudgetSQL = `INSERT INTO daily_budget (id, budget_date, changes_made, updated_at)
    VALUES ($1, $2, 0, $3)
    ON CONFLICT (id) DO UPDATE
    SET budget_date = EXCLUDED.budget_date, changes_made = 0, updated_at = EXCLUDED.updated_at;`

	incrementBudgetSQL = `INSERT INTO daily_budget (id, budget_date, changes_made, updated_at)
    VALUES ($1, $2, 1, $3)
    ON CONFLICT (id) DO UPDATE
    SET
        changes_made = CASE WHEN daily_budget.budget_date = EXCLUDED.budget_date
                            THEN daily_budget.changes_made + 1 ELSE 1 END,
        budget_date  = EXCLUDED.budget_date,
        updated_at   = EXCLUDED.updated_at
    WHERE daily_budget.budget_date <> EXCLUDED.budget_date
       OR daily_budget.changes_made < $4
    RETURNING changes_made;`

	insertPriceChangeSQL = `INSERT INTO price_changes (
        cycle_id,
        product_id,
        display_name,
        old_price,
        new_price,
        competitor_price,
        delta,
        reason,
        created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id;`

	selectChangeColumns = `SELECT
        id,
        cycle_id,
        product_id,
        display_name,
        old_price::text,
        new_price::text,
        competitor_price::text,
        delta::text,
        reason,
        created_at
    FROM price_changes`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore keeps the repricer records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ Repository     = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)

// OpenPostgres builds a pool and wraps it in a PostgresStore.
func OpenPostgres(ctx context.Context, cfg config.StorageConfig) (*PostgresStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// LoadSettings returns the stored settings or ErrNotFound.
func (s *PostgresStore) LoadSettings(ctx context.Context) (pricing.Settings, error) {
	pool, err := s.getPool()
	if err != nil {
		return pricing.Settings{}, err
	}

	var raw string
	err = pool.QueryRow(ctx, loadSettingsSQL, settingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Settings{}, ErrNotFound
	}
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return decodeSettings(raw)
}

// SaveSettings replaces the stored settings in one statement.
func (s *PostgresStore) SaveSettings(ctx context.Context, settings pricing.Settings) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(settings.Normalize())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := pool.Exec(ctx, saveSettingsSQL, settingsKey, string(raw), s.now()); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GetProductPolicy returns the override for productID or ErrNotFound.
func (s *PostgresStore) GetProductPolicy(ctx context.Context, productID string) (pricing.Override, error) {
	pool, err := s.getPool()
	if err != nil {
		return pricing.Override{}, err
	}

	row := pool.QueryRow(ctx, selectPolicyColumns+` WHERE product_id = $1;`, productID)
	o, err := scanPostgresOverride(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Override{}, ErrNotFound
	}
	return o, err
}

// PutProductPolicy upserts an override.
func (s *PostgresStore) PutProductPolicy(ctx context.Context, o pricing.Override) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now()
	}

	_, err = pool.Exec(ctx, upsertPolicySQL,
		o.ProductID,
		nullableDecimal(o.FloorPrice),
		nullableDecimal(o.UndercutAmount),
		o.AutoEnabled,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put product policy %s: %w", o.ProductID, err)
	}
	return nil
}

// DeleteProductPolicy removes an override; missing rows are not an error.
func (s *PostgresStore) DeleteProductPolicy(ctx context.Context, productID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deletePolicySQL, productID); err != nil {
		return fmt.Errorf("delete product policy %s: %w", productID, err)
	}
	return nil
}

// ListProductPolicies lists overrides ordered by product id.
func (s *PostgresStore) ListProductPolicies(ctx context.Context) ([]pricing.Override, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, selectPolicyColumns+` ORDER BY product_id;`)
	if err != nil {
		return nil, fmt.Errorf("list product policies: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.Override, 0)
	for rows.Next() {
		o, err := scanPostgresOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// LoadBudget returns the budget record or ErrNotFound.
func (s *PostgresStore) LoadBudget(ctx context.Context) (BudgetRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return BudgetRecord{}, err
	}

	var rec BudgetRecord
	err = pool.QueryRow(ctx, loadBudgetSQL, budgetRowID).Scan(&rec.Date, &rec.ChangesMade, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BudgetRecord{}, ErrNotFound
	}
	if err != nil {
		return BudgetRecord{}, fmt.Errorf("load budget: %w", err)
	}
	return rec, nil
}

// ResetBudget sets the record to zero changes for date.
func (s *PostgresStore) ResetBudget(ctx context.Context, date string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, resetBudgetSQL, budgetRowID, date, s.now()); err != nil {
		return fmt.Errorf("reset budget: %w", err)
	}
	return nil
}

// IncrementBudget performs the check-and-increment as one conditional upsert.
func (s *PostgresStore) IncrementBudget(ctx context.Context, date string, limit int) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, ErrLimitReached
	}

	var used int
	err = pool.QueryRow(ctx, incrementBudgetSQL, budgetRowID, date, s.now(), limit).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("increment budget: %w", err)
	}
	return used, nil
}

// AppendPriceChange appends one audit record and returns it with its id.
func (s *PostgresStore) AppendPriceChange(ctx context.Context, c PriceChange) (PriceChange, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceChange{}, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Microsecond)

	err = pool.QueryRow(ctx, insertPriceChangeSQL,
		c.CycleID,
		c.ProductID,
		c.DisplayName,
		c.OldPrice.String(),
		c.NewPrice.String(),
		c.CompetitorPrice.String(),
		c.Delta.String(),
		c.Reason,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return PriceChange{}, fmt.Errorf("append price change: %w", err)
	}
	return c, nil
}

// ListRecentPriceChanges lists the newest records first.
func (s *PostgresStore) ListRecentPriceChanges(ctx context.Context, limit int) ([]PriceChange, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, selectChangeColumns+` ORDER BY created_at DESC, id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent price changes: %w", err)
	}
	defer rows.Close()
	return collectPostgresChanges(rows)
}

// ListPriceChangesBetween lists records in [from, to), optionally for one product.
func (s *PostgresStore) ListPriceChangesBetween(ctx context.Context, productID string, from, to time.Time) ([]PriceChange, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, selectChangeColumns+`
    WHERE created_at >= $1
      AND created_at < $2
      AND ($3 = '' OR product_id = $3)
    ORDER BY created_at, id;`, from, to, productID)
	if err != nil {
		return nil, fmt.Errorf("list price changes between: %w", err)
	}
	defer rows.Close()
	return collectPostgresChanges(rows)
}

func scanPostgresOverride(row pgx.Row) (pricing.Override, error) {
	var (
		productID string
		floor     sql.NullString
		undercut  sql.NullString
		auto      bool
		updatedAt time.Time
	)
	if err := row.Scan(&productID, &floor, &undercut, &auto, &updatedAt); err != nil {
		return pricing.Override{}, err
	}
	return buildOverride(productID, floor, undercut, auto, updatedAt)
}

func collectPostgresChanges(rows pgx.Rows) ([]PriceChange, error) {
	out := make([]PriceChange, 0)
	for rows.Next() {
		var (
			c                        PriceChange
			oldP, newP, compP, delta string
		)
		if err := rows.Scan(&c.ID, &c.CycleID, &c.ProductID, &c.DisplayName,
			&oldP, &newP, &compP, &delta, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := parseChangeDecimals(&c, oldP, newP, compP, delta); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
