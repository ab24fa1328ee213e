package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/malganis13/g2a-automation/internal/pricing"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS product_policies (
    product_id      TEXT PRIMARY KEY,
    floor_price     TEXT,
    undercut_amount TEXT,
    auto_enabled    INTEGER NOT NULL DEFAULT 1,
    updated_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_budget (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    budget_date  TEXT NOT NULL,
    changes_made INTEGER NOT NULL DEFAULT 0,
    updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS price_changes (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id         TEXT NOT NULL,
    product_id       TEXT NOT NULL,
    display_name     TEXT NOT NULL DEFAULT '',
    old_price        TEXT NOT NULL,
    new_price        TEXT NOT NULL,
    competitor_price TEXT NOT NULL,
    delta            TEXT NOT NULL,
    reason           TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_changes_created_at ON price_changes (created_at);`

// SQLiteStore keeps every record in a single local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.path is required")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer keeps conditional updates serialised and lets :memory: work
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Migrate creates missing tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// LoadSettings returns the stored settings or ErrNotFound.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (pricing.Settings, error) {
	db, err := s.getDB()
	if err != nil {
		return pricing.Settings{}, err
	}

	var raw string
	err = db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Settings{}, ErrNotFound
	}
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return decodeSettings(raw)
}

// SaveSettings replaces the stored settings in one statement.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings pricing.Settings) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(settings.Normalize())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = db.ExecContext(ctx, `
        INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingsKey, string(raw), formatTimestamp(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GetProductPolicy returns the override for productID or ErrNotFound.
func (s *SQLiteStore) GetProductPolicy(ctx context.Context, productID string) (pricing.Override, error) {
	db, err := s.getDB()
	if err != nil {
		return pricing.Override{}, err
	}

	row := db.QueryRowContext(ctx, `
        SELECT product_id, floor_price, undercut_amount, auto_enabled, updated_at
        FROM product_policies WHERE product_id = ?`, productID)

	o, err := scanSQLiteOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Override{}, ErrNotFound
	}
	return o, err
}

// PutProductPolicy upserts an override.
func (s *SQLiteStore) PutProductPolicy(ctx context.Context, o pricing.Override) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now()
	}

	_, err = db.ExecContext(ctx, `
        INSERT INTO product_policies (product_id, floor_price, undercut_amount, auto_enabled, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(product_id) DO UPDATE SET
            floor_price     = excluded.floor_price,
            undercut_amount = excluded.undercut_amount,
            auto_enabled    = excluded.auto_enabled,
            updated_at      = excluded.updated_at`,
		o.ProductID,
		nullableDecimal(o.FloorPrice),
		nullableDecimal(o.UndercutAmount),
		o.AutoEnabled,
		formatTimestamp(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put product policy %s: %w", o.ProductID, err)
	}
	return nil
}

// DeleteProductPolicy removes an override; missing rows are not an error.
func (s *SQLiteStore) DeleteProductPolicy(ctx context.Context, productID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM product_policies WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("delete product policy %s: %w", productID, err)
	}
	return nil
}

// ListProductPolicies lists overrides ordered by product id.
func (s *SQLiteStore) ListProductPolicies(ctx context.Context) ([]pricing.Override, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT product_id, floor_price, undercut_amount, auto_enabled, updated_at
        FROM product_policies ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list product policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]pricing.Override, 0)
	for rows.Next() {
		o, err := scanSQLiteOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadBudget returns the budget record or ErrNotFound.
func (s *SQLiteStore) LoadBudget(ctx context.Context) (BudgetRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return BudgetRecord{}, err
	}

	var (
		rec     BudgetRecord
		updated string
	)
	err = db.QueryRowContext(ctx, `SELECT budget_date, changes_made, updated_at FROM daily_budget WHERE id = ?`, budgetRowID).
		Scan(&rec.Date, &rec.ChangesMade, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return BudgetRecord{}, ErrNotFound
	}
	if err != nil {
		return BudgetRecord{}, fmt.Errorf("load budget: %w", err)
	}
	if rec.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return BudgetRecord{}, err
	}
	return rec, nil
}

// ResetBudget sets the record to zero changes for date.
func (s *SQLiteStore) ResetBudget(ctx context.Context, date string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO daily_budget (id, budget_date, changes_made, updated_at) VALUES (?, ?, 0, ?)
        ON CONFLICT(id) DO UPDATE SET budget_date = excluded.budget_date, changes_made = 0, updated_at = excluded.updated_at`,
		budgetRowID, date, formatTimestamp(s.now()),
	)
	if err != nil {
		return fmt.Errorf("reset budget: %w", err)
	}
	return nil
}

// IncrementBudget performs the check-and-increment as one conditional upsert.
func (s *SQLiteStore) IncrementBudget(ctx context.Context, date string, limit int) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, ErrLimitReached
	}

	var used int
	err = db.QueryRowContext(ctx, `
        INSERT INTO daily_budget (id, budget_date, changes_made, updated_at) VALUES (?, ?, 1, ?)
        ON CONFLICT(id) DO UPDATE SET
            changes_made = CASE WHEN daily_budget.budget_date = excluded.budget_date
                                THEN daily_budget.changes_made + 1 ELSE 1 END,
            budget_date  = excluded.budget_date,
            updated_at   = excluded.updated_at
        WHERE daily_budget.budget_date <> excluded.budget_date
           OR daily_budget.changes_made < ?
        RETURNING changes_made`,
		budgetRowID, date, formatTimestamp(s.now()), limit,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("increment budget: %w", err)
	}
	return used, nil
}

// AppendPriceChange appends one audit record and returns it with its id.
func (s *SQLiteStore) AppendPriceChange(ctx context.Context, c PriceChange) (PriceChange, error) {
	db, err := s.getDB()
	if err != nil {
		return PriceChange{}, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Microsecond)

	res, err := db.ExecContext(ctx, `
        INSERT INTO price_changes (
            cycle_id, product_id, display_name, old_price, new_price,
            competitor_price, delta, reason, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CycleID,
		c.ProductID,
		c.DisplayName,
		c.OldPrice.String(),
		c.NewPrice.String(),
		c.CompetitorPrice.String(),
		c.Delta.String(),
		c.Reason,
		formatTimestamp(c.CreatedAt),
	)
	if err != nil {
		return PriceChange{}, fmt.Errorf("append price change: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return PriceChange{}, fmt.Errorf("append price change: %w", err)
	}
	return c, nil
}

// ListRecentPriceChanges lists the newest records first.
func (s *SQLiteStore) ListRecentPriceChanges(ctx context.Context, limit int) ([]PriceChange, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT id, cycle_id, product_id, display_name, old_price, new_price,
               competitor_price, delta, reason, created_at
        FROM price_changes
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent price changes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteChanges(rows)
}

// ListPriceChangesBetween lists records in [from, to), optionally for one product.
func (s *SQLiteStore) ListPriceChangesBetween(ctx context.Context, productID string, from, to time.Time) ([]PriceChange, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT id, cycle_id, product_id, display_name, old_price, new_price,
               competitor_price, delta, reason, created_at
        FROM price_changes
        WHERE created_at >= ? AND created_at < ?
          AND (? = '' OR product_id = ?)
        ORDER BY created_at, id`,
		formatTimestamp(from), formatTimestamp(to), productID, productID)
	if err != nil {
		return nil, fmt.Errorf("list price changes between: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteChanges(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOverride(row rowScanner) (pricing.Override, error) {
	var (
		productID string
		floor     sql.NullString
		undercut  sql.NullString
		auto      bool
		updated   string
	)
	if err := row.Scan(&productID, &floor, &undercut, &auto, &updated); err != nil {
		return pricing.Override{}, err
	}
	updatedAt, err := parseTimestamp(updated)
	if err != nil {
		return pricing.Override{}, &PolicyError{ProductID: productID, AutoEnabled: auto, Err: fmt.Errorf("updated_at: %w", err)}
	}
	return buildOverride(productID, floor, undercut, auto, updatedAt)
}

func collectSQLiteChanges(rows *sql.Rows) ([]PriceChange, error) {
	out := make([]PriceChange, 0)
	for rows.Next() {
		var (
			c                                  PriceChange
			oldP, newP, compP, delta, createdS string
		)
		if err := rows.Scan(&c.ID, &c.CycleID, &c.ProductID, &c.DisplayName,
			&oldP, &newP, &compP, &delta, &c.Reason, &createdS); err != nil {
			return nil, err
		}
		if err := parseChangeDecimals(&c, oldP, newP, compP, delta); err != nil {
			return nil, err
		}
		created, err := parseTimestamp(createdS)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = created
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeSettings(raw string) (pricing.Settings, error) {
	settings := pricing.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return pricing.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings.Normalize(), nil
}

func buildOverride(productID string, floor, undercut sql.NullString, auto bool, updatedAt time.Time) (pricing.Override, error) {
	o := pricing.Override{ProductID: productID, AutoEnabled: auto, UpdatedAt: updatedAt}
	var err error
	if o.FloorPrice, err = parseNullDecimal(floor); err != nil {
		return pricing.Override{}, &PolicyError{ProductID: productID, AutoEnabled: auto, Err: fmt.Errorf("floor_price: %w", err)}
	}
	if o.UndercutAmount, err = parseNullDecimal(undercut); err != nil {
		return pricing.Override{}, &PolicyError{ProductID: productID, AutoEnabled: auto, Err: fmt.Errorf("undercut_amount: %w", err)}
	}
	if err := o.Validate(); err != nil {
		return pricing.Override{}, &PolicyError{ProductID: productID, AutoEnabled: auto, Err: err}
	}
	return o, nil
}

func parseNullDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullableDecimal(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func parseChangeDecimals(c *PriceChange, oldP, newP, compP, delta string) error {
	var err error
	if c.OldPrice, err = decimal.NewFromString(oldP); err != nil {
		return fmt.Errorf("parse old price: %w", err)
	}
	if c.NewPrice, err = decimal.NewFromString(newP); err != nil {
		return fmt.Errorf("parse new price: %w", err)
	}
	if c.CompetitorPrice, err = decimal.NewFromString(compP); err != nil {
		return fmt.Errorf("parse competitor price: %w", err)
	}
	if c.Delta, err = decimal.NewFromString(delta); err != nil {
		return fmt.Errorf("parse delta: %w", err)
	}
	return nil
}
