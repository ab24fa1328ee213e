package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malganis13/g2a-automation/internal/config"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)
	return store
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.LoadSettings(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	s := pricing.DefaultSettings()
	s.Enabled = true
	s.UndercutAmount = decimal.RequireFromString("0.05")
	s.ExcludedProducts = []string{"10", "10", " 11 "}
	require.NoError(t, store.SaveSettings(ctx, s))

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.UndercutAmount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, []string{"10", "11"}, got.ExcludedProducts)
	assert.Equal(t, 20, got.DailyLimit)
}

func TestProductPolicyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetProductPolicy(ctx, "1001")
	require.ErrorIs(t, err, ErrNotFound)

	o := pricing.NewOverride("1001")
	o.FloorPrice = decimal.NewNullDecimal(decimal.RequireFromString("5.00"))
	require.NoError(t, store.PutProductPolicy(ctx, o))

	got, err := store.GetProductPolicy(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, got.FloorPrice.Valid)
	assert.True(t, got.FloorPrice.Decimal.Equal(decimal.RequireFromString("5")))
	assert.False(t, got.UndercutAmount.Valid)
	assert.True(t, got.AutoEnabled)

	got.AutoEnabled = false
	require.NoError(t, store.PutProductPolicy(ctx, got))
	require.NoError(t, store.PutProductPolicy(ctx, pricing.NewOverride("0999")))

	list, err := store.ListProductPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0999", list[0].ProductID)
	assert.False(t, list[1].AutoEnabled)

	require.NoError(t, store.DeleteProductPolicy(ctx, "1001"))
	_, err = store.GetProductPolicy(ctx, "1001")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedPolicyIsReported(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.db.ExecContext(ctx, `
        INSERT INTO product_policies (product_id, floor_price, auto_enabled, updated_at)
        VALUES ('7', 'abc', 0, ?)`, formatTimestamp(time.Now()))
	require.NoError(t, err)

	_, err = store.GetProductPolicy(ctx, "7")
	require.ErrorIs(t, err, ErrMalformedPolicy)

	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "7", policyErr.ProductID)
	assert.False(t, policyErr.AutoEnabled)
}

func TestIncrementBudgetNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	used, err := store.IncrementBudget(ctx, "2024-05-01", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	used, err = store.IncrementBudget(ctx, "2024-05-01", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	_, err = store.IncrementBudget(ctx, "2024-05-01", 2)
	require.ErrorIs(t, err, ErrLimitReached)

	rec, err := store.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ChangesMade)

	used, err = store.IncrementBudget(ctx, "2024-05-02", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, used, "a new date restarts the count")
}

func TestIncrementBudgetConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementBudget(ctx, "2024-05-01", 5); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	rec, err := store.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.ChangesMade)
}

func TestResetBudget(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.LoadBudget(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.IncrementBudget(ctx, "2024-05-01", 3)
	require.NoError(t, err)
	require.NoError(t, store.ResetBudget(ctx, "2024-05-02"))

	rec, err := store.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", rec.Date)
	assert.Zero(t, rec.ChangesMade)
}

func TestPriceChangeHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []PriceChange{
		{ProductID: "1", OldPrice: dec("5.50"), NewPrice: dec("4.99"), CompetitorPrice: dec("5.00"), Delta: dec("-0.51"), CreatedAt: base},
		{ProductID: "2", OldPrice: dec("3.00"), NewPrice: dec("3.49"), CompetitorPrice: dec("3.50"), Delta: dec("0.49"), CreatedAt: base.Add(time.Hour)},
		{ProductID: "1", OldPrice: dec("4.99"), NewPrice: dec("4.79"), CompetitorPrice: dec("4.80"), Delta: dec("-0.20"), CreatedAt: base.Add(48 * time.Hour)},
	}
	for i := range records {
		records[i].CycleID = "cycle-1"
		saved, err := store.AppendPriceChange(ctx, records[i])
		require.NoError(t, err)
		assert.NotZero(t, saved.ID)
	}

	recent, err := store.ListRecentPriceChanges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].NewPrice.Equal(dec("4.79")))
	assert.Equal(t, base.Add(48*time.Hour), recent[0].CreatedAt)

	window, err := store.ListPriceChangesBetween(ctx, "", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)

	product, err := store.ListPriceChangesBetween(ctx, "1", base, base.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, product, 2)

	stats := Summarize(window)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Increases)
	assert.Equal(t, 1, stats.Decreases)
	assert.True(t, stats.TotalChange.Equal(dec("-0.02")))
	assert.True(t, stats.AvgChange.Equal(dec("-0.01")))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mysql"})
	require.Error(t, err)
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var store *SQLiteStore
	_, err := store.LoadSettings(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
