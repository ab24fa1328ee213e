package budget

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malganis13/g2a-automation/internal/storage"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTracker(t *testing.T, c *clock) (*Tracker, *storage.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)
	return New(store, Options{Now: c.now}, zerolog.Nop()), store
}

func TestRecordStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)}
	tracker, _ := newTracker(t, c)

	for i := 1; i <= 2; i++ {
		status, err := tracker.Record(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, i, status.Used)
	}

	_, err := tracker.Record(ctx, 2)
	require.ErrorIs(t, err, ErrExhausted)

	status, err := tracker.Status(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Status{
		Limit:     2,
		Used:      2,
		Remaining: 0,
		Date:      "2024-05-01",
		ResetAt:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.Local),
	}, status)
	assert.True(t, status.Exhausted())
}

func TestMidnightRollover(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 23, 59, 59, 0, time.Local)}
	tracker, store := newTracker(t, c)

	_, err := tracker.Record(ctx, 1)
	require.NoError(t, err)
	_, err = tracker.Record(ctx, 1)
	require.ErrorIs(t, err, ErrExhausted)

	c.t = time.Date(2024, 5, 2, 0, 0, 1, 0, time.Local)
	status, err := tracker.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Used)
	assert.Equal(t, 1, status.Remaining)
	assert.Equal(t, "2024-05-02", status.Date)

	rec, err := store.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", rec.Date, "reading must persist the reset")

	status, err = tracker.Record(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
}

func TestLoweredLimitReportsNoRemaining(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	tracker, _ := newTracker(t, c)

	for i := 0; i < 3; i++ {
		_, err := tracker.Record(ctx, 5)
		require.NoError(t, err)
	}

	status, err := tracker.Status(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Used)
	assert.Equal(t, 0, status.Remaining)

	_, err = tracker.Record(ctx, 2)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestZeroLimitIsExhausted(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	tracker, _ := newTracker(t, c)

	_, err := tracker.Record(context.Background(), 0)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got := NextMidnight(time.Date(2024, 12, 31, 18, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), got)
}
