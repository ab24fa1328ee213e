// Package budget tracks how many price changes were applied on the current
// local calendar day.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/malganis13/g2a-automation/internal/storage"
)

// ErrExhausted is returned by Record once the daily limit has been reached.
var ErrExhausted = errors.New("budget: daily change limit reached")

const dateLayout = "2006-01-02"

// Status is a snapshot of the daily budget.
type Status struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Date      string    `json:"date"`
	ResetAt   time.Time `json:"reset_at"`
}

// Exhausted reports whether no change may be applied today.
func (s Status) Exhausted() bool {
	return s.Remaining <= 0
}

// Options tune tracker behaviour.
type Options struct {
	Now func() time.Time
}

// Tracker enforces the daily change limit on top of a BudgetStore.
type Tracker struct {
	store  storage.BudgetStore
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs a Tracker.
func New(store storage.BudgetStore, opts Options, logger zerolog.Logger) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:  store,
		now:    now,
		logger: logger.With().Str("component", "budget").Logger(),
	}
}

// Status returns the budget for today, resetting a record left from a previous day.
func (t *Tracker) Status(ctx context.Context, limit int) (Status, error) {
	now := t.now()
	today := now.Format(dateLayout)

	rec, err := t.store.LoadBudget(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = storage.BudgetRecord{}
	case err != nil:
		return Status{}, fmt.Errorf("load daily budget: %w", err)
	}

	if rec.Date != today {
		if err := t.store.ResetBudget(ctx, today); err != nil {
			return Status{}, fmt.Errorf("reset daily budget: %w", err)
		}
		if rec.Date != "" {
			t.logger.Info().Str("previous_date", rec.Date).Int("previous_used", rec.ChangesMade).
				Str("date", today).Msg("daily budget reset")
		}
		rec = storage.BudgetRecord{Date: today}
	}

	return newStatus(limit, rec.ChangesMade, today, NextMidnight(now)), nil
}

// Record consumes one change from today's budget. It returns ErrExhausted,
// leaving the counter untouched, when the limit is already reached.
func (t *Tracker) Record(ctx context.Context, limit int) (Status, error) {
	if _, err := t.Status(ctx, limit); err != nil {
		return Status{}, err
	}

	now := t.now()
	today := now.Format(dateLayout)
	used, err := t.store.IncrementBudget(ctx, today, limit)
	if errors.Is(err, storage.ErrLimitReached) {
		return Status{}, ErrExhausted
	}
	if err != nil {
		return Status{}, fmt.Errorf("record change: %w", err)
	}

	status := newStatus(limit, used, today, NextMidnight(now))
	t.logger.Debug().Int("used", status.Used).Int("remaining", status.Remaining).Msg("change recorded")
	return status, nil
}

// NextMidnight returns the start of the calendar day after t in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func newStatus(limit, used int, date string, resetAt time.Time) Status {
	if limit < 0 {
		limit = 0
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{Limit: limit, Used: used, Remaining: remaining, Date: date, ResetAt: resetAt}
}
