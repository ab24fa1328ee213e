// Package repricer runs repricing cycles: it lists the seller's offers,
// decides a new price for each eligible one and applies the changes within
// the daily budget.
package repricer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/malganis13/g2a-automation/internal/budget"
	"github.com/malganis13/g2a-automation/internal/gateway"
	"github.com/malganis13/g2a-automation/internal/pricing"
	"github.com/malganis13/g2a-automation/internal/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while one is running.
var ErrCycleInProgress = errors.New("repricer: cycle already in progress")

// Gateway is the part of the marketplace client the engine needs.
type Gateway interface {
	ListOffers(ctx context.Context) (gateway.OfferList, error)
	GetCompetitorQuote(ctx context.Context, productID string) (pricing.Quote, error)
	UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal, kind string, regions gateway.RegionPassthrough) (gateway.UpdateResult, error)
}

var _ Gateway = (*gateway.Client)(nil)

// Store is the persistence the engine reads settings and overrides from and
// writes history to.
type Store interface {
	storage.SettingsStore
	storage.PolicyStore
	storage.HistoryStore
}

// Change describes one applied price change.
type Change struct {
	CycleID         string
	OfferID         string
	ProductID       string
	DisplayName     string
	OldPrice        decimal.Decimal
	NewPrice        decimal.Decimal
	CompetitorPrice decimal.Decimal
	Delta           decimal.Decimal
	Reason          string
	At              time.Time
}

// Listener receives every applied change. Listeners run synchronously on
// the cycle goroutine; a panicking listener is logged and ignored.
type Listener func(ctx context.Context, change Change)

// Options tune engine behaviour.
type Options struct {
	// Defaults apply until settings are written to the store.
	Defaults pricing.Settings
	// ChangePause spaces successive price updates.
	ChangePause time.Duration
	// LockKey enables a cross-process advisory lock when the store supports it.
	LockKey int64
	Now     func() time.Time
}

// Engine is the repricing state machine.
type Engine struct {
	gw     Gateway
	store  Store
	budget *budget.Tracker
	locker storage.AdvisoryLocker
	opts   Options
	logger zerolog.Logger

	running atomic.Bool
	state   atomic.Int32

	mu        sync.RWMutex
	listeners []Listener
}

// New constructs an Engine.
func New(gw Gateway, store Store, tracker *budget.Tracker, opts Options, logger zerolog.Logger) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ChangePause < 0 {
		opts.ChangePause = 0
	}
	if opts.Defaults.MaxPrice.IsZero() {
		opts.Defaults = pricing.DefaultSettings()
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Engine{
		gw:     gw,
		store:  store,
		budget: tracker,
		locker: locker,
		opts:   opts,
		logger: logger.With().Str("component", "repricer").Logger(),
	}
}

// OnPriceChanged registers a listener for applied changes.
func (e *Engine) OnPriceChanged(fn Listener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// State reports the current cycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Tick adapts RunCycle to the scheduler, returning when the next cycle may
// do productive work if that is later than the regular interval.
func (e *Engine) Tick(ctx context.Context, _ time.Time) (time.Time, error) {
	report, err := e.RunCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		e.logger.Warn().Msg("previous cycle still running; tick skipped")
		return time.Time{}, nil
	}
	return report.ResumeAt, err
}

// RunCycle runs one full cycle and applies the planned changes.
func (e *Engine) RunCycle(ctx context.Context) (Report, error) {
	return e.run(ctx, false)
}

// Plan runs the evaluation part of a cycle without applying anything.
func (e *Engine) Plan(ctx context.Context) (Report, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, dryRun bool) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, ErrCycleInProgress
	}
	defer func() {
		e.setState(StateIdle)
		e.running.Store(false)
	}()

	report := newReport(uuid.NewString(), e.opts.Now(), dryRun)
	log := e.logger.With().Str("cycle_id", report.CycleID).Bool("dry_run", dryRun).Logger()

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		log.Info().Msg("skip cycle because advisory lock held elsewhere")
		report.LockedOut = true
		return report.finish(e.opts.Now()), nil
	}
	if unlock != nil {
		defer unlock()
	}

	settings, err := e.Settings(ctx)
	if err != nil {
		return report, err
	}

	status, err := e.budget.Status(ctx, settings.DailyLimit)
	if err != nil {
		return report, err
	}
	report.Budget = status
	if status.Exhausted() {
		report.ResumeAt = status.ResetAt
		log.Info().Int("used", status.Used).Int("limit", status.Limit).Time("resume_at", report.ResumeAt).
			Msg("daily change limit reached; sleeping until midnight")
		return report.finish(e.opts.Now()), nil
	}

	capacity := status.Remaining
	if settings.CycleLimit > 0 && settings.CycleLimit < capacity {
		capacity = settings.CycleLimit
	}

	e.setState(StateFetchingOffers)
	listed, err := e.gw.ListOffers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("offer listing failed; cycle aborted")
		return report, fmt.Errorf("list offers: %w", err)
	}
	offers := listed.Unique()
	if dup := len(listed) - len(offers); dup > 0 {
		log.Warn().Int("duplicates", dup).Msg("several offers for one product; only the first listed is repriced")
	}
	report.Offers = len(offers)

	// Rejected updates leave budget unspent, so evaluation resumes after the
	// last examined offer until the capacity is used or the listing runs out.
	pace := newPacer(e.opts.ChangePause)
	for next := 0; next < len(offers); {
		e.setState(StateEvaluating)
		plan, examined, err := e.evaluate(ctx, log, offers[next:], settings, capacity-report.Applied, &report)
		next += examined
		report.Planned = append(report.Planned, plan...)
		if err != nil {
			log.Error().Err(err).Msg("evaluation aborted")
			return report, err
		}
		if dryRun || len(plan) == 0 {
			break
		}

		e.setState(StateApplying)
		halted, err := e.apply(ctx, log, pace, plan, settings, &report)
		if err != nil {
			log.Error().Err(err).Msg("apply aborted")
			return report, err
		}
		if halted || report.Applied >= capacity {
			break
		}
	}

	e.setState(StateReporting)
	if status, err := e.budget.Status(ctx, settings.DailyLimit); err == nil {
		report.Budget = status
		if status.Exhausted() {
			report.ResumeAt = status.ResetAt
		}
	} else {
		log.Warn().Err(err).Msg("budget status unavailable after cycle")
	}

	report = report.finish(e.opts.Now())
	log.Info().
		Int("offers", report.Offers).
		Int("planned", len(report.Planned)).
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Int("errors", report.Errors).
		Int("budget_used", report.Budget.Used).
		Int("budget_remaining", report.Budget.Remaining).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle complete")
	return report, nil
}

// evaluate walks offers in listing order until capacity changes are planned
// and reports how many offers it examined. Only auth failures and
// cancellation stop it early.
func (e *Engine) evaluate(ctx context.Context, log zerolog.Logger, offers gateway.OfferList, settings pricing.Settings, capacity int, report *Report) ([]Action, int, error) {
	plan := make([]Action, 0, capacity)

	examined := 0
	for _, offer := range offers {
		if err := ctx.Err(); err != nil {
			return plan, examined, err
		}
		if len(plan) >= capacity {
			log.Info().Int("capacity", capacity).Msg("change budget for this cycle filled")
			break
		}
		examined++
		plog := log.With().Str("product_id", offer.ProductID).Str("offer_id", offer.OfferID).Logger()

		if !offer.Active {
			report.count(pricing.OutcomeInactive)
			continue
		}

		override, err := e.override(ctx, offer.ProductID)
		if err != nil {
			plog.Error().Err(err).Msg("product policy unreadable; product skipped")
			report.Errors++
			continue
		}

		policy := pricing.Resolve(offer.ProductID, settings, override)
		if !policy.Eligible {
			plog.Debug().Str("reason", policy.Veto).Msg("product not eligible")
			report.count(pricing.OutcomeIneligible)
			continue
		}

		quote, err := e.gw.GetCompetitorQuote(ctx, offer.ProductID)
		if err != nil {
			if gateway.IsAuth(err) || ctx.Err() != nil {
				return plan, examined, err
			}
			plog.Warn().Err(err).Msg("competitor quote failed; product skipped")
			report.Errors++
			continue
		}

		decision := pricing.Decide(policy, offer.CurrentPrice, quote)
		report.count(decision.Outcome)

		switch decision.Outcome {
		case pricing.OutcomeChange:
			plan = append(plan, Action{Offer: offer, Policy: policy, Decision: decision, Reason: reasonFor(policy, decision)})
			plog.Info().
				Str("old_price", decision.Current.StringFixed(2)).
				Str("new_price", decision.NewPrice.StringFixed(2)).
				Str("competitor_price", decision.Competitor.StringFixed(2)).
				Msg("price change planned")
		case pricing.OutcomeBelowFloor:
			plog.Info().
				Str("candidate", decision.Candidate.StringFixed(2)).
				Str("floor", decision.Floor.StringFixed(2)).
				Msg("candidate below floor; product left alone")
		default:
			plog.Debug().Str("outcome", string(decision.Outcome)).Msg("no change")
		}
	}
	return plan, examined, nil
}

// apply pushes planned changes one by one, pausing between updates. A
// failed update consumes no budget. halted reports that the budget could not
// be recorded and no further changes may be made this cycle.
func (e *Engine) apply(ctx context.Context, log zerolog.Logger, pace pacer, plan []Action, settings pricing.Settings, report *Report) (halted bool, err error) {
	for _, action := range plan {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := pace.Wait(ctx); err != nil {
			return false, err
		}

		offer, d := action.Offer, action.Decision
		plog := log.With().Str("product_id", offer.ProductID).Str("offer_id", offer.OfferID).Logger()

		res, err := e.gw.UpdateOfferPrice(ctx, offer.OfferID, d.NewPrice, offer.Kind, offer.Passthrough())
		if err != nil {
			if gateway.IsAuth(err) || ctx.Err() != nil {
				return false, err
			}
			plog.Error().Err(err).Msg("price update failed")
			report.Failed++
			continue
		}
		if !res.Applied {
			plog.Error().Int("status", res.Status).Str("body", res.Message).Msg("price update rejected")
			report.Failed++
			continue
		}

		report.Applied++
		if _, err := e.budget.Record(ctx, settings.DailyLimit); err != nil {
			// the update already happened; keep the record and stop spending
			plog.Error().Err(err).Msg("could not record change against daily budget")
			e.publish(ctx, log, report.CycleID, action)
			return true, nil
		}
		e.publish(ctx, log, report.CycleID, action)
	}
	return false, nil
}

func (e *Engine) publish(ctx context.Context, log zerolog.Logger, cycleID string, action Action) {
	d := action.Decision
	change := Change{
		CycleID:         cycleID,
		OfferID:         action.Offer.OfferID,
		ProductID:       action.Offer.ProductID,
		DisplayName:     action.Offer.DisplayName,
		OldPrice:        d.Current,
		NewPrice:        d.NewPrice,
		CompetitorPrice: d.Competitor,
		Delta:           d.Delta(),
		Reason:          action.Reason,
		At:              e.opts.Now(),
	}

	if _, err := e.store.AppendPriceChange(ctx, storage.PriceChange{
		CycleID:         change.CycleID,
		ProductID:       change.ProductID,
		DisplayName:     change.DisplayName,
		OldPrice:        change.OldPrice,
		NewPrice:        change.NewPrice,
		CompetitorPrice: change.CompetitorPrice,
		Delta:           change.Delta,
		Reason:          change.Reason,
		CreatedAt:       change.At,
	}); err != nil {
		log.Error().Err(err).Str("product_id", change.ProductID).Msg("failed to append price change record")
	}

	log.Info().
		Str("product_id", change.ProductID).
		Str("old_price", change.OldPrice.StringFixed(2)).
		Str("new_price", change.NewPrice.StringFixed(2)).
		Str("competitor_price", change.CompetitorPrice.StringFixed(2)).
		Str("reason", change.Reason).
		Msg("price changed")

	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		e.notify(ctx, log, fn, change)
	}
}

func (e *Engine) notify(ctx context.Context, log zerolog.Logger, fn Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("product_id", change.ProductID).Msg("price change listener panicked")
		}
	}()
	fn(ctx, change)
}

func (e *Engine) override(ctx context.Context, productID string) (*pricing.Override, error) {
	o, err := e.store.GetProductPolicy(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func reasonFor(p pricing.Policy, d pricing.Decision) string {
	if d.Candidate.GreaterThan(p.Ceiling) {
		return fmt.Sprintf("capped at max price %s (competitor %s)", p.Ceiling.StringFixed(2), d.Competitor.StringFixed(2))
	}
	return fmt.Sprintf("undercut competitor %s by %s", d.Competitor.StringFixed(2), p.Undercut.StringFixed(2))
}
