package repricer

import (
	"time"

	"github.com/malganis13/g2a-automation/internal/budget"
	"github.com/malganis13/g2a-automation/internal/gateway"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

// State is the phase of the cycle state machine.
type State int32

const (
	StateIdle State = iota
	StateFetchingOffers
	StateEvaluating
	StateApplying
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingOffers:
		return "fetching_offers"
	case StateEvaluating:
		return "evaluating"
	case StateApplying:
		return "applying"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// Action is a change planned during evaluation.
type Action struct {
	Offer    gateway.Offer
	Policy   pricing.Policy
	Decision pricing.Decision
	Reason   string
}

// Report summarises a cycle.
type Report struct {
	CycleID    string
	DryRun     bool
	LockedOut  bool
	StartedAt  time.Time
	FinishedAt time.Time

	Offers   int
	Outcomes map[pricing.Outcome]int
	Planned  []Action
	Applied  int
	Failed   int
	Errors   int

	Budget budget.Status
	// ResumeAt is set when the daily budget is spent.
	ResumeAt time.Time
}

func newReport(cycleID string, startedAt time.Time, dryRun bool) Report {
	return Report{
		CycleID:   cycleID,
		DryRun:    dryRun,
		StartedAt: startedAt,
		Outcomes:  make(map[pricing.Outcome]int),
	}
}

func (r *Report) count(o pricing.Outcome) {
	r.Outcomes[o]++
}

func (r Report) finish(at time.Time) Report {
	r.FinishedAt = at
	return r
}
