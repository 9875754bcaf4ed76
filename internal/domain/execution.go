package domain

import "time"

// LegStatus tracks what happened to one dispatched leg.
type LegStatus string

const (
	LegStatusFilled   LegStatus = "filled"
	LegStatusRejected LegStatus = "rejected"
	LegStatusTimedOut LegStatus = "timed_out"
	LegStatusSkipped  LegStatus = "skipped" // never dispatched
)

// TradeResult is a TradeLeg after dispatch: the exchange's actual fill price
// and amount, reported distinct from the planned values.
type TradeResult struct {
	TradeLeg
	OrderID        string
	ExecutedAmount float64
	ExecutedPrice  float64
	FeeRate        float64 // taker fee applied, e.g. 0.001
	Status         LegStatus
}

// Filled reports whether the leg executed at all.
func (r TradeResult) Filled() bool {
	return r.Status == LegStatusFilled && r.ExecutedAmount > 0
}

// Outcome is the terminal classification of one execution.
type Outcome string

const (
	// OutcomeProfit: all legs filled and realized profit is positive.
	OutcomeProfit Outcome = "profit"
	// OutcomeLoss: all legs filled but realized profit is not positive.
	OutcomeLoss Outcome = "loss"
	// OutcomePartial: some but not all legs filled; an external unwind of
	// the executed prefix is required.
	OutcomePartial Outcome = "partial"
	// OutcomeAborted: zero legs filled.
	OutcomeAborted Outcome = "aborted"
)

// ExecutionRecord is the append-only account of one execution attempt. It is
// terminal once Outcome is set and is the unit persisted for audit.
type ExecutionRecord struct {
	ID             string
	OpportunityID  string
	Kind           OpportunityKind
	Legs           []TradeResult
	StartedAt      time.Time
	CompletedAt    *time.Time
	Outcome        Outcome
	RealizedProfit float64 // settlement currency, from actual fills
	UnwindRequired bool    // set for partial fills
	Reason         string  // why the execution ended early, if it did
}

// Terminal reports whether the record has reached a final outcome.
func (r ExecutionRecord) Terminal() bool { return r.Outcome != "" }

// FilledLegs returns how many legs actually executed.
func (r ExecutionRecord) FilledLegs() int {
	n := 0
	for _, l := range r.Legs {
		if l.Filled() {
			n++
		}
	}
	return n
}
