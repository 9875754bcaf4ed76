// Package risk implements the policy gate consulted by both the scanner and
// the execution coordinator, including the per-exchange circuit breaker.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openarb/arbd/internal/domain"
)

// Config holds the gate's thresholds. The gate has no other mutable state
// beyond the circuit-breaker failure tracking.
type Config struct {
	MinProfitPct           float64 // minimum net profit in percent, e.g. 0.3
	MaxTradeAmount         float64 // settlement-currency cap per opportunity
	MinTradeAmount         float64 // below this a candidate is discarded
	SlippageTolerancePct   float64 // per-leg slippage allowance in percent
	UtilizationFraction    float64 // fraction of visible depth we may consume
	MaxConsecutiveFailures int
	ErrorTimeWindow        time.Duration
}

// Gate enforces the configured risk and liquidity policy.
type Gate struct {
	cfg    Config
	wallet domain.Wallet // may be nil; balance checks are then skipped
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	failures map[string]*failureWindow
}

// failureWindow tracks consecutive failures for one exchange.
type failureWindow struct {
	count    int
	lastFail time.Time
	reported bool // breaker trip already reported this window
}

// NewGate creates a Gate. wallet may be nil when no balance source is wired.
func NewGate(cfg Config, wallet domain.Wallet, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		wallet:   wallet,
		logger:   logger.With(slog.String("component", "risk_gate")),
		now:      time.Now,
		failures: make(map[string]*failureWindow),
	}
}

// SetClock overrides the time source. For tests.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// MinProfitRatio returns the scan threshold as a ratio (0.3% -> 0.003).
func (g *Gate) MinProfitRatio() float64 { return g.cfg.MinProfitPct / 100 }

// SlippageRatio returns the per-leg slippage allowance as a ratio.
func (g *Gate) SlippageRatio() float64 { return g.cfg.SlippageTolerancePct / 100 }

// UtilizationFraction returns how much of the visible depth a plan may use.
func (g *Gate) UtilizationFraction() float64 { return g.cfg.UtilizationFraction }

// MinNotional returns the minimum viable trade size.
func (g *Gate) MinNotional() float64 { return g.cfg.MinTradeAmount }

// MaxNotional returns the per-opportunity size cap.
func (g *Gate) MaxNotional() float64 { return g.cfg.MaxTradeAmount }

// AllowScan decides whether a scanner candidate survives policy checks:
// profit threshold, notional bounds, and no degraded exchange on any leg.
func (g *Gate) AllowScan(opp domain.ArbitrageOpportunity) bool {
	if opp.NetProfitRatio < g.MinProfitRatio() {
		return false
	}
	if opp.RequiredNotional < g.cfg.MinTradeAmount {
		return false
	}
	for _, ex := range opp.Exchanges {
		if g.Degraded(ex) {
			return false
		}
	}
	return true
}

// AllowExecution decides whether the coordinator may place the next leg given
// the record so far. It rejects legs against degraded exchanges and, when a
// wallet source is available, legs the account cannot fund.
func (g *Gate) AllowExecution(ctx context.Context, rec domain.ExecutionRecord, next domain.TradeLeg) bool {
	if g.Degraded(next.ExchangeID) {
		g.logger.WarnContext(ctx, "leg blocked: exchange degraded",
			slog.String("exchange", next.ExchangeID),
			slog.String("record_id", rec.ID),
		)
		return false
	}

	if g.wallet == nil {
		return true
	}
	// A buy spends quote currency, a sell spends base currency.
	currency := next.Pair.Quote
	needed := next.Notional()
	if next.Side == domain.OrderSideSell {
		currency = next.Pair.Base
		needed = next.PlannedAmount
	}
	balance, err := g.wallet.AvailableBalance(ctx, next.ExchangeID, currency)
	if err != nil {
		// Balance source unavailable is not grounds to trade blind the other
		// way: log and let the exchange reject if underfunded.
		g.logger.WarnContext(ctx, "balance check unavailable",
			slog.String("exchange", next.ExchangeID),
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		return true
	}
	if balance < needed {
		g.logger.WarnContext(ctx, "leg blocked: insufficient balance",
			slog.String("exchange", next.ExchangeID),
			slog.String("currency", currency),
			slog.Float64("needed", needed),
			slog.Float64("available", balance),
		)
		return false
	}
	return true
}

// RecordFailure counts one execution failure against an exchange. It returns
// true exactly once per window when the failure count crosses the breaker
// threshold, so callers can report the trip.
func (g *Gate) RecordFailure(exchangeID string) (tripped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w := g.failures[exchangeID]
	if w == nil {
		w = &failureWindow{}
		g.failures[exchangeID] = w
	}
	// Failures outside the window start a fresh count.
	if now.Sub(w.lastFail) > g.cfg.ErrorTimeWindow {
		w.count = 0
		w.reported = false
	}
	w.count++
	w.lastFail = now

	if w.count >= g.cfg.MaxConsecutiveFailures && !w.reported {
		w.reported = true
		g.logger.Warn("circuit breaker tripped",
			slog.String("exchange", exchangeID),
			slog.Int("failures", w.count),
		)
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure count for an exchange.
func (g *Gate) RecordSuccess(exchangeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, exchangeID)
}

// Degraded reports whether the circuit breaker is open for an exchange. The
// breaker clears itself once ErrorTimeWindow has passed since the last
// failure.
func (g *Gate) Degraded(exchangeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	w := g.failures[exchangeID]
	if w == nil || w.count < g.cfg.MaxConsecutiveFailures {
		return false
	}
	if g.now().Sub(w.lastFail) > g.cfg.ErrorTimeWindow {
		delete(g.failures, exchangeID)
		return false
	}
	return true
}

// DegradedExchanges returns the exchanges with an open breaker, for the
// status API.
func (g *Gate) DegradedExchanges() []string {
	g.mu.Lock()
	candidates := make([]string, 0, len(g.failures))
	for ex := range g.failures {
		candidates = append(candidates, ex)
	}
	g.mu.Unlock()

	var out []string
	for _, ex := range candidates {
		if g.Degraded(ex) {
			out = append(out, ex)
		}
	}
	return out
}
