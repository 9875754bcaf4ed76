// Package executor drives a selected opportunity through validation, ordered
// leg placement, and verification, producing a terminal ExecutionRecord for
// every attempt. Legs are placed strictly sequentially — each leg's output
// currency funds the next — under a per-exchange lock held only for the
// duration of that leg's placement.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openarb/arbd/internal/domain"
)

// Gate is the slice of the risk gate the coordinator consults.
type Gate interface {
	MinProfitRatio() float64
	AllowExecution(ctx context.Context, rec domain.ExecutionRecord, next domain.TradeLeg) bool
	RecordFailure(exchangeID string) (tripped bool)
	RecordSuccess(exchangeID string)
}

// Config holds the coordinator's execution parameters.
type Config struct {
	SettlementCurrency string
	// LegTimeout bounds each order placement. A leg exceeding it is treated
	// as failed, never retried: automatic retry risks double execution.
	LegTimeout time.Duration
	// LockTTL bounds how long a distributed per-exchange lock may be held.
	LockTTL time.Duration
	// MaxOpportunityAge is the opportunity lifetime; older plans abort.
	MaxOpportunityAge time.Duration
	// RevalidationFraction of the minimum profit ratio is the floor the
	// re-validated net ratio must still clear before any order is placed.
	RevalidationFraction float64
	TakerFees            map[string]float64
	DefaultFee           float64
}

// Coordinator owns one ExecutionRecord per execution attempt and hands the
// terminal record to the store and monitor.
type Coordinator struct {
	market  map[string]domain.MarketData
	trading map[string]domain.Trading
	gate    Gate
	locks   domain.LockManager
	store   domain.ExecutionStore
	monitor domain.Monitor
	bus     domain.SignalBus // optional
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator creates a Coordinator over the given adapters. bus may be
// nil; the others must not be.
func NewCoordinator(
	market []domain.MarketData,
	trading []domain.Trading,
	gate Gate,
	locks domain.LockManager,
	store domain.ExecutionStore,
	monitor domain.Monitor,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	c := &Coordinator{
		market:  make(map[string]domain.MarketData, len(market)),
		trading: make(map[string]domain.Trading, len(trading)),
		gate:    gate,
		locks:   locks,
		store:   store,
		monitor: monitor,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "coordinator")),
		now:     time.Now,
	}
	for _, m := range market {
		c.market[m.ExchangeID()] = m
	}
	for _, t := range trading {
		c.trading[t.ExchangeID()] = t
	}
	return c
}

// SetClock overrides the time source. For tests.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Recover marks every persisted record without a terminal outcome as aborted.
// Called once at startup; a mid-flight multi-leg trade is never resumed.
func (c *Coordinator) Recover(ctx context.Context) error {
	n, err := c.store.MarkStaleAborted(ctx)
	if err != nil {
		return fmt.Errorf("executor: recover stale records: %w", err)
	}
	if n > 0 {
		c.logger.Warn("aborted stale in-flight executions from previous run", slog.Int64("count", n))
	}
	return nil
}

// Execute drives one opportunity to a terminal record. The returned error is
// non-nil only for infrastructure problems (e.g. persistence); a losing or
// aborted execution is a normal outcome, not an error.
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ExecutionRecord, error) {
	rec := domain.ExecutionRecord{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Kind:          opp.Kind,
		StartedAt:     c.now().UTC(),
	}
	log := c.logger.With(
		slog.String("record_id", rec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("kind", string(opp.Kind)),
	)

	// Validating: re-check against fresh quotes before touching the market.
	if reason, ok := c.validate(ctx, opp); !ok {
		// Expired profit is expected churn, not an operator-facing error.
		log.Info("execution aborted before any order", slog.String("reason", reason))
		rec.Reason = reason
		for _, leg := range opp.Legs {
			rec.Legs = append(rec.Legs, domain.TradeResult{TradeLeg: leg, Status: domain.LegStatusSkipped})
		}
		return c.finalize(ctx, rec, log)
	}

	// Persist the open record before touching the market, so a crash
	// mid-flight leaves a row for the startup sweep to abort.
	if err := c.store.Append(ctx, rec); err != nil {
		log.Warn("open record persistence failed", slog.String("error", err.Error()))
	}

	// Executing: legs in planned order, stop at the first failure.
	c.placeLegs(ctx, opp, &rec, log)

	return c.finalize(ctx, rec, log)
}

// validate re-fetches quotes for exactly the opportunity's legs and recomputes
// the net profit ratio. It returns ok=false with a reason when the plan must
// abort without placing any order.
func (c *Coordinator) validate(ctx context.Context, opp domain.ArbitrageOpportunity) (reason string, ok bool) {
	now := c.now()
	if opp.Expired(now, c.cfg.MaxOpportunityAge) {
		return "opportunity expired", false
	}

	product := 1.0
	for _, leg := range opp.Legs {
		src, found := c.market[leg.ExchangeID]
		if !found {
			return fmt.Sprintf("no market data adapter for %s", leg.ExchangeID), false
		}
		q, err := src.Ticker(ctx, leg.Pair)
		if err != nil {
			return fmt.Sprintf("%v: %s %s", domain.ErrDataUnavailable, leg.ExchangeID, leg.Pair.Symbol()), false
		}
		fee := c.feeFor(leg.ExchangeID)
		switch leg.Side {
		case domain.OrderSideBuy:
			if q.Ask <= 0 {
				return fmt.Sprintf("%v: no ask for %s", domain.ErrDataUnavailable, leg.Pair.Symbol()), false
			}
			product *= (1 / q.Ask) * (1 - fee) * leg.PlannedPrice
		case domain.OrderSideSell:
			if q.Bid <= 0 {
				return fmt.Sprintf("%v: no bid for %s", domain.ErrDataUnavailable, leg.Pair.Symbol()), false
			}
			product *= (q.Bid / leg.PlannedPrice) * (1 - fee)
		}
	}

	// product is the planned net product rescaled by how prices moved; the
	// refreshed ratio must still clear the re-validation floor.
	refreshed := (1+opp.NetProfitRatio)*product/plannedProduct(opp, c) - 1
	floor := c.gate.MinProfitRatio() * c.cfg.RevalidationFraction
	if refreshed < floor {
		return domain.ErrValidationExpired.Error(), false
	}
	return "", true
}

// plannedProduct recomputes the fee-adjusted rate product at the planned
// prices, used as the baseline for re-validation scaling.
func plannedProduct(opp domain.ArbitrageOpportunity, c *Coordinator) float64 {
	product := 1.0
	for _, leg := range opp.Legs {
		product *= 1 - c.feeFor(leg.ExchangeID)
	}
	return product
}

func (c *Coordinator) feeFor(exchangeID string) float64 {
	if fee, ok := c.cfg.TakerFees[exchangeID]; ok {
		return fee
	}
	return c.cfg.DefaultFee
}

// placeLegs dispatches the legs in order. The per-exchange lock is held only
// around each placement, never across legs, so two multi-exchange executions
// cannot deadlock while still never racing to spend the same balance.
func (c *Coordinator) placeLegs(ctx context.Context, opp domain.ArbitrageOpportunity, rec *domain.ExecutionRecord, log *slog.Logger) {
	stopped := false
	for i, leg := range opp.Legs {
		if stopped {
			rec.Legs = append(rec.Legs, domain.TradeResult{TradeLeg: leg, Status: domain.LegStatusSkipped})
			continue
		}
		if !c.gate.AllowExecution(ctx, *rec, leg) {
			rec.Reason = fmt.Sprintf("leg %d blocked by risk gate", i+1)
			rec.Legs = append(rec.Legs, domain.TradeResult{TradeLeg: leg, Status: domain.LegStatusSkipped})
			stopped = true
			continue
		}

		res := c.placeOne(ctx, leg, log)
		rec.Legs = append(rec.Legs, res)
		if !res.Filled() {
			if tripped := c.gate.RecordFailure(leg.ExchangeID); tripped {
				c.monitor.ReportDegraded(ctx, leg.ExchangeID, string(res.Status))
			}
			rec.Reason = fmt.Sprintf("leg %d %s", i+1, res.Status)
			stopped = true
			continue
		}
		c.gate.RecordSuccess(leg.ExchangeID)
	}
}

// placeOne places a single leg under the exchange lock and leg timeout.
func (c *Coordinator) placeOne(ctx context.Context, leg domain.TradeLeg, log *slog.Logger) domain.TradeResult {
	failed := func(status domain.LegStatus) domain.TradeResult {
		return domain.TradeResult{TradeLeg: leg, Status: status}
	}

	venue, ok := c.trading[leg.ExchangeID]
	if !ok {
		log.Error("no trading adapter", slog.String("exchange", leg.ExchangeID))
		return failed(domain.LegStatusRejected)
	}

	unlock, err := c.locks.Acquire(ctx, "exchange:"+leg.ExchangeID, c.cfg.LockTTL)
	if err != nil {
		log.Warn("exchange lock unavailable",
			slog.String("exchange", leg.ExchangeID),
			slog.String("error", err.Error()),
		)
		return failed(domain.LegStatusRejected)
	}
	defer unlock()

	legCtx, cancel := context.WithTimeout(ctx, c.cfg.LegTimeout)
	defer cancel()

	res, err := venue.PlaceOrder(legCtx, domain.OrderRequest{
		Pair:       leg.Pair,
		Side:       leg.Side,
		Amount:     leg.PlannedAmount,
		LimitPrice: leg.PlannedPrice,
	})
	if err != nil {
		status := domain.LegStatusRejected
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrOrderTimeout) {
			status = domain.LegStatusTimedOut
		}
		log.Warn("leg placement failed",
			slog.String("exchange", leg.ExchangeID),
			slog.String("pair", leg.Pair.Symbol()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return failed(status)
	}

	res.TradeLeg = leg
	if res.Status == "" {
		res.Status = domain.LegStatusFilled
	}
	log.Info("leg filled",
		slog.String("exchange", leg.ExchangeID),
		slog.String("pair", leg.Pair.Symbol()),
		slog.String("side", string(leg.Side)),
		slog.Float64("executed_price", res.ExecutedPrice),
		slog.Float64("executed_amount", res.ExecutedAmount),
	)
	return res
}

// finalize runs the Verifying step, persists the terminal record, and reports
// it. Realized profit comes from actual fills, never from planned prices.
func (c *Coordinator) finalize(ctx context.Context, rec domain.ExecutionRecord, log *slog.Logger) (domain.ExecutionRecord, error) {
	filled := rec.FilledLegs()
	switch {
	case filled == 0:
		rec.Outcome = domain.OutcomeAborted
	case filled < len(rec.Legs):
		rec.Outcome = domain.OutcomePartial
		rec.UnwindRequired = true
	default:
		rec.RealizedProfit = c.realizedProfit(rec.Legs)
		if rec.RealizedProfit > 0 {
			rec.Outcome = domain.OutcomeProfit
		} else {
			rec.Outcome = domain.OutcomeLoss
		}
	}
	if rec.Outcome == domain.OutcomePartial {
		rec.RealizedProfit = c.realizedProfit(rec.Legs)
	}
	done := c.now().UTC()
	rec.CompletedAt = &done

	log.Info("execution complete",
		slog.String("outcome", string(rec.Outcome)),
		slog.Int("filled_legs", filled),
		slog.Float64("realized_profit", rec.RealizedProfit),
	)

	// Persist before reporting: the record is the audit unit.
	var storeErr error
	if err := c.store.Append(ctx, rec); err != nil {
		storeErr = fmt.Errorf("executor: persist record %s: %w", rec.ID, err)
		log.Error("record persistence failed", slog.String("error", err.Error()))
	}
	c.monitor.Report(ctx, rec)
	if c.bus != nil {
		if payload, err := json.Marshal(rec); err == nil {
			if err := c.bus.Publish(ctx, "executions", payload); err != nil {
				log.Debug("execution publish failed", slog.String("error", err.Error()))
			}
		}
	}
	return rec, storeErr
}

// realizedProfit nets the cashflows of the filled legs per currency and
// values any residual non-settlement balance at the executed price of a leg
// trading it against the settlement currency. Residuals with no such
// reference stay unvalued; those executions are already flagged for unwind.
func (c *Coordinator) realizedProfit(legs []domain.TradeResult) float64 {
	settle := c.cfg.SettlementCurrency
	cash := make(map[string]float64)
	for _, l := range legs {
		if !l.Filled() {
			continue
		}
		switch l.Side {
		case domain.OrderSideBuy:
			cash[l.Pair.Quote] -= l.ExecutedAmount * l.ExecutedPrice
			cash[l.Pair.Base] += l.ExecutedAmount * (1 - l.FeeRate)
		case domain.OrderSideSell:
			cash[l.Pair.Base] -= l.ExecutedAmount
			cash[l.Pair.Quote] += l.ExecutedAmount * l.ExecutedPrice * (1 - l.FeeRate)
		}
	}

	profit := cash[settle]
	delete(cash, settle)

	currencies := make([]string, 0, len(cash))
	for cur := range cash {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)
	for _, cur := range currencies {
		residual := cash[cur]
		if math.Abs(residual) < 1e-9 {
			continue
		}
		if price := referencePrice(legs, cur, settle); price > 0 {
			profit += residual * price
		}
	}
	return profit
}

// referencePrice finds a price converting cur into settle from the executed
// legs, preferring actual fills over planned prices.
func referencePrice(legs []domain.TradeResult, cur, settle string) float64 {
	planned := 0.0
	for _, l := range legs {
		if l.Pair.Base != cur || l.Pair.Quote != settle {
			continue
		}
		if l.Filled() && l.ExecutedPrice > 0 {
			return l.ExecutedPrice
		}
		if planned == 0 {
			planned = l.PlannedPrice
		}
	}
	return planned
}
