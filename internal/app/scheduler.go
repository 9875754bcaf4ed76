package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/executor"
	"github.com/openarb/arbd/internal/gateway"
	"github.com/openarb/arbd/internal/graph"
	"github.com/openarb/arbd/internal/metrics"
	"github.com/openarb/arbd/internal/risk"
	"github.com/openarb/arbd/internal/scanner"
)

// publishedOpportunities caps how many ranked candidates go out per cycle on
// the signal bus and the operator API.
const publishedOpportunities = 10

// oppHolder retains the latest scan result for the operator API.
type oppHolder struct {
	mu        sync.RWMutex
	opps      []domain.ArbitrageOpportunity
	scannedAt time.Time
}

// Latest returns the most recent ranked scan output.
func (h *oppHolder) Latest() []domain.ArbitrageOpportunity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opps
}

// LastScan returns when the holder was last updated.
func (h *oppHolder) LastScan() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scannedAt
}

func (h *oppHolder) set(opps []domain.ArbitrageOpportunity) {
	h.mu.Lock()
	h.opps = opps
	h.scannedAt = time.Now().UTC()
	h.mu.Unlock()
}

// Scheduler drives the poll, build, scan, execute cycle on a fixed interval.
// One cycle runs at a time; a slow cycle delays the next rather than
// overlapping it.
type Scheduler struct {
	gateway     *gateway.Gateway
	scanner     *scanner.Scanner
	gate        *risk.Gate
	coordinator *executor.Coordinator // nil in non-trading modes
	holder      *oppHolder
	bus         domain.SignalBus
	takerFees   map[string]float64
	defaultFee  float64
	interval    time.Duration
	autoExecute bool
	logger      *slog.Logger

	// slots reserve exchange accounts for in-flight executions; opportunities
	// on disjoint venues run concurrently, scan cycles keep running either way.
	slots *execSlots
	wg    sync.WaitGroup
}

// execSlots tracks which exchange accounts have an execution in flight.
type execSlots struct {
	mu   sync.Mutex
	busy map[string]bool
}

func newExecSlots() *execSlots {
	return &execSlots{busy: make(map[string]bool)}
}

// reserve claims every exchange in the set atomically. If any is already
// held, nothing is claimed.
func (s *execSlots) reserve(exchanges []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range exchanges {
		if s.busy[ex] {
			return false
		}
	}
	for _, ex := range exchanges {
		s.busy[ex] = true
	}
	return true
}

func (s *execSlots) release(exchanges []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range exchanges {
		delete(s.busy, ex)
	}
}

// NewScheduler creates a Scheduler. coordinator may be nil, which makes the
// scheduler detection-only regardless of autoExecute.
func NewScheduler(
	gw *gateway.Gateway,
	sc *scanner.Scanner,
	gate *risk.Gate,
	coordinator *executor.Coordinator,
	holder *oppHolder,
	bus domain.SignalBus,
	takerFees map[string]float64,
	defaultFee float64,
	interval time.Duration,
	autoExecute bool,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		gateway:     gw,
		scanner:     sc,
		gate:        gate,
		coordinator: coordinator,
		holder:      holder,
		bus:         bus,
		takerFees:   takerFees,
		defaultFee:  defaultFee,
		interval:    interval,
		autoExecute: autoExecute,
		slots:       newExecSlots(),
		logger:      logger.With(slog.String("component", "scheduler")),
	}
}

// Run executes cycles until the context is cancelled, then waits for any
// in-flight execution to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.wg.Wait()

	s.cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	start := time.Now()

	snap := s.gateway.Poll(ctx)
	s.recordPollMetrics(snap)

	rateGraph := graph.Build(snap, s.takerFees, s.defaultFee)
	opps := s.scanner.Scan(rateGraph, s.gate)

	best := 0.0
	if len(opps) > 0 {
		best = opps[0].NetProfitRatio
	}
	metrics.BestNetProfitRatio.Set(best)
	for _, o := range opps {
		metrics.OpportunitiesFound.WithLabelValues(string(o.Kind)).Inc()
	}

	if len(opps) > publishedOpportunities {
		opps = opps[:publishedOpportunities]
	}
	s.holder.set(opps)
	s.publish(ctx, opps)

	if len(opps) > 0 {
		s.logger.Info("scan complete",
			slog.Int("quotes", len(snap.Quotes)),
			slog.Int("opportunities", len(opps)),
			slog.Float64("best_net_ratio", best),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	if s.coordinator != nil && s.autoExecute {
		s.dispatch(ctx, opps)
	}

	metrics.ScanDuration.Observe(time.Since(start).Seconds())
}

// dispatch starts an execution for every ranked candidate whose exchange
// accounts are all free, best first. Candidates colliding with an in-flight
// execution wait for a later cycle's fresh scan rather than queueing.
func (s *Scheduler) dispatch(ctx context.Context, opps []domain.ArbitrageOpportunity) {
	for _, opp := range opps {
		if !s.slots.reserve(opp.Exchanges) {
			continue
		}
		opp := opp
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.release(opp.Exchanges)
			s.execute(ctx, opp)
		}()
	}
}

// execute drives one opportunity and records the outcome metrics.
func (s *Scheduler) execute(ctx context.Context, opp domain.ArbitrageOpportunity) {
	rec, err := s.coordinator.Execute(ctx, opp)
	if err != nil {
		s.logger.Error("execution infrastructure failure",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.ExecutionsTotal.WithLabelValues(string(rec.Outcome)).Inc()
	if rec.RealizedProfit > 0 {
		metrics.RealizedProfit.Add(rec.RealizedProfit)
	}
}

// publish pushes the cycle's candidates onto the signal bus; delivery is best
// effort and never blocks the cycle.
func (s *Scheduler) publish(ctx context.Context, opps []domain.ArbitrageOpportunity) {
	if s.bus == nil || len(opps) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":          "opportunities",
		"opportunities": opps,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "opportunities", payload); err != nil {
		s.logger.Debug("opportunity publish failed", slog.String("error", err.Error()))
	}
}

// recordPollMetrics updates per-exchange quote counts and breaker gauges.
func (s *Scheduler) recordPollMetrics(snap domain.MarketSnapshot) {
	counts := make(map[string]int)
	for key := range snap.Quotes {
		counts[key.ExchangeID]++
	}
	for exchangeID := range s.takerFees {
		metrics.QuotesIngested.WithLabelValues(exchangeID).Add(float64(counts[exchangeID]))
		if s.gate.Degraded(exchangeID) {
			metrics.BreakerOpen.WithLabelValues(exchangeID).Set(1)
			continue
		}
		metrics.BreakerOpen.WithLabelValues(exchangeID).Set(0)
		if counts[exchangeID] == 0 {
			metrics.PollFailures.WithLabelValues(exchangeID).Inc()
		}
	}
}
