package scanner

import (
	"log/slog"
	"math"

	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/graph"
)

// scanTriangular enumerates simple cycles on each exchange that start and end
// at the settlement currency, up to MaxPathLength legs, and keeps those whose
// fee- and slippage-adjusted product of rates clears the policy threshold.
func (s *Scanner) scanTriangular(g *graph.RateGraph, policy Policy) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, ex := range g.ExchangeIDs() {
		if policy.Degraded(ex) {
			continue
		}
		walk := &triWalk{
			scanner:  s,
			graph:    g,
			policy:   policy,
			exchange: ex,
			visited:  map[string]bool{s.cfg.SettlementCurrency: true},
		}
		walk.dfs(s.cfg.SettlementCurrency, 1, 1, math.Inf(1), nil)
		out = append(out, walk.found...)
	}
	return out
}

// triWalk carries the DFS state for one exchange. The path, rate products,
// and capacity are threaded through the recursion; visited currencies keep
// cycles simple.
type triWalk struct {
	scanner  *Scanner
	graph    *graph.RateGraph
	policy   Policy
	exchange string
	visited  map[string]bool
	found    []domain.ArbitrageOpportunity
}

// dfs extends the current path from currency cur. netProduct and rawProduct
// accumulate the fee-adjusted and raw rate products; minCapacity is the
// settlement-currency amount the thinnest edge so far can absorb.
func (w *triWalk) dfs(cur string, netProduct, rawProduct, minCapacity float64, path []graph.Edge) {
	settle := w.scanner.cfg.SettlementCurrency
	for _, e := range w.graph.EdgesFrom(w.exchange, cur) {
		if e.Price <= 0 || e.Rate <= 0 {
			// Malformed quote: skip candidates through this edge only.
			continue
		}

		// Capacity of this edge expressed in settlement-currency units at
		// the path entry: netProduct converts settlement units into cur
		// units, so divide the edge's input capacity back out.
		nextCap := math.Min(minCapacity, e.InputCapacity()/netProduct)
		nextNet := netProduct * e.Rate
		nextRaw := rawProduct * e.RawRate
		// Copy the path; append would let sibling branches share a backing
		// array.
		nextPath := make([]graph.Edge, len(path), len(path)+1)
		copy(nextPath, path)
		nextPath = append(nextPath, e)

		if e.To == settle {
			if len(nextPath) >= 3 {
				w.emit(nextPath, nextNet, nextRaw, nextCap)
			}
			continue
		}
		if len(nextPath) >= w.scanner.cfg.MaxPathLength || w.visited[e.To] {
			continue
		}
		w.visited[e.To] = true
		w.dfs(e.To, nextNet, nextRaw, nextCap, nextPath)
		w.visited[e.To] = false
	}
}

// emit sizes and records one closed cycle if it survives policy checks.
func (w *triWalk) emit(path []graph.Edge, netProduct, rawProduct, capacity float64) {
	slip := w.policy.SlippageRatio()
	netRatio := netProduct*math.Pow(1-slip, float64(len(path))) - 1
	if netRatio < w.policy.MinProfitRatio() {
		return
	}

	notional := capacity * w.policy.UtilizationFraction()
	if notional > w.policy.MaxNotional() {
		notional = w.policy.MaxNotional()
	}
	if notional < w.policy.MinNotional() {
		// Liquidity cap leaves the plan below the minimum viable size.
		return
	}

	legs := make([]domain.TradeLeg, 0, len(path))
	amount := notional // in the settlement currency at the cycle start
	for _, e := range path {
		planned := amount
		if e.Side == domain.OrderSideBuy {
			planned = amount / e.Price
		}
		legs = append(legs, domain.TradeLeg{
			ExchangeID:    e.ExchangeID,
			Pair:          e.Pair,
			Side:          e.Side,
			PlannedAmount: planned,
			PlannedPrice:  e.Price,
		})
		amount *= e.Rate
	}

	opp := domain.ArbitrageOpportunity{
		ID:               oppID(domain.OpportunityTriangular, legs, w.graph.Snapshot()),
		Kind:             domain.OpportunityTriangular,
		Legs:             legs,
		GrossProfitRatio: rawProduct - 1,
		NetProfitRatio:   netRatio,
		RequiredNotional: notional,
		Exchanges:        []string{w.exchange},
		DiscoveredAt:     w.graph.Snapshot().TakenAt,
	}
	if !w.policy.AllowScan(opp) {
		return
	}
	w.scanner.logger.Debug("triangular cycle found",
		slog.String("exchange", w.exchange),
		slog.Int("legs", len(legs)),
		slog.Float64("net_ratio", netRatio),
	)
	w.found = append(w.found, opp)
}
