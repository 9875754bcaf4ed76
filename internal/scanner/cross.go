package scanner

import (
	"log/slog"
	"math"
	"sort"

	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/graph"
)

// scanCrossExchange looks for the same pair quoted on two exchanges where
// buying at one ask and selling at the other bid clears the threshold after
// both fees and the assumed transfer cost.
func (s *Scanner) scanCrossExchange(g *graph.RateGraph, policy Policy) []domain.ArbitrageOpportunity {
	snap := g.Snapshot()

	// Group quotes by pair symbol, exchanges sorted for determinism.
	bySymbol := make(map[string][]domain.PriceQuote)
	for _, key := range snap.SortedKeys() {
		q := snap.Quotes[key]
		if !q.Valid() {
			continue
		}
		bySymbol[q.Pair.Symbol()] = append(bySymbol[q.Pair.Symbol()], q)
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []domain.ArbitrageOpportunity
	for _, sym := range symbols {
		quotes := bySymbol[sym]
		if len(quotes) < 2 {
			continue
		}
		for i := range quotes {
			for j := range quotes {
				if i == j {
					continue
				}
				if opp, ok := s.crossCandidate(g, policy, quotes[i], quotes[j]); ok {
					out = append(out, opp)
				}
			}
		}
	}
	return out
}

// crossCandidate evaluates buying on buyQ's exchange and selling on sellQ's.
// Both directions are covered by the caller's ordered iteration.
func (s *Scanner) crossCandidate(g *graph.RateGraph, policy Policy, buyQ, sellQ domain.PriceQuote) (domain.ArbitrageOpportunity, bool) {
	if policy.Degraded(buyQ.ExchangeID) || policy.Degraded(sellQ.ExchangeID) {
		return domain.ArbitrageOpportunity{}, false
	}
	if buyQ.Ask <= 0 || sellQ.Bid <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	// Reuse the graph's fee-adjusted edges: quote→base on the buy side,
	// base→quote on the sell side.
	buyEdge, ok := findEdge(g, buyQ, domain.OrderSideBuy)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	sellEdge, ok := findEdge(g, sellQ, domain.OrderSideSell)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}

	slip := policy.SlippageRatio()
	grossRatio := buyEdge.RawRate*sellEdge.RawRate - 1
	netRatio := buyEdge.Rate*sellEdge.Rate*math.Pow(1-slip, 2) - 1 - s.cfg.TransferCostRatio
	if netRatio < policy.MinProfitRatio() {
		return domain.ArbitrageOpportunity{}, false
	}

	// Depth on both legs is in base units; the thinner side caps the plan.
	depth := math.Min(buyEdge.Depth, sellEdge.Depth)
	notional := depth * buyEdge.Price * policy.UtilizationFraction()
	if notional > policy.MaxNotional() {
		notional = policy.MaxNotional()
	}
	if notional < policy.MinNotional() {
		return domain.ArbitrageOpportunity{}, false
	}

	baseAmount := notional / buyEdge.Price
	legs := []domain.TradeLeg{
		{
			ExchangeID:    buyQ.ExchangeID,
			Pair:          buyQ.Pair,
			Side:          domain.OrderSideBuy,
			PlannedAmount: baseAmount,
			PlannedPrice:  buyEdge.Price,
		},
		{
			ExchangeID:    sellQ.ExchangeID,
			Pair:          sellQ.Pair,
			Side:          domain.OrderSideSell,
			PlannedAmount: baseAmount * buyEdge.Rate * buyEdge.Price, // after buy-side fee
			PlannedPrice:  sellEdge.Price,
		},
	}

	exchanges := []string{buyQ.ExchangeID, sellQ.ExchangeID}
	sort.Strings(exchanges)
	opp := domain.ArbitrageOpportunity{
		ID:               oppID(domain.OpportunityCrossExchange, legs, g.Snapshot()),
		Kind:             domain.OpportunityCrossExchange,
		Legs:             legs,
		GrossProfitRatio: grossRatio,
		NetProfitRatio:   netRatio,
		RequiredNotional: notional,
		Exchanges:        exchanges,
		DiscoveredAt:     g.Snapshot().TakenAt,
	}
	if !policy.AllowScan(opp) {
		return domain.ArbitrageOpportunity{}, false
	}
	s.logger.Debug("cross-exchange spread found",
		slog.String("symbol", buyQ.Pair.Symbol()),
		slog.String("buy_on", buyQ.ExchangeID),
		slog.String("sell_on", sellQ.ExchangeID),
		slog.Float64("net_ratio", netRatio),
	)
	return opp, true
}

// findEdge locates the graph edge that performs the given trade on the
// quote's exchange.
func findEdge(g *graph.RateGraph, q domain.PriceQuote, side domain.OrderSide) (graph.Edge, bool) {
	from := q.Pair.Quote
	if side == domain.OrderSideSell {
		from = q.Pair.Base
	}
	for _, e := range g.EdgesFrom(q.ExchangeID, from) {
		if e.Pair == q.Pair && e.Side == side {
			return e, true
		}
	}
	return graph.Edge{}, false
}
