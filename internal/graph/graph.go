// Package graph builds the per-cycle exchange-rate graph the scanner searches.
// Nodes are currencies scoped to a single exchange ("binance:BTC"); edges are
// possible conversions weighted by the fee-adjusted multiplicative rate. The
// graph is built fresh from each market snapshot and discarded after the scan.
package graph

import (
	"sort"

	"github.com/openarb/arbd/internal/domain"
)

// Edge is one possible conversion between two currencies on one exchange.
type Edge struct {
	From       string // currency symbol, e.g. "USDT"
	To         string
	ExchangeID string
	Pair       domain.Pair
	Side       domain.OrderSide // the trade that performs the conversion
	Rate       float64          // To-units per From-unit, after taker fee
	RawRate    float64          // same, before fees
	Price      float64          // planned order price (ask for buy, bid for sell)
	Depth      float64          // base units visible at Price
}

// InputCapacity returns how many From-units the visible depth can absorb.
func (e Edge) InputCapacity() float64 {
	if e.Side == domain.OrderSideBuy {
		// From is the quote currency; depth is in base units.
		return e.Depth * e.Price
	}
	return e.Depth
}

// RateGraph is the adjacency structure for one scan cycle. Never mutated
// after Build returns.
type RateGraph struct {
	adj       map[string][]Edge // keyed by "exchangeID:CURRENCY"
	exchanges []string
	snapshot  domain.MarketSnapshot
	edgeCount int
}

// NodeKey returns the graph key for a currency on an exchange.
func NodeKey(exchangeID, currency string) string {
	return exchangeID + ":" + currency
}

// Build constructs a RateGraph from the snapshot. For each quote it adds two
// directed edges: quote→base at (1/ask)·(1−fee) and base→quote at bid·(1−fee).
// Quotes with a missing side produce only the edge their side supports; pairs
// absent from the snapshot produce no edge at all. Iteration over sorted keys
// makes the construction deterministic and idempotent per snapshot.
func Build(snap domain.MarketSnapshot, takerFees map[string]float64, defaultFee float64) *RateGraph {
	g := &RateGraph{
		adj:      make(map[string][]Edge),
		snapshot: snap,
	}

	seen := make(map[string]bool)
	for _, key := range snap.SortedKeys() {
		q := snap.Quotes[key]
		if !q.Valid() {
			continue
		}
		fee, ok := takerFees[q.ExchangeID]
		if !ok {
			fee = defaultFee
		}
		if !seen[q.ExchangeID] {
			seen[q.ExchangeID] = true
			g.exchanges = append(g.exchanges, q.ExchangeID)
		}

		if q.Ask > 0 {
			// Spend quote currency, receive base: buy at the ask.
			g.addEdge(Edge{
				From:       q.Pair.Quote,
				To:         q.Pair.Base,
				ExchangeID: q.ExchangeID,
				Pair:       q.Pair,
				Side:       domain.OrderSideBuy,
				Rate:       (1 / q.Ask) * (1 - fee),
				RawRate:    1 / q.Ask,
				Price:      q.Ask,
				Depth:      q.AskVolume,
			})
		}
		if q.Bid > 0 {
			// Spend base currency, receive quote: sell at the bid.
			g.addEdge(Edge{
				From:       q.Pair.Base,
				To:         q.Pair.Quote,
				ExchangeID: q.ExchangeID,
				Pair:       q.Pair,
				Side:       domain.OrderSideSell,
				Rate:       q.Bid * (1 - fee),
				RawRate:    q.Bid,
				Price:      q.Bid,
				Depth:      q.BidVolume,
			})
		}
	}
	sort.Strings(g.exchanges)
	return g
}

func (g *RateGraph) addEdge(e Edge) {
	key := NodeKey(e.ExchangeID, e.From)
	g.adj[key] = append(g.adj[key], e)
	g.edgeCount++
}

// EdgesFrom returns the outgoing edges of the given node in insertion order,
// which is deterministic for a given snapshot.
func (g *RateGraph) EdgesFrom(exchangeID, currency string) []Edge {
	return g.adj[NodeKey(exchangeID, currency)]
}

// ExchangeIDs returns the sorted exchanges contributing at least one edge.
func (g *RateGraph) ExchangeIDs() []string { return g.exchanges }

// Snapshot returns the snapshot the graph was built from.
func (g *RateGraph) Snapshot() domain.MarketSnapshot { return g.snapshot }

// Size returns the node and edge counts.
func (g *RateGraph) Size() (nodes, edges int) {
	return len(g.adj), g.edgeCount
}
