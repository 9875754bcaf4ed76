package scanner

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/graph"
)

type stubPolicy struct {
	minProfit   float64
	slip        float64
	util        float64
	minNotional float64
	maxNotional float64
	degraded    map[string]bool
}

func (p stubPolicy) MinProfitRatio() float64      { return p.minProfit }
func (p stubPolicy) SlippageRatio() float64       { return p.slip }
func (p stubPolicy) UtilizationFraction() float64 { return p.util }
func (p stubPolicy) MinNotional() float64         { return p.minNotional }
func (p stubPolicy) MaxNotional() float64         { return p.maxNotional }
func (p stubPolicy) Degraded(ex string) bool      { return p.degraded[ex] }

func (p stubPolicy) AllowScan(opp domain.ArbitrageOpportunity) bool {
	if opp.NetProfitRatio < p.minProfit || opp.RequiredNotional < p.minNotional {
		return false
	}
	for _, ex := range opp.Exchanges {
		if p.degraded[ex] {
			return false
		}
	}
	return true
}

func defaultPolicy() stubPolicy {
	return stubPolicy{
		minProfit:   0.003,
		util:        0.25,
		minNotional: 10,
		maxNotional: 100000,
	}
}

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	return New(Config{SettlementCurrency: "USDT", MaxPathLength: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func quote(ex, base, quoteCur string, bid, ask, bidVol, askVol float64, at time.Time) domain.PriceQuote {
	return domain.PriceQuote{
		ExchangeID: ex,
		Pair:       domain.Pair{Base: base, Quote: quoteCur},
		Bid:        bid,
		Ask:        ask,
		BidVolume:  bidVol,
		AskVolume:  askVol,
		ObservedAt: at,
	}
}

func snapshotOf(at time.Time, quotes ...domain.PriceQuote) domain.MarketSnapshot {
	snap := domain.NewMarketSnapshot(at)
	for _, q := range quotes {
		snap.Quotes[q.Key()] = q
	}
	return snap
}

// Cross-exchange spread: buy at 30000 on one venue, sell at 30200 on another,
// 0.1% taker fee on both legs and no transfer cost.
func TestScanCrossExchangeSpread(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("exa", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("exb", "BTC", "USDT", 30200, 30210, 1, 1, now),
	)
	g := graph.Build(snap, nil, 0.001)

	opps := newScanner(t).Scan(g, defaultPolicy())
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.OpportunityCrossExchange, opp.Kind)
	assert.Equal(t, []string{"exa", "exb"}, opp.Exchanges)
	// (30200/30000) * 0.999 * 0.999 - 1
	assert.InDelta(t, 0.0046540, opp.NetProfitRatio, 1e-6)
	assert.InDelta(t, 30200.0/30000.0-1, opp.GrossProfitRatio, 1e-9)
	assert.Equal(t, now, opp.DiscoveredAt)

	require.Len(t, opp.Legs, 2)
	buy, sell := opp.Legs[0], opp.Legs[1]
	assert.Equal(t, "exa", buy.ExchangeID)
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, 30000.0, buy.PlannedPrice)
	assert.Equal(t, "exb", sell.ExchangeID)
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, 30200.0, sell.PlannedPrice)
	// The sell plans only what survives the buy-side fee.
	assert.InDelta(t, buy.PlannedAmount*0.999, sell.PlannedAmount, 1e-9)
	// One BTC of depth on both sides, quarter utilization.
	assert.InDelta(t, 30000*0.25, opp.RequiredNotional, 1e-6)
}

func TestScanCrossExchangeTransferCostKillsThinSpread(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("exa", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("exb", "BTC", "USDT", 30200, 30210, 1, 1, now),
	)
	g := graph.Build(snap, nil, 0.001)

	s := New(Config{SettlementCurrency: "USDT", MaxPathLength: 3, TransferCostRatio: 0.005},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Empty(t, s.Scan(g, defaultPolicy()))
}

// Two venues quoting the same book leave no spread to capture; with a 1%
// floor nothing may come back.
func TestScanCrossExchangeIdenticalQuotesBelowThreshold(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("exa", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("exb", "BTC", "USDT", 29990, 30000, 1, 1, now),
	)
	g := graph.Build(snap, nil, 0.001)

	policy := defaultPolicy()
	policy.minProfit = 0.01
	assert.Empty(t, newScanner(t).Scan(g, policy))
}

// Triangular cycle USDT -> BTC -> ETH -> USDT on one exchange.
func TestScanTriangularCycle(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("binance", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("binance", "ETH", "BTC", 0.0499, 0.05, 10, 10, now),
		quote("binance", "ETH", "USDT", 1520, 1521, 5, 5, now),
	)
	g := graph.Build(snap, nil, 0.001)

	opps := newScanner(t).Scan(g, defaultPolicy())
	require.NotEmpty(t, opps)

	var tri *domain.ArbitrageOpportunity
	for i := range opps {
		if opps[i].Kind == domain.OpportunityTriangular {
			tri = &opps[i]
			break
		}
	}
	require.NotNil(t, tri, "expected a triangular opportunity")

	require.Len(t, tri.Legs, 3)
	assert.Equal(t, []string{"binance"}, tri.Exchanges)
	assert.Equal(t, "USDT", tri.Legs[0].Pair.Quote)
	assert.Equal(t, "USDT", tri.Legs[2].Pair.Quote)
	assert.Equal(t, domain.OrderSideSell, tri.Legs[2].Side)

	// (1/30000) * 20 * 1520 * 0.999^3 - 1
	assert.InDelta(t, (30400.0/30000.0)*0.999*0.999*0.999-1, tri.NetProfitRatio, 1e-9)
	assert.InDelta(t, 30400.0/30000.0-1, tri.GrossProfitRatio, 1e-9)

	// The ETH/USDT bid depth (5 ETH) is the thinnest leg in settlement terms.
	thinnest := 5.0 * 30000 / (0.999 * 0.999 * 20)
	assert.InDelta(t, thinnest*0.25, tri.RequiredNotional, 1e-4)
}

func TestScanTriangularNoCycleBelowThreshold(t *testing.T) {
	now := time.Now().UTC()
	// Rates multiply out to slightly under break-even after fees.
	snap := snapshotOf(now,
		quote("binance", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("binance", "ETH", "BTC", 0.0499, 0.05, 10, 10, now),
		quote("binance", "ETH", "USDT", 1500, 1501, 5, 5, now),
	)
	g := graph.Build(snap, nil, 0.001)

	for _, opp := range newScanner(t).Scan(g, defaultPolicy()) {
		assert.NotEqual(t, domain.OpportunityTriangular, opp.Kind)
	}
}

func TestScanDiscardsPlansBelowMinimumNotional(t *testing.T) {
	now := time.Now().UTC()
	// Depth of 0.001 BTC caps the plan at 7.50 USDT, under the 10 minimum.
	snap := snapshotOf(now,
		quote("exa", "BTC", "USDT", 29990, 30000, 0.001, 0.001, now),
		quote("exb", "BTC", "USDT", 30200, 30210, 0.001, 0.001, now),
	)
	g := graph.Build(snap, nil, 0.001)

	assert.Empty(t, newScanner(t).Scan(g, defaultPolicy()))
}

func TestScanSkipsDegradedExchange(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("exa", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("exb", "BTC", "USDT", 30200, 30210, 1, 1, now),
	)
	g := graph.Build(snap, nil, 0.001)

	policy := defaultPolicy()
	policy.degraded = map[string]bool{"exb": true}
	assert.Empty(t, newScanner(t).Scan(g, policy))
}

func TestScanDeterministicAcrossRuns(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("binance", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("binance", "ETH", "BTC", 0.0499, 0.05, 10, 10, now),
		quote("binance", "ETH", "USDT", 1520, 1521, 5, 5, now),
		quote("kraken", "BTC", "USDT", 30200, 30210, 1, 1, now),
		quote("kraken", "ETH", "USDT", 1519, 1522, 5, 5, now),
	)
	s := newScanner(t)
	policy := defaultPolicy()

	first := s.Scan(graph.Build(snap, nil, 0.001), policy)
	second := s.Scan(graph.Build(snap, nil, 0.001), policy)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i], second[i])
	}
}

func TestScanRankingOrder(t *testing.T) {
	now := time.Now().UTC()
	snap := snapshotOf(now,
		quote("binance", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("binance", "ETH", "BTC", 0.0499, 0.05, 10, 10, now),
		quote("binance", "ETH", "USDT", 1520, 1521, 5, 5, now),
		quote("kraken", "BTC", "USDT", 30200, 30210, 1, 1, now),
	)
	opps := newScanner(t).Scan(graph.Build(snap, nil, 0.001), defaultPolicy())
	require.Greater(t, len(opps), 1)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].NetProfitRatio, opps[i].NetProfitRatio)
	}
}

func TestMaxPathLengthClamped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Equal(t, 3, New(Config{MaxPathLength: 1}, logger).cfg.MaxPathLength)
	assert.Equal(t, 5, New(Config{MaxPathLength: 9}, logger).cfg.MaxPathLength)
	assert.Equal(t, 4, New(Config{MaxPathLength: 4}, logger).cfg.MaxPathLength)
}
