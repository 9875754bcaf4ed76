package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
)

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

func TestBuildAddsBothDirections(t *testing.T) {
	now := time.Now().UTC()
	snap := domain.NewMarketSnapshot(now)
	q := quote("binance", "BTC", "USDT", 29990, 30000, 2, 1.5, now)
	snap.Quotes[q.Key()] = q

	g := Build(snap, map[string]float64{"binance": 0.001}, 0.002)

	buys := g.EdgesFrom("binance", "USDT")
	require.Len(t, buys, 1)
	assert.Equal(t, "BTC", buys[0].To)
	assert.Equal(t, domain.OrderSideBuy, buys[0].Side)
	assert.InDelta(t, (1.0/30000)*0.999, buys[0].Rate, 1e-12)
	assert.InDelta(t, 1.0/30000, buys[0].RawRate, 1e-12)
	assert.Equal(t, 30000.0, buys[0].Price)
	// Buying absorbs quote currency: depth in base times price.
	assert.InDelta(t, 1.5*30000, buys[0].InputCapacity(), 1e-9)

	sells := g.EdgesFrom("binance", "BTC")
	require.Len(t, sells, 1)
	assert.Equal(t, "USDT", sells[0].To)
	assert.Equal(t, domain.OrderSideSell, sells[0].Side)
	assert.InDelta(t, 29990*0.999, sells[0].Rate, 1e-9)
	assert.Equal(t, 29990.0, sells[0].Price)
	assert.InDelta(t, 2.0, sells[0].InputCapacity(), 1e-12)

	nodes, edges := g.Size()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 2, edges)
	assert.Equal(t, []string{"binance"}, g.ExchangeIDs())
}

func TestBuildUsesDefaultFeeForUnknownExchange(t *testing.T) {
	now := time.Now().UTC()
	snap := domain.NewMarketSnapshot(now)
	q := quote("kraken", "BTC", "USDT", 30000, 30010, 1, 1, now)
	snap.Quotes[q.Key()] = q

	g := Build(snap, map[string]float64{"binance": 0.001}, 0.0025)
	buys := g.EdgesFrom("kraken", "USDT")
	require.Len(t, buys, 1)
	assert.InDelta(t, (1.0/30010)*0.9975, buys[0].Rate, 1e-12)
}

func TestBuildOneSidedQuote(t *testing.T) {
	now := time.Now().UTC()
	snap := domain.NewMarketSnapshot(now)
	q := quote("binance", "ETH", "USDT", 0, 1500, 0, 3, now)
	snap.Quotes[q.Key()] = q

	g := Build(snap, nil, 0.001)
	assert.Len(t, g.EdgesFrom("binance", "USDT"), 1)
	assert.Empty(t, g.EdgesFrom("binance", "ETH"))
}

func TestBuildSkipsInvalidQuote(t *testing.T) {
	now := time.Now().UTC()
	snap := domain.NewMarketSnapshot(now)
	crossed := quote("binance", "BTC", "USDT", 30100, 30000, 1, 1, now)
	snap.Quotes[crossed.Key()] = crossed

	g := Build(snap, nil, 0.001)
	nodes, edges := g.Size()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
	assert.Empty(t, g.ExchangeIDs())
}

func TestBuildDeterministic(t *testing.T) {
	now := time.Now().UTC()
	snap := domain.NewMarketSnapshot(now)
	for _, q := range []domain.PriceQuote{
		quote("kraken", "BTC", "USDT", 30190, 30210, 1, 1, now),
		quote("binance", "BTC", "USDT", 29990, 30000, 1, 1, now),
		quote("binance", "ETH", "USDT", 1519, 1520, 4, 4, now),
		quote("binance", "ETH", "BTC", 0.0499, 0.05, 10, 10, now),
	} {
		snap.Quotes[q.Key()] = q
	}

	a := Build(snap, nil, 0.001)
	b := Build(snap, nil, 0.001)

	assert.Equal(t, a.ExchangeIDs(), b.ExchangeIDs())
	for _, ex := range a.ExchangeIDs() {
		for _, cur := range []string{"USDT", "BTC", "ETH"} {
			assert.Equal(t, a.EdgesFrom(ex, cur), b.EdgesFrom(ex, cur))
		}
	}
}
