package risk

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
)

type fakeWallet struct {
	balances map[string]float64 // "exchange/currency"
	err      error
}

func (w *fakeWallet) AvailableBalance(_ context.Context, exchangeID, currency string) (float64, error) {
	if w.err != nil {
		return 0, w.err
	}
	return w.balances[exchangeID+"/"+currency], nil
}

func testConfig() Config {
	return Config{
		MinProfitPct:           0.3,
		MaxTradeAmount:         10000,
		MinTradeAmount:         10,
		SlippageTolerancePct:   0.05,
		UtilizationFraction:    0.25,
		MaxConsecutiveFailures: 3,
		ErrorTimeWindow:        time.Minute,
	}
}

func newTestGate(wallet domain.Wallet) *Gate {
	return NewGate(testConfig(), wallet, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRatioConversions(t *testing.T) {
	g := newTestGate(nil)
	assert.InDelta(t, 0.003, g.MinProfitRatio(), 1e-12)
	assert.InDelta(t, 0.0005, g.SlippageRatio(), 1e-12)
	assert.Equal(t, 0.25, g.UtilizationFraction())
	assert.Equal(t, 10.0, g.MinNotional())
	assert.Equal(t, 10000.0, g.MaxNotional())
}

func TestAllowScan(t *testing.T) {
	g := newTestGate(nil)
	opp := domain.ArbitrageOpportunity{
		NetProfitRatio:   0.005,
		RequiredNotional: 500,
		Exchanges:        []string{"binance"},
	}
	assert.True(t, g.AllowScan(opp))

	thin := opp
	thin.NetProfitRatio = 0.001
	assert.False(t, g.AllowScan(thin))

	small := opp
	small.RequiredNotional = 5
	assert.False(t, g.AllowScan(small))
}

func TestAllowScanRejectsDegradedLeg(t *testing.T) {
	g := newTestGate(nil)
	for i := 0; i < 3; i++ {
		g.RecordFailure("kraken")
	}
	require.True(t, g.Degraded("kraken"))

	opp := domain.ArbitrageOpportunity{
		NetProfitRatio:   0.005,
		RequiredNotional: 500,
		Exchanges:        []string{"binance", "kraken"},
	}
	assert.False(t, g.AllowScan(opp))
}

func TestBreakerTripsOnceAndClears(t *testing.T) {
	g := newTestGate(nil)
	now := time.Now()
	g.SetClock(func() time.Time { return now })

	assert.False(t, g.RecordFailure("binance"))
	assert.False(t, g.RecordFailure("binance"))
	assert.False(t, g.Degraded("binance"))
	// Third consecutive failure opens the breaker, reported exactly once.
	assert.True(t, g.RecordFailure("binance"))
	assert.True(t, g.Degraded("binance"))
	assert.False(t, g.RecordFailure("binance"))

	// The breaker clears itself once the window has passed.
	now = now.Add(2 * time.Minute)
	assert.False(t, g.Degraded("binance"))
}

func TestBreakerResetOnSuccess(t *testing.T) {
	g := newTestGate(nil)
	g.RecordFailure("binance")
	g.RecordFailure("binance")
	g.RecordSuccess("binance")
	assert.False(t, g.RecordFailure("binance"))
	assert.False(t, g.RecordFailure("binance"))
	assert.True(t, g.RecordFailure("binance"))
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	g := newTestGate(nil)
	now := time.Now()
	g.SetClock(func() time.Time { return now })

	g.RecordFailure("binance")
	g.RecordFailure("binance")
	// Failures stop arriving; the next one after the window counts as first.
	now = now.Add(2 * time.Minute)
	assert.False(t, g.RecordFailure("binance"))
	assert.False(t, g.RecordFailure("binance"))
	assert.True(t, g.RecordFailure("binance"))
}

func TestDegradedExchanges(t *testing.T) {
	g := newTestGate(nil)
	for i := 0; i < 3; i++ {
		g.RecordFailure("kraken")
	}
	g.RecordFailure("binance")
	assert.Equal(t, []string{"kraken"}, g.DegradedExchanges())
}

func TestAllowExecutionBalanceCheck(t *testing.T) {
	wallet := &fakeWallet{balances: map[string]float64{
		"binance/USDT": 5000,
		"binance/BTC":  0.05,
	}}
	g := newTestGate(wallet)
	ctx := context.Background()
	rec := domain.ExecutionRecord{ID: "r1"}
	btcUSDT := domain.Pair{Base: "BTC", Quote: "USDT"}

	// Buy spends quote currency.
	buy := domain.TradeLeg{ExchangeID: "binance", Pair: btcUSDT, Side: domain.OrderSideBuy, PlannedAmount: 0.1, PlannedPrice: 30000}
	assert.True(t, g.AllowExecution(ctx, rec, buy))
	bigBuy := buy
	bigBuy.PlannedAmount = 1
	assert.False(t, g.AllowExecution(ctx, rec, bigBuy))

	// Sell spends base currency.
	sell := domain.TradeLeg{ExchangeID: "binance", Pair: btcUSDT, Side: domain.OrderSideSell, PlannedAmount: 0.04, PlannedPrice: 30000}
	assert.True(t, g.AllowExecution(ctx, rec, sell))
	bigSell := sell
	bigSell.PlannedAmount = 0.1
	assert.False(t, g.AllowExecution(ctx, rec, bigSell))
}

func TestAllowExecutionToleratesBalanceSourceFailure(t *testing.T) {
	g := newTestGate(&fakeWallet{err: domain.ErrDataUnavailable})
	leg := domain.TradeLeg{
		ExchangeID:    "binance",
		Pair:          domain.Pair{Base: "BTC", Quote: "USDT"},
		Side:          domain.OrderSideBuy,
		PlannedAmount: 1,
		PlannedPrice:  30000,
	}
	assert.True(t, g.AllowExecution(context.Background(), domain.ExecutionRecord{}, leg))
}

func TestAllowExecutionRejectsDegradedExchange(t *testing.T) {
	g := newTestGate(nil)
	for i := 0; i < 3; i++ {
		g.RecordFailure("binance")
	}
	leg := domain.TradeLeg{ExchangeID: "binance", Pair: domain.Pair{Base: "BTC", Quote: "USDT"}, Side: domain.OrderSideBuy}
	assert.False(t, g.AllowExecution(context.Background(), domain.ExecutionRecord{}, leg))
}
