package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
)

type fakeMarket struct {
	id     string
	quotes map[string]domain.PriceQuote
}

func (f *fakeMarket) ExchangeID() string { return f.id }

func (f *fakeMarket) Ticker(_ context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	q, ok := f.quotes[pair.Symbol()]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (f *fakeMarket) OrderBookTop(context.Context, domain.Pair, int) (domain.OrderBookTop, error) {
	return domain.OrderBookTop{}, domain.ErrNotFound
}

// legOutcome scripts one PlaceOrder call on a fake venue.
type legOutcome struct {
	result domain.TradeResult
	err    error
}

type fakeVenue struct {
	id string

	mu     sync.Mutex
	script []legOutcome
	placed []domain.OrderRequest
}

func (f *fakeVenue) ExchangeID() string { return f.id }

func (f *fakeVenue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if len(f.script) == 0 {
		return domain.TradeResult{}, domain.ErrOrderRejected
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next.result, next.err
}

func (f *fakeVenue) CancelAllOrders(context.Context) error { return nil }

func (f *fakeVenue) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type fakeGate struct {
	minRatio  float64
	blockLegs bool

	mu        sync.Mutex
	failures  []string
	successes []string
	tripAfter int // consecutive failures before tripping
}

func (g *fakeGate) MinProfitRatio() float64 { return g.minRatio }

func (g *fakeGate) AllowExecution(context.Context, domain.ExecutionRecord, domain.TradeLeg) bool {
	return !g.blockLegs
}

func (g *fakeGate) RecordFailure(exchangeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, exchangeID)
	return g.tripAfter > 0 && len(g.failures) >= g.tripAfter
}

func (g *fakeGate) RecordSuccess(exchangeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes = append(g.successes, exchangeID)
}

type fakeStore struct {
	mu       sync.Mutex
	appended []domain.ExecutionRecord
	stale    int64
}

func (s *fakeStore) Append(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, rec)
	return nil
}

func (s *fakeStore) LoadRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *fakeStore) MarkStaleAborted(context.Context) (int64, error) { return s.stale, nil }

type fakeMonitor struct {
	mu       sync.Mutex
	reports  []domain.ExecutionRecord
	degraded []string
}

func (m *fakeMonitor) Report(_ context.Context, rec domain.ExecutionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, rec)
}

func (m *fakeMonitor) ReportDegraded(_ context.Context, exchangeID, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded = append(m.degraded, exchangeID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		SettlementCurrency:   "USDT",
		LegTimeout:           time.Second,
		LockTTL:              5 * time.Second,
		MaxOpportunityAge:    10 * time.Second,
		RevalidationFraction: 0.5,
		TakerFees:            map[string]float64{"binance": 0.001, "kraken": 0.001},
		DefaultFee:           0.001,
	}
}

func pair(t *testing.T, s string) domain.Pair {
	t.Helper()
	p, err := domain.ParsePair(s)
	require.NoError(t, err)
	return p
}

// triOpportunity is a USDT -> BTC -> ETH -> USDT cycle on one exchange with
// planned prices matching the fake market's current quotes.
func triOpportunity(t *testing.T, now time.Time) domain.ArbitrageOpportunity {
	t.Helper()
	return domain.ArbitrageOpportunity{
		ID:   "opp-tri-1",
		Kind: domain.OpportunityTriangular,
		Legs: []domain.TradeLeg{
			{ExchangeID: "binance", Pair: pair(t, "BTC/USDT"), Side: domain.OrderSideBuy, PlannedAmount: 0.1, PlannedPrice: 30000},
			{ExchangeID: "binance", Pair: pair(t, "ETH/BTC"), Side: domain.OrderSideBuy, PlannedAmount: 1.99, PlannedPrice: 0.05},
			{ExchangeID: "binance", Pair: pair(t, "ETH/USDT"), Side: domain.OrderSideSell, PlannedAmount: 1.98, PlannedPrice: 1520},
		},
		NetProfitRatio:   0.005,
		GrossProfitRatio: 0.008,
		RequiredNotional: 3000,
		Exchanges:        []string{"binance"},
		DiscoveredAt:     now,
	}
}

func triMarket() *fakeMarket {
	return &fakeMarket{id: "binance", quotes: map[string]domain.PriceQuote{
		"BTC/USDT": {ExchangeID: "binance", Bid: 29990, Ask: 30000},
		"ETH/BTC":  {ExchangeID: "binance", Bid: 0.0499, Ask: 0.05},
		"ETH/USDT": {ExchangeID: "binance", Bid: 1520, Ask: 1521},
	}}
}

func newTestCoordinator(markets []domain.MarketData, venues []domain.Trading, gate *fakeGate, store *fakeStore, monitor *fakeMonitor) *Coordinator {
	return NewCoordinator(markets, venues, gate, NewLockRegistry(), store, monitor, nil, testConfig(), testLogger())
}

func TestExecuteLegTimeoutStopsRemainingLegs(t *testing.T) {
	now := time.Now().UTC()
	opp := triOpportunity(t, now)

	venue := &fakeVenue{id: "binance", script: []legOutcome{
		{result: domain.TradeResult{OrderID: "o1", ExecutedAmount: 0.1, ExecutedPrice: 30000, FeeRate: 0.001, Status: domain.LegStatusFilled}},
		{err: domain.ErrOrderTimeout},
	}}
	gate := &fakeGate{minRatio: 0.003}
	store := &fakeStore{}
	monitor := &fakeMonitor{}
	c := newTestCoordinator([]domain.MarketData{triMarket()}, []domain.Trading{venue}, gate, store, monitor)

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomePartial, rec.Outcome)
	assert.True(t, rec.UnwindRequired)
	require.Len(t, rec.Legs, 3)
	assert.Equal(t, domain.LegStatusFilled, rec.Legs[0].Status)
	assert.Equal(t, domain.LegStatusTimedOut, rec.Legs[1].Status)
	assert.Equal(t, domain.LegStatusSkipped, rec.Legs[2].Status)

	// The third leg must never reach the exchange.
	assert.Equal(t, 2, venue.placedCount())
	assert.Equal(t, []string{"binance"}, gate.failures)

	// Written twice: once open before leg placement, once terminal.
	require.Len(t, store.appended, 2)
	assert.False(t, store.appended[0].Terminal())
	assert.Equal(t, rec.ID, store.appended[1].ID)
	assert.True(t, store.appended[1].Terminal())
	require.Len(t, monitor.reports, 1)
	assert.NotNil(t, rec.CompletedAt)
}

func TestExecuteAbortsWhenProfitEvaporates(t *testing.T) {
	now := time.Now().UTC()
	opp := triOpportunity(t, now)

	// The last leg's bid collapses between discovery and validation.
	market := triMarket()
	q := market.quotes["ETH/USDT"]
	q.Bid = 1480
	market.quotes["ETH/USDT"] = q

	venue := &fakeVenue{id: "binance"}
	gate := &fakeGate{minRatio: 0.003}
	store := &fakeStore{}
	c := newTestCoordinator([]domain.MarketData{market}, []domain.Trading{venue}, gate, store, &fakeMonitor{})

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAborted, rec.Outcome)
	assert.Equal(t, 0, venue.placedCount())
	require.Len(t, rec.Legs, 3)
	for _, l := range rec.Legs {
		assert.Equal(t, domain.LegStatusSkipped, l.Status)
	}
	assert.Contains(t, rec.Reason, domain.ErrValidationExpired.Error())
	require.Len(t, store.appended, 1)
}

func TestExecuteAbortsExpiredOpportunity(t *testing.T) {
	now := time.Now().UTC()
	opp := triOpportunity(t, now.Add(-time.Minute))

	venue := &fakeVenue{id: "binance"}
	c := newTestCoordinator([]domain.MarketData{triMarket()}, []domain.Trading{venue}, &fakeGate{minRatio: 0.003}, &fakeStore{}, &fakeMonitor{})

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAborted, rec.Outcome)
	assert.Equal(t, "opportunity expired", rec.Reason)
	assert.Equal(t, 0, venue.placedCount())
}

func TestExecuteRealizedProfitFromActualFills(t *testing.T) {
	now := time.Now().UTC()
	btcUSDT := pair(t, "BTC/USDT")
	opp := domain.ArbitrageOpportunity{
		ID:   "opp-cross-1",
		Kind: domain.OpportunityCrossExchange,
		Legs: []domain.TradeLeg{
			{ExchangeID: "binance", Pair: btcUSDT, Side: domain.OrderSideBuy, PlannedAmount: 1, PlannedPrice: 30000},
			{ExchangeID: "kraken", Pair: btcUSDT, Side: domain.OrderSideSell, PlannedAmount: 0.999, PlannedPrice: 30200},
		},
		NetProfitRatio:   0.0046,
		RequiredNotional: 30000,
		Exchanges:        []string{"binance", "kraken"},
		DiscoveredAt:     now,
	}

	binanceMkt := &fakeMarket{id: "binance", quotes: map[string]domain.PriceQuote{
		"BTC/USDT": {ExchangeID: "binance", Bid: 29990, Ask: 30000},
	}}
	krakenMkt := &fakeMarket{id: "kraken", quotes: map[string]domain.PriceQuote{
		"BTC/USDT": {ExchangeID: "kraken", Bid: 30200, Ask: 30210},
	}}
	binanceVenue := &fakeVenue{id: "binance", script: []legOutcome{
		{result: domain.TradeResult{OrderID: "b1", ExecutedAmount: 1, ExecutedPrice: 30000, FeeRate: 0.001, Status: domain.LegStatusFilled}},
	}}
	krakenVenue := &fakeVenue{id: "kraken", script: []legOutcome{
		{result: domain.TradeResult{OrderID: "k1", ExecutedAmount: 0.999, ExecutedPrice: 30200, FeeRate: 0.001, Status: domain.LegStatusFilled}},
	}}

	gate := &fakeGate{minRatio: 0.003}
	store := &fakeStore{}
	c := newTestCoordinator(
		[]domain.MarketData{binanceMkt, krakenMkt},
		[]domain.Trading{binanceVenue, krakenVenue},
		gate, store, &fakeMonitor{},
	)

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeProfit, rec.Outcome)
	assert.False(t, rec.UnwindRequired)
	// Spent 30000 USDT, received 0.999 BTC, sold it all at 30200 less fee:
	// 0.999*30200*0.999 - 30000.
	assert.InDelta(t, 139.6302, rec.RealizedProfit, 1e-4)
	assert.Equal(t, []string{"binance", "kraken"}, gate.successes)
}

func TestExecuteLossWhenFillsSlip(t *testing.T) {
	now := time.Now().UTC()
	btcUSDT := pair(t, "BTC/USDT")
	opp := domain.ArbitrageOpportunity{
		ID:   "opp-cross-2",
		Kind: domain.OpportunityCrossExchange,
		Legs: []domain.TradeLeg{
			{ExchangeID: "binance", Pair: btcUSDT, Side: domain.OrderSideBuy, PlannedAmount: 1, PlannedPrice: 30000},
			{ExchangeID: "kraken", Pair: btcUSDT, Side: domain.OrderSideSell, PlannedAmount: 0.999, PlannedPrice: 30200},
		},
		NetProfitRatio:   0.0046,
		RequiredNotional: 30000,
		Exchanges:        []string{"binance", "kraken"},
		DiscoveredAt:     now,
	}

	binanceMkt := &fakeMarket{id: "binance", quotes: map[string]domain.PriceQuote{
		"BTC/USDT": {ExchangeID: "binance", Bid: 29990, Ask: 30000},
	}}
	krakenMkt := &fakeMarket{id: "kraken", quotes: map[string]domain.PriceQuote{
		"BTC/USDT": {ExchangeID: "kraken", Bid: 30200, Ask: 30210},
	}}
	// The sell fills far below the quoted bid.
	binanceVenue := &fakeVenue{id: "binance", script: []legOutcome{
		{result: domain.TradeResult{OrderID: "b1", ExecutedAmount: 1, ExecutedPrice: 30000, FeeRate: 0.001, Status: domain.LegStatusFilled}},
	}}
	krakenVenue := &fakeVenue{id: "kraken", script: []legOutcome{
		{result: domain.TradeResult{OrderID: "k1", ExecutedAmount: 0.999, ExecutedPrice: 29800, FeeRate: 0.001, Status: domain.LegStatusFilled}},
	}}

	c := newTestCoordinator(
		[]domain.MarketData{binanceMkt, krakenMkt},
		[]domain.Trading{binanceVenue, krakenVenue},
		&fakeGate{minRatio: 0.003}, &fakeStore{}, &fakeMonitor{},
	)

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeLoss, rec.Outcome)
	assert.Less(t, rec.RealizedProfit, 0.0)
}

func TestExecuteGateBlockSkipsAllLegs(t *testing.T) {
	now := time.Now().UTC()
	opp := triOpportunity(t, now)

	venue := &fakeVenue{id: "binance"}
	gate := &fakeGate{minRatio: 0.003, blockLegs: true}
	c := newTestCoordinator([]domain.MarketData{triMarket()}, []domain.Trading{venue}, gate, &fakeStore{}, &fakeMonitor{})

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAborted, rec.Outcome)
	assert.Equal(t, 0, venue.placedCount())
	assert.Contains(t, rec.Reason, "blocked by risk gate")
}

func TestExecuteReportsDegradedWhenBreakerTrips(t *testing.T) {
	now := time.Now().UTC()
	opp := triOpportunity(t, now)

	venue := &fakeVenue{id: "binance", script: []legOutcome{
		{err: domain.ErrOrderRejected},
	}}
	gate := &fakeGate{minRatio: 0.003, tripAfter: 1}
	monitor := &fakeMonitor{}
	c := newTestCoordinator([]domain.MarketData{triMarket()}, []domain.Trading{venue}, gate, &fakeStore{}, monitor)

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAborted, rec.Outcome)
	assert.Equal(t, domain.LegStatusRejected, rec.Legs[0].Status)
	assert.Equal(t, []string{"binance"}, monitor.degraded)
}

func TestRecoverMarksStaleRecords(t *testing.T) {
	store := &fakeStore{stale: 2}
	c := newTestCoordinator(nil, nil, &fakeGate{}, store, &fakeMonitor{})
	require.NoError(t, c.Recover(context.Background()))
}
