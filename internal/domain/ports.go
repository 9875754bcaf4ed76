package domain

import (
	"context"
	"time"
)

// MarketData is the per-exchange market data port. Implementations translate
// canonical pair symbols to the exchange-native form and parse responses into
// PriceQuote at the boundary.
type MarketData interface {
	ExchangeID() string
	Ticker(ctx context.Context, pair Pair) (PriceQuote, error)
	OrderBookTop(ctx context.Context, pair Pair, depth int) (OrderBookTop, error)
}

// OrderRequest describes one order to be placed on an exchange.
type OrderRequest struct {
	Pair       Pair
	Side       OrderSide
	Amount     float64 // base units
	LimitPrice float64 // 0 means market order
}

// Trading is the per-exchange trading port. PlaceOrder must report the fill
// price and amount distinct from the requested values.
type Trading interface {
	ExchangeID() string
	PlaceOrder(ctx context.Context, req OrderRequest) (TradeResult, error)
	CancelAllOrders(ctx context.Context) error
}

// Wallet exposes available balances. The engine consumes this port; it never
// holds keys or moves funds itself.
type Wallet interface {
	AvailableBalance(ctx context.Context, exchangeID, currency string) (float64, error)
}

// Monitor receives execution outcomes and degradation notices. Deliveries are
// fire-and-forget; the engine never blocks on them.
type Monitor interface {
	Report(ctx context.Context, rec ExecutionRecord)
	ReportDegraded(ctx context.Context, exchangeID, reason string)
}

// ExecutionStore persists execution records for audit and crash recovery.
type ExecutionStore interface {
	Append(ctx context.Context, rec ExecutionRecord) error
	LoadRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	// MarkStaleAborted transitions every non-terminal record to aborted and
	// returns how many were touched. Called once at startup; a mid-flight
	// multi-leg trade is never implicitly resumed.
	MarkStaleAborted(ctx context.Context) (int64, error)
}

// QuoteCache stores the latest quote per (exchange, pair) for the operator API.
type QuoteCache interface {
	SetQuote(ctx context.Context, q PriceQuote) error
	GetQuote(ctx context.Context, exchangeID, symbol string) (PriceQuote, error)
	GetQuotes(ctx context.Context, exchangeID string) ([]PriceQuote, error)
}

// LockManager provides mutual exclusion keyed by exchange account. At most
// one leg placement per key may be in flight at any instant.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter bounds request rates per key, shared across processes. The
// exchange adapters use it to stay inside per-venue API budgets.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// SignalBus provides pub/sub for engine events (opportunities, executions).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
