// Package gateway normalizes per-exchange market data polling into uniform
// snapshots. Exchanges are polled concurrently and fail independently: a slow
// or broken exchange only removes its own entries from the cycle's snapshot.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openarb/arbd/internal/domain"
)

// FailureSink receives per-exchange poll outcomes. Implemented by the risk
// gate, which uses them for circuit-breaker tracking.
type FailureSink interface {
	RecordFailure(exchangeID string) (tripped bool)
	RecordSuccess(exchangeID string)
	Degraded(exchangeID string) bool
}

// Config holds the gateway's polling parameters.
type Config struct {
	Pairs              []domain.Pair
	PerExchangeTimeout time.Duration
	Staleness          time.Duration
	BookDepth          int
}

// Gateway polls all registered exchanges and assembles market snapshots.
type Gateway struct {
	sources []domain.MarketData
	cache   domain.QuoteCache // optional; best-effort writes
	sink    FailureSink
	monitor domain.Monitor
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	lastSeen map[domain.QuoteKey]time.Time
}

// New creates a Gateway over the given market data adapters. cache may be
// nil; sink and monitor must not be.
func New(sources []domain.MarketData, cache domain.QuoteCache, sink FailureSink, monitor domain.Monitor, cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		sources:  sources,
		cache:    cache,
		sink:     sink,
		monitor:  monitor,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "gateway")),
		lastSeen: make(map[domain.QuoteKey]time.Time),
	}
}

// Poll fetches quotes for every configured pair from every non-degraded
// exchange concurrently and joins the results into one snapshot. A failure or
// timeout on one exchange omits that exchange's entries and records the
// failure; it never blocks or invalidates the others. There are no retries
// within a cycle; the next scheduled poll is the retry.
func (g *Gateway) Poll(ctx context.Context) domain.MarketSnapshot {
	snap := domain.NewMarketSnapshot(time.Now().UTC())

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	for _, src := range g.sources {
		if g.sink.Degraded(src.ExchangeID()) {
			g.logger.Debug("skipping degraded exchange", slog.String("exchange", src.ExchangeID()))
			continue
		}
		eg.Go(func() error {
			quotes, err := g.pollExchange(ctx, src)
			if err != nil {
				g.logger.Warn("exchange poll failed",
					slog.String("exchange", src.ExchangeID()),
					slog.String("error", err.Error()),
				)
				if g.sink.RecordFailure(src.ExchangeID()) {
					g.monitor.ReportDegraded(ctx, src.ExchangeID(), err.Error())
				}
				// Isolate the failure; the join must still succeed.
				return nil
			}
			g.sink.RecordSuccess(src.ExchangeID())
			mu.Lock()
			for _, q := range quotes {
				snap.Quotes[q.Key()] = q
			}
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return snap.Fresh(g.cfg.Staleness)
}

// pollExchange fetches every configured pair from one exchange under the
// per-exchange timeout. A pair the exchange does not list is skipped; any
// other error fails the whole exchange for this cycle.
func (g *Gateway) pollExchange(ctx context.Context, src domain.MarketData) ([]domain.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.PerExchangeTimeout)
	defer cancel()

	var out []domain.PriceQuote
	for _, pair := range g.cfg.Pairs {
		q, err := src.Ticker(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, domain.ErrNotFound) {
				// An unlisted pair is not an exchange failure.
				g.logger.Debug("pair not listed",
					slog.String("exchange", src.ExchangeID()),
					slog.String("pair", pair.Symbol()),
				)
				continue
			}
			return nil, err
		}
		if q.BidVolume == 0 && q.AskVolume == 0 {
			// Ticker carried no depth; take it from the top of the book.
			if top, err := src.OrderBookTop(ctx, pair, g.cfg.BookDepth); err == nil {
				if len(top.Bids) > 0 {
					q.BidVolume = top.Bids[0].Size
				}
				if len(top.Asks) > 0 {
					q.AskVolume = top.Asks[0].Size
				}
			}
		}
		if !g.accept(q) {
			continue
		}
		out = append(out, q)
		if g.cache != nil {
			if err := g.cache.SetQuote(ctx, q); err != nil {
				g.logger.Debug("quote cache write failed", slog.String("error", err.Error()))
			}
		}
	}
	return out, nil
}

// accept enforces the quote invariants at the boundary: bid <= ask when both
// sides are present, and observedAt strictly increasing per key. A quote that
// regresses in time is a replay and is dropped.
func (g *Gateway) accept(q domain.PriceQuote) bool {
	if !q.Valid() {
		g.logger.Warn("rejecting malformed quote",
			slog.String("exchange", q.ExchangeID),
			slog.String("pair", q.Pair.Symbol()),
			slog.Float64("bid", q.Bid),
			slog.Float64("ask", q.Ask),
		)
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastSeen[q.Key()]; ok && !q.ObservedAt.After(last) {
		return false
	}
	g.lastSeen[q.Key()] = q.ObservedAt
	return true
}
