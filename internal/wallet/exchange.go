// Package wallet exposes balance sources. The engine only reads balances; it
// never holds keys or moves funds.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openarb/arbd/internal/domain"
)

// BalanceSource is the venue-side balance endpoint an exchange client
// provides.
type BalanceSource interface {
	ExchangeID() string
	Balances(ctx context.Context) (map[string]float64, error)
}

// cacheTTL bounds how long a fetched balance map is reused. The risk gate
// checks balances on every opportunity; hitting the REST API each time would
// burn the venue rate budget.
const cacheTTL = 5 * time.Second

// ExchangeWallet implements domain.Wallet over the venues' account
// endpoints, with a short per-exchange cache.
type ExchangeWallet struct {
	sources map[string]BalanceSource
	logger  *slog.Logger

	mu     sync.Mutex
	cached map[string]cachedBalances
}

type cachedBalances struct {
	balances  map[string]float64
	fetchedAt time.Time
}

// NewExchangeWallet creates an ExchangeWallet over the given sources.
func NewExchangeWallet(sources []BalanceSource, logger *slog.Logger) *ExchangeWallet {
	byID := make(map[string]BalanceSource, len(sources))
	for _, s := range sources {
		byID[s.ExchangeID()] = s
	}
	return &ExchangeWallet{
		sources: byID,
		logger:  logger.With(slog.String("component", "wallet")),
		cached:  make(map[string]cachedBalances),
	}
}

// AvailableBalance returns the free balance of one currency on one exchange.
func (w *ExchangeWallet) AvailableBalance(ctx context.Context, exchangeID, currency string) (float64, error) {
	balances, err := w.balancesFor(ctx, exchangeID)
	if err != nil {
		return 0, err
	}
	return balances[strings.ToUpper(currency)], nil
}

func (w *ExchangeWallet) balancesFor(ctx context.Context, exchangeID string) (map[string]float64, error) {
	w.mu.Lock()
	entry, ok := w.cached[exchangeID]
	w.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.balances, nil
	}

	source, ok := w.sources[exchangeID]
	if !ok {
		return nil, fmt.Errorf("wallet: unknown exchange %q: %w", exchangeID, domain.ErrNotFound)
	}

	balances, err := source.Balances(ctx)
	if err != nil {
		// Serve the stale entry if one exists; a transient API hiccup
		// should not zero out the balance view.
		if ok {
			w.logger.Warn("balance refresh failed, serving cached",
				slog.String("exchange", exchangeID),
				slog.String("error", err.Error()),
			)
			return entry.balances, nil
		}
		return nil, fmt.Errorf("wallet: fetching %s balances: %w", exchangeID, err)
	}

	w.mu.Lock()
	w.cached[exchangeID] = cachedBalances{balances: balances, fetchedAt: time.Now()}
	w.mu.Unlock()
	return balances, nil
}

// Invalidate drops the cached balances for one exchange. The coordinator
// calls this after an execution so the next risk check sees fresh numbers.
func (w *ExchangeWallet) Invalidate(exchangeID string) {
	w.mu.Lock()
	delete(w.cached, exchangeID)
	w.mu.Unlock()
}

// Compile-time interface check.
var _ domain.Wallet = (*ExchangeWallet)(nil)
