// Package domain defines the core types and port interfaces of the arbitrage
// engine. All boundary parsing happens in the platform adapters; everything
// inside the engine works with the strongly-typed shapes defined here.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pair is a currency pair in canonical "BASE/QUOTE" form.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses a canonical pair symbol like "BTC/USDT".
func ParsePair(symbol string) (Pair, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("domain: invalid pair symbol %q", symbol)
	}
	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

// Symbol returns the canonical "BASE/QUOTE" representation.
func (p Pair) Symbol() string { return p.Base + "/" + p.Quote }

// PriceQuote is one exchange's current top-of-book view of a pair. Quotes are
// immutable; newer observations supersede older ones under the same key.
type PriceQuote struct {
	ExchangeID string
	Pair       Pair
	Bid        float64
	Ask        float64
	BidVolume  float64 // base units available at Bid
	AskVolume  float64 // base units available at Ask
	ObservedAt time.Time
}

// Valid reports whether the quote satisfies the boundary invariants:
// bid <= ask when both are positive, and volumes are non-negative.
func (q PriceQuote) Valid() bool {
	if q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask {
		return false
	}
	return q.BidVolume >= 0 && q.AskVolume >= 0
}

// Key identifies the (exchange, pair) slot this quote occupies.
func (q PriceQuote) Key() QuoteKey {
	return QuoteKey{ExchangeID: q.ExchangeID, Symbol: q.Pair.Symbol()}
}

// QuoteKey identifies the latest-quote slot for one pair on one exchange.
type QuoteKey struct {
	ExchangeID string
	Symbol     string
}

func (k QuoteKey) String() string { return k.ExchangeID + ":" + k.Symbol }

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBookTop is the top N levels of an orderbook on one exchange.
type OrderBookTop struct {
	ExchangeID string
	Pair       Pair
	Bids       []PriceLevel
	Asks       []PriceLevel
	ObservedAt time.Time
}

// MarketSnapshot maps (exchange, pair) to the latest quote observed during one
// poll cycle. It is owned by the gateway; consumers receive it by value and
// must treat it as read-only.
type MarketSnapshot struct {
	Quotes  map[QuoteKey]PriceQuote
	TakenAt time.Time
}

// NewMarketSnapshot returns an empty snapshot stamped at the given time.
func NewMarketSnapshot(takenAt time.Time) MarketSnapshot {
	return MarketSnapshot{Quotes: make(map[QuoteKey]PriceQuote), TakenAt: takenAt}
}

// Quote returns the entry for the given exchange and pair symbol, if present.
func (s MarketSnapshot) Quote(exchangeID, symbol string) (PriceQuote, bool) {
	q, ok := s.Quotes[QuoteKey{ExchangeID: exchangeID, Symbol: symbol}]
	return q, ok
}

// Fresh returns a copy containing only entries whose ObservedAt is within the
// staleness window relative to the snapshot timestamp. Entries outside the
// window are treated as absent.
func (s MarketSnapshot) Fresh(staleness time.Duration) MarketSnapshot {
	out := NewMarketSnapshot(s.TakenAt)
	for k, q := range s.Quotes {
		if s.TakenAt.Sub(q.ObservedAt) <= staleness {
			out.Quotes[k] = q
		}
	}
	return out
}

// Exchanges returns the sorted set of exchange IDs present in the snapshot.
func (s MarketSnapshot) Exchanges() []string {
	seen := make(map[string]bool)
	for k := range s.Quotes {
		seen[k.ExchangeID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SortedKeys returns the snapshot keys in deterministic order. Scan results
// must not depend on map iteration order.
func (s MarketSnapshot) SortedKeys() []QuoteKey {
	keys := make([]QuoteKey, 0, len(s.Quotes))
	for k := range s.Quotes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ExchangeID != keys[j].ExchangeID {
			return keys[i].ExchangeID < keys[j].ExchangeID
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}
