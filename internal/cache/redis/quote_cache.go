package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openarb/arbd/internal/domain"
)

// quoteTTL expires cached quotes that stop being refreshed, so the operator
// API never serves a quote from an exchange that went quiet hours ago.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes plus a
// per-exchange index set.
//
// Key schema:
//
//	quote:{exchange}:{symbol} - hash with bid/ask/bidv/askv/ts fields
//	quote:idx:{exchange}      - set of symbols cached for the exchange
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(exchangeID, symbol string) string {
	return "quote:" + exchangeID + ":" + symbol
}

func quoteIndexKey(exchangeID string) string {
	return "quote:idx:" + exchangeID
}

// SetQuote stores the latest quote for its (exchange, pair) slot.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	key := quoteKey(q.ExchangeID, q.Pair.Symbol())
	fields := map[string]interface{}{
		"bid":  strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask":  strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"bidv": strconv.FormatFloat(q.BidVolume, 'f', -1, 64),
		"askv": strconv.FormatFloat(q.AskVolume, 'f', -1, 64),
		"ts":   strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	pipe.SAdd(ctx, quoteIndexKey(q.ExchangeID), q.Pair.Symbol())
	pipe.Expire(ctx, quoteIndexKey(q.ExchangeID), quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote retrieves the latest cached quote for one pair on one exchange.
// It returns domain.ErrNotFound when the slot does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, exchangeID, symbol string) (domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(exchangeID, symbol)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s:%s: %w", exchangeID, symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return parseQuote(exchangeID, symbol, vals)
}

// GetQuotes retrieves every cached quote for one exchange using a pipeline.
// Slots that expired between the index read and the hash read are omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, exchangeID string) ([]domain.PriceQuote, error) {
	symbols, err := qc.rdb.SMembers(ctx, quoteIndexKey(exchangeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get quote index %s: %w", exchangeID, err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, quoteKey(exchangeID, sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline %s: %w", exchangeID, err)
	}

	out := make([]domain.PriceQuote, 0, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(exchangeID, sym, vals)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func parseQuote(exchangeID, symbol string, vals map[string]string) (domain.PriceQuote, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	q := domain.PriceQuote{ExchangeID: exchangeID, Pair: pair}

	for field, dst := range map[string]*float64{
		"bid":  &q.Bid,
		"ask":  &q.Ask,
		"bidv": &q.BidVolume,
		"askv": &q.AskVolume,
	} {
		s, ok := vals[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("redis: parse quote field %s: %w", field, err)
		}
		*dst = v
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote ts: %w", err)
	}
	q.ObservedAt = time.Unix(0, tsNano).UTC()
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
