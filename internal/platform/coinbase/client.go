// Package coinbase implements the market data and trading ports for the
// Coinbase Exchange REST API.
package coinbase

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openarb/arbd/internal/crypto"
	"github.com/openarb/arbd/internal/domain"
)

// ExchangeID is the canonical identifier for this venue.
const ExchangeID = "coinbase"

// Client is the REST client for the Coinbase Exchange API. It implements
// both domain.MarketData and domain.Trading.
type Client struct {
	baseURL    string
	creds      crypto.APICredentials
	passphrase string
	secretKey  []byte // base64-decoded API secret
	httpClient *http.Client

	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration

	takerFee float64
}

// Config holds the Client construction parameters.
type Config struct {
	BaseURL     string
	Credentials crypto.APICredentials
	// Passphrase is the third credential Coinbase issues with an API key.
	Passphrase string
	// TakerFee is the fractional taker fee, e.g. 0.005 for 0.5%.
	TakerFee   float64
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// NewClient creates a new Coinbase REST client. The API secret is the base64
// string Coinbase issues; it is decoded once here.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exchange.coinbase.com"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}

	var secretKey []byte
	if cfg.Credentials.Secret != "" {
		var err error
		secretKey, err = base64.StdEncoding.DecodeString(cfg.Credentials.Secret)
		if err != nil {
			return nil, fmt.Errorf("coinbase: decode API secret: %w", err)
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		passphrase: cfg.Passphrase,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cfg.Limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
		takerFee:   cfg.TakerFee,
	}, nil
}

// ExchangeID returns the canonical venue identifier.
func (c *Client) ExchangeID() string { return ExchangeID }

// TakerFee returns the fractional taker fee configured for this venue.
func (c *Client) TakerFee() float64 { return c.takerFee }

// Ticker returns the current top-of-book quote for the pair. Coinbase's
// ticker endpoint omits bid/ask sizes, so this reads the level-1 book
// instead.
func (c *Client) Ticker(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	body, err := c.doPublicRequest(ctx, "/products/"+nativeSymbol(pair)+"/book?level=1")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("coinbase: ticker %s: %w", pair.Symbol(), err)
	}

	var resp bookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("coinbase: decode book: %w", err)
	}

	q := domain.PriceQuote{
		ExchangeID: ExchangeID,
		Pair:       pair,
		ObservedAt: time.Now().UTC(),
	}
	if bids := parseLevels(resp.Bids); len(bids) > 0 {
		q.Bid = bids[0].Price
		q.BidVolume = bids[0].Size
	}
	if asks := parseLevels(resp.Asks); len(asks) > 0 {
		q.Ask = asks[0].Price
		q.AskVolume = asks[0].Size
	}
	return q, nil
}

// OrderBookTop returns the top depth levels of the pair's orderbook from the
// aggregated level-2 book.
func (c *Client) OrderBookTop(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBookTop, error) {
	if depth <= 0 {
		depth = 10
	}

	body, err := c.doPublicRequest(ctx, "/products/"+nativeSymbol(pair)+"/book?level=2")
	if err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("coinbase: depth %s: %w", pair.Symbol(), err)
	}

	var resp bookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("coinbase: decode book: %w", err)
	}

	top := domain.OrderBookTop{
		ExchangeID: ExchangeID,
		Pair:       pair,
		Bids:       clipLevels(parseLevels(resp.Bids), depth),
		Asks:       clipLevels(parseLevels(resp.Asks), depth),
		ObservedAt: time.Now().UTC(),
	}
	return top, nil
}

// PlaceOrder submits an order and reports the actual fill. Orders with a
// limit price go out immediate-or-cancel; the placement response carries no
// fill data yet, so the order is queried once after placement.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeResult, error) {
	result := domain.TradeResult{
		TradeLeg: domain.TradeLeg{
			ExchangeID:    ExchangeID,
			Pair:          req.Pair,
			Side:          req.Side,
			PlannedAmount: req.Amount,
			PlannedPrice:  req.LimitPrice,
		},
		FeeRate: c.takerFee,
		Status:  domain.LegStatusRejected,
	}

	order := map[string]string{
		"product_id": nativeSymbol(req.Pair),
		"side":       strings.ToLower(string(req.Side)),
		"size":       formatFloat(req.Amount),
	}
	if req.LimitPrice > 0 {
		order["type"] = "limit"
		order["price"] = formatFloat(req.LimitPrice)
		order["time_in_force"] = "IOC"
	} else {
		order["type"] = "market"
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return result, fmt.Errorf("coinbase: marshal order: %w", err)
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return result, fmt.Errorf("coinbase: place order: %w", err)
	}

	var placed orderResponse
	if err := json.Unmarshal(body, &placed); err != nil {
		return result, fmt.Errorf("coinbase: decode order response: %w", err)
	}
	result.OrderID = placed.ID

	filled, err := c.queryOrder(ctx, placed.ID)
	if err != nil {
		return result, fmt.Errorf("coinbase: query order %s: %w", placed.ID, err)
	}

	result.ExecutedAmount = parseFloat(filled.FilledSize)
	if result.ExecutedAmount > 0 {
		result.ExecutedPrice = parseFloat(filled.ExecutedValue) / result.ExecutedAmount
		result.Status = domain.LegStatusFilled
	}
	if result.ExecutedAmount <= 0 {
		return result, fmt.Errorf("coinbase: order %s not filled (status %s, done %s): %w",
			placed.ID, filled.Status, filled.DoneReason, domain.ErrOrderRejected)
	}
	return result, nil
}

// CancelAllOrders cancels every open order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if _, err := c.doSignedRequest(ctx, http.MethodDelete, "/orders", nil); err != nil {
		return fmt.Errorf("coinbase: cancel orders: %w", err)
	}
	return nil
}

// Balances returns the available balance per currency.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("coinbase: accounts: %w", err)
	}

	var accounts []accountEntry
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("coinbase: decode accounts: %w", err)
	}

	out := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		if available := parseFloat(a.Available); available > 0 {
			out[strings.ToUpper(a.Currency)] = available
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) queryOrder(ctx context.Context, orderID string) (orderResponse, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return orderResponse{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orderResponse{}, fmt.Errorf("decode order: %w", err)
	}
	return resp, nil
}

// doPublicRequest sends an unauthenticated GET. pathAndQuery includes any
// query string.
func (c *Client) doPublicRequest(ctx context.Context, pathAndQuery string) ([]byte, error) {
	if err := c.waitLimiter(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// doSignedRequest sends an authenticated request. Coinbase signs
// timestamp+method+path+body with HMAC-SHA256 of the decoded secret and
// expects the signature base64-encoded alongside key, timestamp, and
// passphrase headers.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.waitLimiter(ctx); err != nil {
		return nil, err
	}
	if c.creds.Key == "" || len(c.secretKey) == 0 || c.passphrase == "" {
		return nil, fmt.Errorf("coinbase: API credentials not configured")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	prehash := timestamp + method + path + string(body)
	signature := crypto.HMACSHA256Base64(c.secretKey, prehash)

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CB-ACCESS-KEY", c.creds.Key)
	req.Header.Set("CB-ACCESS-SIGN", signature)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.passphrase)

	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, "rl:"+ExchangeID, c.rateLimit, c.rateWindow)
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s: %w", apiErr.Message, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s", apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", apiErr.Message)
	case http.StatusBadRequest:
		if strings.Contains(apiErr.Message, "Insufficient funds") {
			return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrOrderRejected)
		}
		return fmt.Errorf("bad request: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
}

// nativeSymbol translates a canonical pair to the Coinbase product id,
// e.g. BTC/USDT -> BTC-USDT.
func nativeSymbol(p domain.Pair) string {
	return strings.ToUpper(p.Base + "-" + p.Quote)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseLevels converts book levels. Price and size arrive as JSON strings,
// the trailing order count as a number; only the first two matter.
func parseLevels(raw [][]json.RawMessage) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		var price, size string
		if err := json.Unmarshal(lvl[0], &price); err != nil {
			continue
		}
		if err := json.Unmarshal(lvl[1], &size); err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{
			Price: parseFloat(price),
			Size:  parseFloat(size),
		})
	}
	return out
}

func clipLevels(levels []domain.PriceLevel, depth int) []domain.PriceLevel {
	if len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

// Compile-time interface checks.
var (
	_ domain.MarketData = (*Client)(nil)
	_ domain.Trading    = (*Client)(nil)
)
