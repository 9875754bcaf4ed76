// Package binance implements the market data and trading ports for the
// Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openarb/arbd/internal/crypto"
	"github.com/openarb/arbd/internal/domain"
)

// ExchangeID is the canonical identifier for this venue.
const ExchangeID = "binance"

// invalidSymbolCode is Binance's error code for an unknown trading symbol.
const invalidSymbolCode = -1121

// Client is the REST client for the Binance spot API. It implements both
// domain.MarketData and domain.Trading.
type Client struct {
	baseURL    string
	creds      crypto.APICredentials
	httpClient *http.Client

	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration

	takerFee float64
	pairs    []domain.Pair
}

// Config holds the Client construction parameters.
type Config struct {
	BaseURL     string
	Credentials crypto.APICredentials
	// TakerFee is the fractional taker fee, e.g. 0.001 for 0.1%.
	TakerFee float64
	// Pairs the engine trades on this venue; CancelAllOrders iterates them.
	Pairs      []domain.Pair
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// NewClient creates a new Binance REST client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cfg.Limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
		takerFee:   cfg.TakerFee,
		pairs:      cfg.Pairs,
	}
}

// ExchangeID returns the canonical venue identifier.
func (c *Client) ExchangeID() string { return ExchangeID }

// TakerFee returns the fractional taker fee configured for this venue.
func (c *Client) TakerFee() float64 { return c.takerFee }

// Ticker returns the current top-of-book quote for the pair.
func (c *Client) Ticker(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(pair))

	body, err := c.doPublicRequest(ctx, "/api/v3/ticker/bookTicker", params)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: ticker %s: %w", pair.Symbol(), err)
	}

	var resp bookTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: decode ticker: %w", err)
	}

	q := domain.PriceQuote{
		ExchangeID: ExchangeID,
		Pair:       pair,
		Bid:        parseFloat(resp.BidPrice),
		Ask:        parseFloat(resp.AskPrice),
		BidVolume:  parseFloat(resp.BidQty),
		AskVolume:  parseFloat(resp.AskQty),
		ObservedAt: time.Now().UTC(),
	}
	return q, nil
}

// OrderBookTop returns the top depth levels of the pair's orderbook.
func (c *Client) OrderBookTop(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBookTop, error) {
	if depth <= 0 {
		depth = 10
	}
	params := url.Values{}
	params.Set("symbol", nativeSymbol(pair))
	params.Set("limit", strconv.Itoa(depth))

	body, err := c.doPublicRequest(ctx, "/api/v3/depth", params)
	if err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("binance: depth %s: %w", pair.Symbol(), err)
	}

	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("binance: decode depth: %w", err)
	}

	top := domain.OrderBookTop{
		ExchangeID: ExchangeID,
		Pair:       pair,
		Bids:       parseLevels(resp.Bids),
		Asks:       parseLevels(resp.Asks),
		ObservedAt: time.Now().UTC(),
	}
	return top, nil
}

// PlaceOrder submits an order and reports the actual fill. Orders with a
// limit price are sent immediate-or-cancel so an unfilled leg comes back as
// expired rather than resting on the book.
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

	params := url.Values{}
	params.Set("symbol", nativeSymbol(req.Pair))
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("quantity", formatFloat(req.Amount))
	params.Set("newOrderRespType", "FULL")
	if req.LimitPrice > 0 {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "IOC")
		params.Set("price", formatFloat(req.LimitPrice))
	} else {
		params.Set("type", "MARKET")
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return result, fmt.Errorf("binance: place order: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return result, fmt.Errorf("binance: decode order response: %w", err)
	}

	result.OrderID = strconv.FormatInt(resp.OrderID, 10)
	result.ExecutedAmount = parseFloat(resp.ExecutedQty)
	if result.ExecutedAmount > 0 {
		result.ExecutedPrice = parseFloat(resp.CummulativeQuoteQty) / result.ExecutedAmount
		result.Status = domain.LegStatusFilled
	}
	if result.ExecutedAmount <= 0 {
		return result, fmt.Errorf("binance: order %s not filled (status %s): %w",
			result.OrderID, resp.Status, domain.ErrOrderRejected)
	}
	return result, nil
}

// CancelAllOrders cancels every open order on the configured pairs.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	for _, pair := range c.pairs {
		params := url.Values{}
		params.Set("symbol", nativeSymbol(pair))
		_, err := c.doSignedRequest(ctx, http.MethodDelete, "/api/v3/openOrders", params)
		if err != nil {
			// No open orders on a symbol comes back as an error; keep going.
			if strings.Contains(err.Error(), "Unknown order") {
				continue
			}
			return fmt.Errorf("binance: cancel orders %s: %w", pair.Symbol(), err)
		}
	}
	return nil
}

// Balances returns the free balance per asset.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode account: %w", err)
	}

	out := make(map[string]float64, len(resp.Balances))
	for _, b := range resp.Balances {
		if free := parseFloat(b.Free); free > 0 {
			out[strings.ToUpper(b.Asset)] = free
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doPublicRequest sends an unauthenticated GET against the Binance API.
func (c *Client) doPublicRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.waitLimiter(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// doSignedRequest sends an authenticated request. Binance signs the query
// string with HMAC-SHA256 of the API secret and expects the key in a header.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.waitLimiter(ctx); err != nil {
		return nil, err
	}
	if c.creds.Key == "" || c.creds.Secret == "" {
		return nil, fmt.Errorf("binance: API credentials not configured")
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	signature := crypto.HMACSHA256Hex([]byte(c.creds.Secret), query)
	fullURL := c.baseURL + path + "?" + query + "&signature=" + signature

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-MBX-APIKEY", c.creds.Key)

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

	if apiErr.Code == invalidSymbolCode {
		return fmt.Errorf("invalid symbol: %w", domain.ErrNotFound)
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (%d): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%d)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("rate limited: %s (%d)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%d)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%d)", statusCode, apiErr.Message, apiErr.Code)
	}
}

// nativeSymbol translates a canonical pair to the Binance symbol form,
// e.g. BTC/USDT -> BTCUSDT.
func nativeSymbol(p domain.Pair) string {
	return strings.ToUpper(p.Base + p.Quote)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		out = append(out, domain.PriceLevel{
			Price: parseFloat(lvl[0]),
			Size:  parseFloat(lvl[1]),
		})
	}
	return out
}

// Compile-time interface checks.
var (
	_ domain.MarketData = (*Client)(nil)
	_ domain.Trading    = (*Client)(nil)
)
