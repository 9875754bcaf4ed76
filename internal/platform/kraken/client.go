// Package kraken implements the market data and trading ports for the
// Kraken spot REST API.
package kraken

import (
	"context"
	"encoding/base64"
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
const ExchangeID = "kraken"

// Client is the REST client for the Kraken spot API. It implements both
// domain.MarketData and domain.Trading.
type Client struct {
	baseURL    string
	creds      crypto.APICredentials
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
	// TakerFee is the fractional taker fee, e.g. 0.0026 for 0.26%.
	TakerFee   float64
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// NewClient creates a new Kraken REST client. The API secret must be the
// base64 string Kraken issues; it is decoded once here.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kraken.com"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 15
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}

	var secretKey []byte
	if cfg.Credentials.Secret != "" {
		var err error
		secretKey, err = base64.StdEncoding.DecodeString(cfg.Credentials.Secret)
		if err != nil {
			return nil, fmt.Errorf("kraken: decoding API secret: %w", err)
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
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

// Ticker returns the current top-of-book quote for the pair.
func (c *Client) Ticker(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("pair", nativeSymbol(pair))

	result, err := c.doPublicRequest(ctx, "/0/public/Ticker", params)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("kraken: ticker %s: %w", pair.Symbol(), err)
	}

	// The result key is Kraken's internal pair name, which does not always
	// match the requested one. A single-pair request has a single entry.
	var byPair map[string]tickerInfo
	if err := json.Unmarshal(result, &byPair); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("kraken: decode ticker: %w", err)
	}

	for _, info := range byPair {
		q := domain.PriceQuote{
			ExchangeID: ExchangeID,
			Pair:       pair,
			ObservedAt: time.Now().UTC(),
		}
		if len(info.Bid) >= 3 {
			q.Bid = parseFloat(info.Bid[0])
			q.BidVolume = parseFloat(info.Bid[2])
		}
		if len(info.Ask) >= 3 {
			q.Ask = parseFloat(info.Ask[0])
			q.AskVolume = parseFloat(info.Ask[2])
		}
		return q, nil
	}
	return domain.PriceQuote{}, fmt.Errorf("kraken: ticker %s: empty result: %w", pair.Symbol(), domain.ErrNotFound)
}

// OrderBookTop returns the top depth levels of the pair's orderbook.
func (c *Client) OrderBookTop(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBookTop, error) {
	if depth <= 0 {
		depth = 10
	}
	params := url.Values{}
	params.Set("pair", nativeSymbol(pair))
	params.Set("count", strconv.Itoa(depth))

	result, err := c.doPublicRequest(ctx, "/0/public/Depth", params)
	if err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("kraken: depth %s: %w", pair.Symbol(), err)
	}

	var byPair map[string]depthInfo
	if err := json.Unmarshal(result, &byPair); err != nil {
		return domain.OrderBookTop{}, fmt.Errorf("kraken: decode depth: %w", err)
	}

	for _, info := range byPair {
		return domain.OrderBookTop{
			ExchangeID: ExchangeID,
			Pair:       pair,
			Bids:       parseLevels(info.Bids),
			Asks:       parseLevels(info.Asks),
			ObservedAt: time.Now().UTC(),
		}, nil
	}
	return domain.OrderBookTop{}, fmt.Errorf("kraken: depth %s: empty result: %w", pair.Symbol(), domain.ErrNotFound)
}

// PlaceOrder submits an order and reports the actual fill. Kraken's AddOrder
// response carries no fill information, so the placement is followed by a
// QueryOrders call on the returned transaction ID.
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
	params.Set("pair", nativeSymbol(req.Pair))
	params.Set("type", string(req.Side))
	params.Set("volume", formatFloat(req.Amount))
	if req.LimitPrice > 0 {
		params.Set("ordertype", "limit")
		params.Set("price", formatFloat(req.LimitPrice))
		params.Set("timeinforce", "IOC")
	} else {
		params.Set("ordertype", "market")
	}

	raw, err := c.doSignedRequest(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return result, fmt.Errorf("kraken: place order: %w", err)
	}

	var placed addOrderResult
	if err := json.Unmarshal(raw, &placed); err != nil {
		return result, fmt.Errorf("kraken: decode order response: %w", err)
	}
	if len(placed.TxIDs) == 0 {
		return result, fmt.Errorf("kraken: no transaction ID returned: %w", domain.ErrOrderRejected)
	}
	result.OrderID = placed.TxIDs[0]

	info, err := c.queryOrder(ctx, result.OrderID)
	if err != nil {
		return result, fmt.Errorf("kraken: query order %s: %w", result.OrderID, err)
	}

	result.ExecutedAmount = parseFloat(info.VolumeExec)
	result.ExecutedPrice = parseFloat(info.Price)
	if result.ExecutedAmount > 0 {
		result.Status = domain.LegStatusFilled
	}
	if result.ExecutedAmount <= 0 {
		return result, fmt.Errorf("kraken: order %s not filled (status %s): %w",
			result.OrderID, info.Status, domain.ErrOrderRejected)
	}
	return result, nil
}

// CancelAllOrders cancels every open order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	_, err := c.doSignedRequest(ctx, "/0/private/CancelAll", url.Values{})
	if err != nil {
		return fmt.Errorf("kraken: cancel all orders: %w", err)
	}
	return nil
}

// Balances returns the balance per asset in canonical symbols.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	raw, err := c.doSignedRequest(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("kraken: balance: %w", err)
	}

	var byAsset map[string]string
	if err := json.Unmarshal(raw, &byAsset); err != nil {
		return nil, fmt.Errorf("kraken: decode balance: %w", err)
	}

	out := make(map[string]float64, len(byAsset))
	for asset, v := range byAsset {
		if amount := parseFloat(v); amount > 0 {
			out[canonicalAsset(asset)] = amount
		}
	}
	return out, nil
}

// queryOrder fetches the fill state of one transaction.
func (c *Client) queryOrder(ctx context.Context, txid string) (orderInfo, error) {
	params := url.Values{}
	params.Set("txid", txid)

	raw, err := c.doSignedRequest(ctx, "/0/private/QueryOrders", params)
	if err != nil {
		return orderInfo{}, err
	}

	var byTx map[string]orderInfo
	if err := json.Unmarshal(raw, &byTx); err != nil {
		return orderInfo{}, fmt.Errorf("decode query orders: %w", err)
	}
	info, ok := byTx[txid]
	if !ok {
		return orderInfo{}, fmt.Errorf("transaction %s missing from response: %w", txid, domain.ErrNotFound)
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doPublicRequest sends an unauthenticated GET and unwraps the Kraken
// response envelope.
func (c *Client) doPublicRequest(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
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

// doSignedRequest sends an authenticated POST. Kraken signs
// path + SHA256(nonce + postdata) with HMAC-SHA512 of the decoded secret.
func (c *Client) doSignedRequest(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.waitLimiter(ctx); err != nil {
		return nil, err
	}
	if c.creds.Key == "" || len(c.secretKey) == 0 {
		return nil, fmt.Errorf("kraken: API credentials not configured")
	}

	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	params.Set("nonce", nonce)
	postData := params.Encode()

	message := append([]byte(path), crypto.SHA256Sum([]byte(nonce+postData))...)
	signature := crypto.HMACSHA512Base64(c.secretKey, message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(postData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("API-Key", c.creds.Key)
	req.Header.Set("API-Sign", signature)

	return c.send(req)
}

func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Error) > 0 {
		return nil, mapAPIError(envelope.Error)
	}
	return envelope.Result, nil
}

func (c *Client) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, "rl:"+ExchangeID, c.rateLimit, c.rateWindow)
}

// mapAPIError translates Kraken's error strings to domain errors where a
// sentinel exists.
func mapAPIError(errs []string) error {
	joined := strings.Join(errs, "; ")
	for _, e := range errs {
		if strings.Contains(e, "Unknown asset pair") {
			return fmt.Errorf("%s: %w", joined, domain.ErrNotFound)
		}
		if strings.HasPrefix(e, "EOrder:") {
			return fmt.Errorf("%s: %w", joined, domain.ErrOrderRejected)
		}
	}
	return fmt.Errorf("kraken API error: %s", joined)
}

// nativeSymbol translates a canonical pair to the Kraken pair name,
// e.g. BTC/USDT -> XBTUSDT.
func nativeSymbol(p domain.Pair) string {
	return nativeAsset(p.Base) + nativeAsset(p.Quote)
}

// nativeAsset maps a canonical currency symbol to Kraken's form.
func nativeAsset(symbol string) string {
	if symbol == "BTC" {
		return "XBT"
	}
	return strings.ToUpper(symbol)
}

// canonicalAsset maps a Kraken balance asset name back to the canonical
// symbol. Legacy assets carry an X or Z class prefix, e.g. XXBT, ZUSD.
func canonicalAsset(asset string) string {
	asset = strings.ToUpper(asset)
	if len(asset) == 4 && (asset[0] == 'X' || asset[0] == 'Z') {
		asset = asset[1:]
	}
	if asset == "XBT" {
		return "BTC"
	}
	return asset
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseLevels converts Kraken depth levels. Price and volume arrive as JSON
// strings, the trailing timestamp as a number; only the first two matter.
func parseLevels(raw [][]json.RawMessage) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		var price, size string
		if json.Unmarshal(lvl[0], &price) != nil || json.Unmarshal(lvl[1], &size) != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: parseFloat(price), Size: parseFloat(size)})
	}
	return out
}

// Compile-time interface checks.
var (
	_ domain.MarketData = (*Client)(nil)
	_ domain.Trading    = (*Client)(nil)
)
