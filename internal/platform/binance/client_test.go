package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/domain"
)

func TestNativeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", nativeSymbol(domain.Pair{Base: "BTC", Quote: "USDT"}))
	assert.Equal(t, "ETHBTC", nativeSymbol(domain.Pair{Base: "ETH", Quote: "BTC"}))
}

func TestParseLevels(t *testing.T) {
	levels := parseLevels([][2]string{{"50000.5", "0.25"}, {"49999", "1.5"}})
	require.Len(t, levels, 2)
	assert.Equal(t, 50000.5, levels[0].Price)
	assert.Equal(t, 0.25, levels[0].Size)
	assert.Equal(t, 1.5, levels[1].Size)
}

func TestTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"bidPrice": "50000.10",
			"bidQty": "2.5",
			"askPrice": "50001.20",
			"askQty": "1.1"
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	q, err := c.Ticker(context.Background(), domain.Pair{Base: "BTC", Quote: "USDT"})
	require.NoError(t, err)

	assert.Equal(t, ExchangeID, q.ExchangeID)
	assert.Equal(t, 50000.10, q.Bid)
	assert.Equal(t, 50001.20, q.Ask)
	assert.Equal(t, 2.5, q.BidVolume)
	assert.Equal(t, 1.1, q.AskVolume)
	assert.False(t, q.ObservedAt.IsZero())
}

func TestTickerUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Ticker(context.Background(), domain.Pair{Base: "FAKE", Quote: "USDT"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
