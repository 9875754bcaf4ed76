package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/crypto"
	"github.com/openarb/arbd/internal/domain"
)

func TestNativeSymbol(t *testing.T) {
	assert.Equal(t, "BTC-USDT", nativeSymbol(domain.Pair{Base: "BTC", Quote: "USDT"}))
	assert.Equal(t, "ETH-BTC", nativeSymbol(domain.Pair{Base: "ETH", Quote: "BTC"}))
}

func TestTickerFromLevelOneBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/BTC-USDT/book", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("level"))
		_, _ = w.Write([]byte(`{
			"sequence": 42,
			"bids": [["50000.10", "2.5", 3]],
			"asks": [["50001.20", "1.1", 1]]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	q, err := c.Ticker(context.Background(), domain.Pair{Base: "BTC", Quote: "USDT"})
	require.NoError(t, err)

	assert.Equal(t, ExchangeID, q.ExchangeID)
	assert.Equal(t, 50000.10, q.Bid)
	assert.Equal(t, 50001.20, q.Ask)
	assert.Equal(t, 2.5, q.BidVolume)
	assert.Equal(t, 1.1, q.AskVolume)
}

func TestTickerUnknownProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "NotFound"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Ticker(context.Background(), domain.Pair{Base: "FAKE", Quote: "USDT"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseLevelsSkipsMalformedEntries(t *testing.T) {
	var resp bookResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"bids": [["100.5", "2", 1], ["bad"]],
		"asks": []
	}`), &resp))

	levels := parseLevels(resp.Bids)
	require.Len(t, levels, 1)
	assert.Equal(t, 100.5, levels[0].Price)
	assert.Equal(t, 2.0, levels[0].Size)
}

func TestNewClientRejectsBadSecret(t *testing.T) {
	_, err := NewClient(Config{Credentials: crypto.APICredentials{Key: "key", Secret: "not-base64!!"}})
	require.Error(t, err)

	c, err := NewClient(Config{})
	require.NoError(t, err)
	require.NotNil(t, c)
}
