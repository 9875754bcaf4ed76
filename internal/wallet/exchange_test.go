package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	id       string
	balances map[string]float64
	err      error
	calls    int
}

func (f *fakeSource) ExchangeID() string { return f.id }

func (f *fakeSource) Balances(context.Context) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAvailableBalanceCaches(t *testing.T) {
	src := &fakeSource{id: "binance", balances: map[string]float64{"USDT": 1500, "BTC": 0.2}}
	w := NewExchangeWallet([]BalanceSource{src}, testLogger())

	got, err := w.AvailableBalance(context.Background(), "binance", "usdt")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got)

	got, err = w.AvailableBalance(context.Background(), "binance", "BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.2, got)

	// Second lookup within the TTL reuses the fetched map.
	assert.Equal(t, 1, src.calls)
}

func TestAvailableBalanceUnknownExchange(t *testing.T) {
	w := NewExchangeWallet(nil, testLogger())

	_, err := w.AvailableBalance(context.Background(), "ghost", "USDT")
	assert.Error(t, err)
}

func TestAvailableBalanceErrorAfterInvalidate(t *testing.T) {
	src := &fakeSource{id: "kraken", balances: map[string]float64{"ETH": 3}}
	w := NewExchangeWallet([]BalanceSource{src}, testLogger())

	_, err := w.AvailableBalance(context.Background(), "kraken", "ETH")
	require.NoError(t, err)

	src.err = errors.New("venue down")
	w.Invalidate("kraken")

	// Invalidate dropped the cache and the refresh fails with nothing to
	// fall back on.
	_, err = w.AvailableBalance(context.Background(), "kraken", "ETH")
	assert.Error(t, err)
}
