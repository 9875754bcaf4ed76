package kraken

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarb/arbd/internal/crypto"
	"github.com/openarb/arbd/internal/domain"
)

func TestNativeSymbol(t *testing.T) {
	assert.Equal(t, "XBTUSDT", nativeSymbol(domain.Pair{Base: "BTC", Quote: "USDT"}))
	assert.Equal(t, "ETHXBT", nativeSymbol(domain.Pair{Base: "ETH", Quote: "BTC"}))
	assert.Equal(t, "ETHUSDT", nativeSymbol(domain.Pair{Base: "ETH", Quote: "USDT"}))
}

func TestCanonicalAsset(t *testing.T) {
	cases := map[string]string{
		"XXBT": "BTC",
		"XETH": "ETH",
		"ZUSD": "USD",
		"XBT":  "BTC",
		"USDT": "USDT",
		"SOL":  "SOL",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalAsset(in), "canonicalAsset(%q)", in)
	}
}

func TestMapAPIError(t *testing.T) {
	err := mapAPIError([]string{"EQuery:Unknown asset pair"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = mapAPIError([]string{"EOrder:Insufficient funds"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOrderRejected))

	err = mapAPIError([]string{"EGeneral:Internal error"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestNewClientRejectsBadSecret(t *testing.T) {
	// Trading credentials must be valid base64; market-data-only clients pass
	// empty credentials and skip the decode.
	_, err := NewClient(Config{Credentials: crypto.APICredentials{Key: "key", Secret: "not-base64!!"}})
	require.Error(t, err)

	c, err := NewClient(Config{})
	require.NoError(t, err)
	require.NotNil(t, c)
}
