package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// balanceOfSelector is the 4-byte selector of the ERC-20 balanceOf(address)
// function.
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// nativeDecimals is the decimal count of the chain's native coin.
const nativeDecimals = 18

// ChainWallet reads on-chain balances for one address. It covers the funds an
// operator keeps outside the exchanges; it never signs anything.
type ChainWallet struct {
	client  *ethclient.Client
	address common.Address
	// tokens maps currency symbol to ERC-20 contract address. Symbols not
	// present read the native coin balance.
	tokens   map[string]common.Address
	decimals map[string]int
}

// ChainConfig holds the ChainWallet construction parameters.
type ChainConfig struct {
	RPCURL  string
	Address string
	// Tokens maps currency symbol to ERC-20 contract address hex string.
	Tokens map[string]string
	// Decimals overrides the token decimal count per symbol; defaults to 18.
	Decimals map[string]int
}

// NewChainWallet dials the RPC endpoint and returns a read-only wallet.
func NewChainWallet(cfg ChainConfig) (*ChainWallet, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("wallet: invalid address %q", cfg.Address)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dialing %s: %w", cfg.RPCURL, err)
	}

	tokens := make(map[string]common.Address, len(cfg.Tokens))
	for symbol, addr := range cfg.Tokens {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("wallet: invalid token address %q for %s", addr, symbol)
		}
		tokens[strings.ToUpper(symbol)] = common.HexToAddress(addr)
	}

	decimals := make(map[string]int, len(cfg.Decimals))
	for symbol, d := range cfg.Decimals {
		decimals[strings.ToUpper(symbol)] = d
	}

	return &ChainWallet{
		client:   client,
		address:  common.HexToAddress(cfg.Address),
		tokens:   tokens,
		decimals: decimals,
	}, nil
}

// Balance returns the balance of one currency at the latest block. Symbols
// configured as tokens read the ERC-20 contract; anything else reads the
// native coin.
func (w *ChainWallet) Balance(ctx context.Context, currency string) (float64, error) {
	symbol := strings.ToUpper(currency)

	contract, isToken := w.tokens[symbol]
	if !isToken {
		raw, err := w.client.BalanceAt(ctx, w.address, nil)
		if err != nil {
			return 0, fmt.Errorf("wallet: native balance: %w", err)
		}
		return toFloat(raw, nativeDecimals), nil
	}

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(w.address.Bytes(), 32)...)

	raw, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("wallet: balanceOf %s: %w", symbol, err)
	}

	dec, ok := w.decimals[symbol]
	if !ok {
		dec = nativeDecimals
	}
	return toFloat(new(big.Int).SetBytes(raw), dec), nil
}

// Close releases the RPC connection.
func (w *ChainWallet) Close() {
	w.client.Close()
}

// toFloat scales a raw integer amount down by the token's decimal count.
func toFloat(raw *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}
