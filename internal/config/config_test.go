package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Pairs = nil
	cfg.Risk.MinProfitPct = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), "at least one pair")
	assert.Contains(t, err.Error(), "min_profit_pct")
}

func TestValidateRequiresCredentialsForTrading(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
	assert.Contains(t, err.Error(), "exchanges.coinbase: passphrase is required")

	for name, ex := range cfg.Exchanges {
		ex.ApiKey = "k"
		ex.ApiSecret = "s"
		if name == "coinbase" {
			ex.Passphrase = "p"
		}
		cfg.Exchanges[name] = ex
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scan"
pairs = ["BTC/USDT"]

[gateway]
poll_interval = "7s"

[exchanges.kraken]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("ARBD_LOG_LEVEL", "debug")
	t.Setenv("ARBD_RISK_MIN_PROFIT_PCT", "0.75")
	t.Setenv("ARBD_BINANCE_API_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC/USDT"}, cfg.Pairs)
	assert.Equal(t, 7*time.Second, cfg.Gateway.PollInterval.Duration)
	assert.False(t, cfg.Exchanges["kraken"].Enabled)
	// Env takes precedence over file and defaults.
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.75, cfg.Risk.MinProfitPct)
	assert.Equal(t, "env-key", cfg.Exchanges["binance"].ApiKey)
	// Untouched sections keep their defaults.
	assert.Equal(t, "USDT", cfg.Scanner.SettlementCurrency)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "scan", cfg.Mode)
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Defaults()
	ex := cfg.Exchanges["binance"]
	ex.ApiKey = "key"
	ex.ApiSecret = "secret"
	cfg.Exchanges["binance"] = ex
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := cfg.Redacted()
	assert.Equal(t, "[REDACTED]", red.Exchanges["binance"].ApiKey)
	assert.Equal(t, "[REDACTED]", red.Exchanges["binance"].ApiSecret)
	assert.Equal(t, "[REDACTED]", red.Redis.Password)
	assert.Equal(t, "[REDACTED]", red.Notify.TelegramToken)
	assert.Empty(t, red.Exchanges["kraken"].ApiKey)

	// Original is untouched.
	assert.Equal(t, "secret", cfg.Exchanges["binance"].ApiSecret)
}
