// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBD_* environment variables.
type Config struct {
	Exchanges map[string]ExchangeConfig `toml:"exchanges"`
	Pairs     []string                  `toml:"pairs"`
	Gateway   GatewayConfig             `toml:"gateway"`
	Scanner   ScannerConfig             `toml:"scanner"`
	Risk      RiskConfig                `toml:"risk"`
	Executor  ExecutorConfig            `toml:"executor"`
	Postgres  PostgresConfig            `toml:"postgres"`
	Redis     RedisConfig               `toml:"redis"`
	S3        S3Config                  `toml:"s3"`
	Wallet    WalletConfig              `toml:"wallet"`
	Server    ServerConfig              `toml:"server"`
	Metrics   MetricsConfig             `toml:"metrics"`
	Notify    NotifyConfig              `toml:"notify"`
	Mode      string                    `toml:"mode"`
	LogLevel  string                    `toml:"log_level"`
}

// ExchangeConfig holds one exchange account's connection parameters.
type ExchangeConfig struct {
	Enabled             bool   `toml:"enabled"`
	BaseURL             string `toml:"base_url"`
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	// Passphrase is the extra credential some venues (Coinbase) issue with
	// an API key.
	Passphrase  string  `toml:"passphrase"`
	TakerFeePct float64 `toml:"taker_fee_pct"`
	// RateLimit requests per RateWindow, enforced via the shared limiter.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// GatewayConfig holds market data polling parameters.
type GatewayConfig struct {
	PollInterval       duration `toml:"poll_interval"`
	PerExchangeTimeout duration `toml:"per_exchange_timeout"`
	Staleness          duration `toml:"staleness"`
	BookDepth          int      `toml:"book_depth"`
}

// ScannerConfig holds opportunity search parameters.
type ScannerConfig struct {
	SettlementCurrency string  `toml:"settlement_currency"`
	MaxPathLength      int     `toml:"max_path_length"`
	TransferCostPct    float64 `toml:"transfer_cost_pct"`
	DefaultTakerFeePct float64 `toml:"default_taker_fee_pct"`
}

// RiskConfig holds the risk gate thresholds.
type RiskConfig struct {
	MinProfitPct           float64  `toml:"min_profit_pct"`
	MaxTradeAmount         float64  `toml:"max_trade_amount"`
	MinTradeAmount         float64  `toml:"min_trade_amount"`
	SlippageTolerancePct   float64  `toml:"slippage_tolerance_pct"`
	UtilizationFraction    float64  `toml:"utilization_fraction"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
	ErrorTimeWindow        duration `toml:"error_time_window"`
}

// ExecutorConfig holds execution coordinator parameters.
type ExecutorConfig struct {
	AutoExecute          bool     `toml:"auto_execute"`
	LegTimeout           duration `toml:"leg_timeout"`
	LockTTL              duration `toml:"lock_ttl"`
	MaxOpportunityAge    duration `toml:"max_opportunity_age"`
	RevalidationFraction float64  `toml:"revalidation_fraction"`
	// DistributedLocks selects the Redis lock manager over the in-process
	// one; required when more than one engine process shares the accounts.
	DistributedLocks bool `toml:"distributed_locks"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled              bool   `toml:"enabled"`
	Endpoint             string `toml:"endpoint"`
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	AccessKey            string `toml:"access_key"`
	SecretKey            string `toml:"secret_key"`
	UseSSL               bool   `toml:"use_ssl"`
	ForcePathStyle       bool   `toml:"force_path_style"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
}

// WalletConfig holds the read-only on-chain balance source parameters.
type WalletConfig struct {
	Enabled bool   `toml:"enabled"`
	RPCURL  string `toml:"rpc_url"`
	Address string `toml:"address"`
	// Tokens maps currency symbol to ERC-20 contract address; the native
	// coin is read from the account balance directly.
	Tokens map[string]string `toml:"tokens"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
	// APIKey protects the API when set; empty disables authentication.
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				Enabled:     true,
				BaseURL:     "https://api.binance.com",
				TakerFeePct: 0.1,
				RateLimit:   20,
				RateWindow:  duration{time.Second},
			},
			"kraken": {
				Enabled:     true,
				BaseURL:     "https://api.kraken.com",
				TakerFeePct: 0.26,
				RateLimit:   15,
				RateWindow:  duration{time.Second},
			},
			"coinbase": {
				Enabled:     true,
				BaseURL:     "https://api.exchange.coinbase.com",
				TakerFeePct: 0.5,
				RateLimit:   10,
				RateWindow:  duration{time.Second},
			},
		},
		Pairs: []string{"BTC/USDT", "ETH/USDT", "ETH/BTC"},
		Gateway: GatewayConfig{
			PollInterval:       duration{2 * time.Second},
			PerExchangeTimeout: duration{1500 * time.Millisecond},
			Staleness:          duration{5 * time.Second},
			BookDepth:          10,
		},
		Scanner: ScannerConfig{
			SettlementCurrency: "USDT",
			MaxPathLength:      3,
			TransferCostPct:    0.05,
			DefaultTakerFeePct: 0.2,
		},
		Risk: RiskConfig{
			MinProfitPct:           0.3,
			MaxTradeAmount:         1000,
			MinTradeAmount:         10,
			SlippageTolerancePct:   0.05,
			UtilizationFraction:    0.25,
			MaxConsecutiveFailures: 3,
			ErrorTimeWindow:        duration{time.Minute},
		},
		Executor: ExecutorConfig{
			AutoExecute:          false,
			LegTimeout:           duration{5 * time.Second},
			LockTTL:              duration{15 * time.Second},
			MaxOpportunityAge:    duration{10 * time.Second},
			RevalidationFraction: 0.5,
			DistributedLocks:     false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:              false,
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "arbd-data",
			UseSSL:               false,
			ForcePathStyle:       true,
			ArchiveRetentionDays: 90,
		},
		Wallet: WalletConfig{
			Enabled: false,
			Tokens:  map[string]string{},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Notify: NotifyConfig{
			Events: []string{"execution.profit", "execution.loss", "execution.partial", "exchange.degraded"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	enabled := 0
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		enabled++
		if ex.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: base_url must not be empty", name))
		}
		if ex.TakerFeePct < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: taker_fee_pct must be >= 0", name))
		}
		if ex.RateLimit < 1 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: rate_limit must be >= 1", name))
		}
	}
	if enabled == 0 {
		errs = append(errs, "exchanges: at least one exchange must be enabled")
	}
	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs: at least one pair must be configured")
	}

	// Trading modes need API credentials for every enabled exchange.
	needsKeys := c.Mode == "trade" || c.Mode == "full"
	if needsKeys {
		for name, ex := range c.Exchanges {
			if !ex.Enabled {
				continue
			}
			if ex.ApiKey == "" {
				errs = append(errs, fmt.Sprintf("exchanges.%s: api_key is required for mode %s", name, c.Mode))
			}
			if ex.ApiSecret == "" && ex.EncryptedSecretPath == "" {
				errs = append(errs, fmt.Sprintf("exchanges.%s: either api_secret or encrypted_secret_path must be set for mode %s", name, c.Mode))
			}
			if ex.EncryptedSecretPath != "" && ex.SecretPassword == "" {
				errs = append(errs, fmt.Sprintf("exchanges.%s: secret_password is required when encrypted_secret_path is set", name))
			}
			if name == "coinbase" && ex.Passphrase == "" {
				errs = append(errs, fmt.Sprintf("exchanges.coinbase: passphrase is required for mode %s", c.Mode))
			}
		}
	}

	if c.Gateway.PollInterval.Duration <= 0 {
		errs = append(errs, "gateway: poll_interval must be > 0")
	}
	if c.Gateway.Staleness.Duration <= 0 {
		errs = append(errs, "gateway: staleness must be > 0")
	}

	if c.Scanner.SettlementCurrency == "" {
		errs = append(errs, "scanner: settlement_currency must not be empty")
	}
	if c.Scanner.MaxPathLength < 3 || c.Scanner.MaxPathLength > 5 {
		errs = append(errs, fmt.Sprintf("scanner: max_path_length must be 3-5, got %d", c.Scanner.MaxPathLength))
	}

	if c.Risk.MinProfitPct <= 0 {
		errs = append(errs, "risk: min_profit_pct must be > 0")
	}
	if c.Risk.MaxTradeAmount <= 0 {
		errs = append(errs, "risk: max_trade_amount must be > 0")
	}
	if c.Risk.MinTradeAmount < 0 {
		errs = append(errs, "risk: min_trade_amount must be >= 0")
	}
	if c.Risk.MinTradeAmount > c.Risk.MaxTradeAmount {
		errs = append(errs, "risk: min_trade_amount must not exceed max_trade_amount")
	}
	if c.Risk.UtilizationFraction <= 0 || c.Risk.UtilizationFraction > 1 {
		errs = append(errs, fmt.Sprintf("risk: utilization_fraction must be in (0, 1], got %g", c.Risk.UtilizationFraction))
	}
	if c.Risk.MaxConsecutiveFailures < 1 {
		errs = append(errs, "risk: max_consecutive_failures must be >= 1")
	}

	if c.Executor.LegTimeout.Duration <= 0 {
		errs = append(errs, "executor: leg_timeout must be > 0")
	}
	if c.Executor.RevalidationFraction < 0 || c.Executor.RevalidationFraction > 1 {
		errs = append(errs, fmt.Sprintf("executor: revalidation_fraction must be in [0, 1], got %g", c.Executor.RevalidationFraction))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Wallet.Enabled {
		if c.Wallet.RPCURL == "" {
			errs = append(errs, "wallet: rpc_url must not be empty when enabled")
		}
		if c.Wallet.Address == "" {
			errs = append(errs, "wallet: address must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
		}
		if c.Server.Enabled && c.Metrics.Port == c.Server.Port {
			errs = append(errs, "metrics: port must differ from server.port")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
