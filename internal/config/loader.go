package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the configuration file at path, applies ARBD_* environment
// variable overrides, and validates the result. A missing file is not an
// error; defaults plus environment overrides are used instead.
func Load(path string) (Config, error) {
	// Load a .env file if present so local development does not need the
	// variables exported in the shell. Missing file is fine.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides maps ARBD_* environment variables onto the config.
// Environment values take precedence over the file.
func applyEnvOverrides(cfg *Config) {
	setStr("ARBD_MODE", &cfg.Mode)
	setStr("ARBD_LOG_LEVEL", &cfg.LogLevel)

	// Per-exchange credentials. The map key is upper-cased into the
	// variable name: ARBD_BINANCE_API_KEY, ARBD_KRAKEN_API_SECRET, ...
	for name, ex := range cfg.Exchanges {
		prefix := "ARBD_" + strings.ToUpper(name) + "_"
		setStr(prefix+"API_KEY", &ex.ApiKey)
		setStr(prefix+"API_SECRET", &ex.ApiSecret)
		setStr(prefix+"ENCRYPTED_SECRET_PATH", &ex.EncryptedSecretPath)
		setStr(prefix+"SECRET_PASSWORD", &ex.SecretPassword)
		setStr(prefix+"PASSPHRASE", &ex.Passphrase)
		setStr(prefix+"BASE_URL", &ex.BaseURL)
		setBool(prefix+"ENABLED", &ex.Enabled)
		cfg.Exchanges[name] = ex
	}

	setStringSlice("ARBD_PAIRS", &cfg.Pairs)

	setDuration("ARBD_GATEWAY_POLL_INTERVAL", &cfg.Gateway.PollInterval)
	setDuration("ARBD_GATEWAY_STALENESS", &cfg.Gateway.Staleness)

	setStr("ARBD_SCANNER_SETTLEMENT_CURRENCY", &cfg.Scanner.SettlementCurrency)
	setInt("ARBD_SCANNER_MAX_PATH_LENGTH", &cfg.Scanner.MaxPathLength)
	setFloat64("ARBD_SCANNER_TRANSFER_COST_PCT", &cfg.Scanner.TransferCostPct)

	setFloat64("ARBD_RISK_MIN_PROFIT_PCT", &cfg.Risk.MinProfitPct)
	setFloat64("ARBD_RISK_MAX_TRADE_AMOUNT", &cfg.Risk.MaxTradeAmount)
	setFloat64("ARBD_RISK_MIN_TRADE_AMOUNT", &cfg.Risk.MinTradeAmount)
	setInt("ARBD_RISK_MAX_CONSECUTIVE_FAILURES", &cfg.Risk.MaxConsecutiveFailures)

	setBool("ARBD_EXECUTOR_AUTO_EXECUTE", &cfg.Executor.AutoExecute)
	setBool("ARBD_EXECUTOR_DISTRIBUTED_LOCKS", &cfg.Executor.DistributedLocks)
	setDuration("ARBD_EXECUTOR_LEG_TIMEOUT", &cfg.Executor.LegTimeout)

	setStr("ARBD_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("ARBD_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("ARBD_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("ARBD_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("ARBD_POSTGRES_USER", &cfg.Postgres.User)
	setStr("ARBD_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("ARBD_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setBool("ARBD_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("ARBD_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("ARBD_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("ARBD_REDIS_DB", &cfg.Redis.DB)
	setBool("ARBD_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setBool("ARBD_S3_ENABLED", &cfg.S3.Enabled)
	setStr("ARBD_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("ARBD_S3_REGION", &cfg.S3.Region)
	setStr("ARBD_S3_BUCKET", &cfg.S3.Bucket)
	setStr("ARBD_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("ARBD_S3_SECRET_KEY", &cfg.S3.SecretKey)

	setBool("ARBD_WALLET_ENABLED", &cfg.Wallet.Enabled)
	setStr("ARBD_WALLET_RPC_URL", &cfg.Wallet.RPCURL)
	setStr("ARBD_WALLET_ADDRESS", &cfg.Wallet.Address)

	setBool("ARBD_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("ARBD_SERVER_PORT", &cfg.Server.Port)
	setStr("ARBD_SERVER_API_KEY", &cfg.Server.APIKey)
	setStringSlice("ARBD_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	setBool("ARBD_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("ARBD_METRICS_PORT", &cfg.Metrics.Port)

	setStr("ARBD_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("ARBD_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("ARBD_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("ARBD_NOTIFY_EVENTS", &cfg.Notify.Events)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
