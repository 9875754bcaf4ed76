package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	s3blob "github.com/openarb/arbd/internal/blob/s3"
	"github.com/openarb/arbd/internal/cache/redis"
	"github.com/openarb/arbd/internal/config"
	"github.com/openarb/arbd/internal/crypto"
	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/executor"
	"github.com/openarb/arbd/internal/notify"
	"github.com/openarb/arbd/internal/platform/binance"
	"github.com/openarb/arbd/internal/platform/coinbase"
	"github.com/openarb/arbd/internal/platform/kraken"
	"github.com/openarb/arbd/internal/store/postgres"
	"github.com/openarb/arbd/internal/wallet"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	PG             *postgres.Client
	ExecutionStore *postgres.ExecutionStore

	// Redis
	Redis       *redis.Client
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Object storage
	S3            *s3blob.Client
	Archiver      domain.Archiver
	ArchiveReader domain.BlobReader

	// Exchange adapters
	Pairs          []domain.Pair
	Market         []domain.MarketData
	Trading        []domain.Trading
	BalanceSources []wallet.BalanceSource
	TakerFees      map[string]float64

	// Notifications
	Notifier *notify.Notifier
	Monitor  *notify.Monitor
}

// needsPostgres returns true for modes that persist or serve execution
// history.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "monitor", "full":
		return true
	default:
		return false
	}
}

// needsTrading returns true for modes that place orders.
func needsTrading(mode string) bool {
	return mode == "trade" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{TakerFees: make(map[string]float64)}

	for _, symbol := range cfg.Pairs {
		pair, err := domain.ParsePair(symbol)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Pairs = append(deps.Pairs, pair)
	}

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.PG = pgClient
		deps.ExecutionStore = postgres.NewExecutionStore(pgClient.Pool())
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// Lock scope follows deployment shape: a single process can keep the
	// exchange-account mutex in memory, shared accounts need Redis.
	if cfg.Executor.DistributedLocks {
		deps.LockManager = redis.NewLockManager(redisClient)
	} else {
		deps.LockManager = executor.NewLockRegistry()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.ArchiveReader = s3blob.NewReader(s3Client)
		if deps.ExecutionStore != nil {
			deps.Archiver = s3blob.NewExecutionArchiver(
				s3blob.NewWriter(s3Client),
				deps.ExecutionStore,
				logger,
			)
		}
	}

	// --- Exchange adapters ---
	if err := wireExchanges(cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Monitor = notify.NewMonitor(deps.Notifier, logger)

	return deps, cleanup, nil
}

// wireExchanges builds one adapter per enabled exchange. Market data needs no
// credentials; the trading side is only wired in modes that place orders.
func wireExchanges(cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	names := make([]string, 0, len(cfg.Exchanges))
	for name := range cfg.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ex := cfg.Exchanges[name]
		if !ex.Enabled {
			continue
		}

		var creds crypto.APICredentials
		if needsTrading(cfg.Mode) {
			secret, err := crypto.LoadSecret(crypto.SecretConfig{
				RawSecret:     ex.ApiSecret,
				EncryptedPath: ex.EncryptedSecretPath,
				Password:      ex.SecretPassword,
			})
			if err != nil {
				return fmt.Errorf("wire: %s credentials: %w", name, err)
			}
			creds = crypto.APICredentials{Key: ex.ApiKey, Secret: secret}
		}

		fee := ex.TakerFeePct / 100

		switch name {
		case binance.ExchangeID:
			client := binance.NewClient(binance.Config{
				BaseURL:     ex.BaseURL,
				Credentials: creds,
				TakerFee:    fee,
				Pairs:       deps.Pairs,
				Limiter:     deps.RateLimiter,
				RateLimit:   ex.RateLimit,
				RateWindow:  ex.RateWindow.Duration,
			})
			deps.Market = append(deps.Market, client)
			if needsTrading(cfg.Mode) {
				deps.Trading = append(deps.Trading, client)
				deps.BalanceSources = append(deps.BalanceSources, client)
			}

		case coinbase.ExchangeID:
			client, err := coinbase.NewClient(coinbase.Config{
				BaseURL:     ex.BaseURL,
				Credentials: creds,
				Passphrase:  ex.Passphrase,
				TakerFee:    fee,
				Limiter:     deps.RateLimiter,
				RateLimit:   ex.RateLimit,
				RateWindow:  ex.RateWindow.Duration,
			})
			if err != nil {
				return fmt.Errorf("wire: coinbase client: %w", err)
			}
			deps.Market = append(deps.Market, client)
			if needsTrading(cfg.Mode) {
				deps.Trading = append(deps.Trading, client)
				deps.BalanceSources = append(deps.BalanceSources, client)
			}

		case kraken.ExchangeID:
			client, err := kraken.NewClient(kraken.Config{
				BaseURL:     ex.BaseURL,
				Credentials: creds,
				TakerFee:    fee,
				Limiter:     deps.RateLimiter,
				RateLimit:   ex.RateLimit,
				RateWindow:  ex.RateWindow.Duration,
			})
			if err != nil {
				return fmt.Errorf("wire: kraken client: %w", err)
			}
			deps.Market = append(deps.Market, client)
			if needsTrading(cfg.Mode) {
				deps.Trading = append(deps.Trading, client)
				deps.BalanceSources = append(deps.BalanceSources, client)
			}

		default:
			logger.Warn("unknown exchange in config, skipping", slog.String("exchange", name))
			continue
		}

		deps.TakerFees[name] = fee
	}

	if len(deps.Market) == 0 {
		return fmt.Errorf("wire: no usable exchange adapters configured")
	}
	return nil
}
