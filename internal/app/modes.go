package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openarb/arbd/internal/executor"
	"github.com/openarb/arbd/internal/gateway"
	"github.com/openarb/arbd/internal/metrics"
	"github.com/openarb/arbd/internal/risk"
	"github.com/openarb/arbd/internal/scanner"
	"github.com/openarb/arbd/internal/server"
	"github.com/openarb/arbd/internal/server/handler"
	"github.com/openarb/arbd/internal/server/ws"
	"github.com/openarb/arbd/internal/wallet"
)

// archiveInterval is how often cold execution history is pushed to object
// storage.
const archiveInterval = 24 * time.Hour

// ScanMode polls market data and publishes ranked opportunities without ever
// placing an order.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	gate := a.buildGate(nil)
	holder := &oppHolder{}
	sched := a.buildScheduler(deps, gate, nil, holder, false)
	g.Go(func() error { return sched.Run(ctx) })

	a.startMetrics(ctx)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, holder, gate)
	}

	return g.Wait()
}

// TradeMode runs the full detect-and-execute cycle.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("auto_execute", a.cfg.Executor.AutoExecute),
	)
	return a.runTrading(ctx, deps, a.cfg.Server.Enabled)
}

// MonitorMode serves the operator API over the persisted state without
// polling or trading.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startMetrics(ctx)
	a.startHTTPServer(ctx, g, deps, nil, nil)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs trading plus every auxiliary subsystem.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runTrading(ctx, deps, true)
}

// runTrading wires the execution pipeline and drives it until shutdown.
func (a *App) runTrading(ctx context.Context, deps *Dependencies, serveHTTP bool) error {
	g, ctx := errgroup.WithContext(ctx)

	exchangeWallet := wallet.NewExchangeWallet(deps.BalanceSources, a.logger)
	gate := a.buildGate(exchangeWallet)

	coordinator := executor.NewCoordinator(
		deps.Market,
		deps.Trading,
		gate,
		deps.LockManager,
		deps.ExecutionStore,
		deps.Monitor,
		deps.SignalBus,
		executor.Config{
			SettlementCurrency:   a.cfg.Scanner.SettlementCurrency,
			LegTimeout:           a.cfg.Executor.LegTimeout.Duration,
			LockTTL:              a.cfg.Executor.LockTTL.Duration,
			MaxOpportunityAge:    a.cfg.Executor.MaxOpportunityAge.Duration,
			RevalidationFraction: a.cfg.Executor.RevalidationFraction,
			TakerFees:            deps.TakerFees,
			DefaultFee:           a.defaultFee(),
		},
		a.logger,
	)

	// Anything left mid-flight by a previous process is aborted, never
	// resumed.
	if err := coordinator.Recover(ctx); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	holder := &oppHolder{}
	sched := a.buildScheduler(deps, gate, coordinator, holder, a.cfg.Executor.AutoExecute)
	if !a.cfg.Executor.AutoExecute {
		a.logger.InfoContext(ctx, "executor.auto_execute is false; engine will detect and publish only")
	}
	g.Go(func() error { return sched.Run(ctx) })

	a.logChainBalances(ctx)
	a.startMetrics(ctx)
	if serveHTTP {
		a.startHTTPServer(ctx, g, deps, holder, gate)
	}
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

func (a *App) defaultFee() float64 {
	return a.cfg.Scanner.DefaultTakerFeePct / 100
}

func (a *App) buildGate(w *wallet.ExchangeWallet) *risk.Gate {
	cfg := risk.Config{
		MinProfitPct:           a.cfg.Risk.MinProfitPct,
		MaxTradeAmount:         a.cfg.Risk.MaxTradeAmount,
		MinTradeAmount:         a.cfg.Risk.MinTradeAmount,
		SlippageTolerancePct:   a.cfg.Risk.SlippageTolerancePct,
		UtilizationFraction:    a.cfg.Risk.UtilizationFraction,
		MaxConsecutiveFailures: a.cfg.Risk.MaxConsecutiveFailures,
		ErrorTimeWindow:        a.cfg.Risk.ErrorTimeWindow.Duration,
	}
	if w == nil {
		return risk.NewGate(cfg, nil, a.logger)
	}
	return risk.NewGate(cfg, w, a.logger)
}

func (a *App) buildScheduler(deps *Dependencies, gate *risk.Gate, coordinator *executor.Coordinator, holder *oppHolder, autoExecute bool) *Scheduler {
	gw := gateway.New(deps.Market, deps.QuoteCache, gate, deps.Monitor, gateway.Config{
		Pairs:              deps.Pairs,
		PerExchangeTimeout: a.cfg.Gateway.PerExchangeTimeout.Duration,
		Staleness:          a.cfg.Gateway.Staleness.Duration,
		BookDepth:          a.cfg.Gateway.BookDepth,
	}, a.logger)

	sc := scanner.New(scanner.Config{
		SettlementCurrency: a.cfg.Scanner.SettlementCurrency,
		MaxPathLength:      a.cfg.Scanner.MaxPathLength,
		TransferCostRatio:  a.cfg.Scanner.TransferCostPct / 100,
	}, a.logger)

	return NewScheduler(
		gw, sc, gate, coordinator, holder, deps.SignalBus,
		deps.TakerFees, a.defaultFee(),
		a.cfg.Gateway.PollInterval.Duration, autoExecute,
		a.logger,
	)
}

// startMetrics starts the Prometheus endpoint when enabled.
func (a *App) startMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	metrics.Serve(ctx, a.cfg.Metrics.Port, a.logger)
}

// startArchiver periodically pushes cold execution history to object storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := time.Duration(a.cfg.S3.ArchiveRetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(archiveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				if _, err := deps.Archiver.ArchiveExecutions(ctx, cutoff); err != nil {
					a.logger.WarnContext(ctx, "execution archive failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// logChainBalances reports the operator's on-chain reserves once at startup.
func (a *App) logChainBalances(ctx context.Context) {
	if !a.cfg.Wallet.Enabled {
		return
	}
	cw, err := wallet.NewChainWallet(wallet.ChainConfig{
		RPCURL:  a.cfg.Wallet.RPCURL,
		Address: a.cfg.Wallet.Address,
		Tokens:  a.cfg.Wallet.Tokens,
	})
	if err != nil {
		a.logger.Warn("chain wallet unavailable", slog.String("error", err.Error()))
		return
	}

	go func() {
		defer cw.Close()
		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		symbols := make([]string, 0, len(a.cfg.Wallet.Tokens))
		for symbol := range a.cfg.Wallet.Tokens {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		for _, symbol := range symbols {
			balance, err := cw.Balance(checkCtx, symbol)
			if err != nil {
				a.logger.Warn("chain balance check failed",
					slog.String("currency", symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.Info("chain reserve",
				slog.String("currency", symbol),
				slog.Float64("balance", balance),
			)
		}
	}()
}

// startHTTPServer adds the operator API goroutines to the errgroup. gate and
// holder may be nil in modes without a scan loop.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, holder *oppHolder, gate *risk.Gate) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	health := map[string]handler.Pinger{
		"redis": deps.Redis,
	}
	if deps.PG != nil {
		health["postgres"] = deps.PG
	}
	if deps.S3 != nil {
		health["s3"] = pingFunc(deps.S3.Health)
	}

	exchanges := make([]string, 0, len(deps.TakerFees))
	for name := range deps.TakerFees {
		exchanges = append(exchanges, name)
	}
	sort.Strings(exchanges)

	status := handler.NewStatusHandler(a.cfg.Mode, exchanges, time.Now().UTC())
	if gate != nil {
		status.Degraded = gate.DegradedExchanges
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(health, a.logger),
		Status: status,
		Quotes: handler.NewQuotesHandler(deps.QuoteCache, a.logger),
	}
	if holder != nil {
		status.LastScan = holder.LastScan
		handlers.Opportunities = handler.NewOpportunitiesHandler(holder)
	}
	if deps.ExecutionStore != nil {
		handlers.Executions = handler.NewExecutionsHandler(deps.ExecutionStore, a.logger)
	}
	if deps.ArchiveReader != nil {
		handlers.Archives = handler.NewArchivesHandler(deps.ArchiveReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// pingFunc adapts a liveness function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
