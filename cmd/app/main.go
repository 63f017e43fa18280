package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quoter_go/internal/app"
	"quoter_go/internal/book"
	"quoter_go/internal/engine"
	"quoter_go/internal/execution"
	"quoter_go/internal/infra"
	"quoter_go/internal/infra/polymarket"
	"quoter_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 4. Price feed
	feed := polymarket.NewFeed(cfg.API.Polymarket.WSURL, cfg.Market.AssetID, bootstrap.Metrics)
	if err := feed.Connect(ctx); err != nil {
		slog.Error("❌ Feed start failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.InfoContext(ctx, "✅ Price feed started", slog.String("asset_id", cfg.Market.AssetID))

	// 5. Execution pool
	limiter := infra.NewRateLimiter(cfg.Execution.RateLimitBurst, cfg.Execution.RateLimitPerSec)
	poolCfg := execution.Config{
		Workers:     cfg.Execution.Workers,
		QueueDepth:  execution.DefaultConfig().QueueDepth,
		CallTimeout: time.Duration(cfg.Execution.CallTimeoutMS) * time.Millisecond,
		MaxAttempts: cfg.Execution.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Execution.RetryDelayMS) * time.Millisecond,
	}
	pool := execution.NewPool(poolCfg, bootstrap.Client, limiter, bootstrap.Metrics)
	pool.Start()
	slog.InfoContext(ctx, "✅ Execution pool started", slog.Int("workers", poolCfg.Workers))

	// 6. Balance poller: the first poll is synchronous so quoting never
	// starts without a balance observation.
	balances := service.NewBalanceService(bootstrap.Client,
		time.Duration(cfg.Balance.PollIntervalSec)*time.Second)
	if err := balances.Start(ctx); err != nil {
		slog.Error("❌ Initial balance fetch failed", slog.Any("error", err))
		feed.Disconnect()
		pool.Stop()
		os.Exit(1)
	}
	slog.InfoContext(ctx, "✅ Balance poller started")

	// 7. Reconciler (the decision loop)
	engCfg := engine.DefaultConfig(cfg.BandConfig())
	engCfg.ShutdownTimeout = time.Duration(cfg.Engine.ShutdownTimeoutSec) * time.Second
	if cfg.Engine.OutcomeWaitMS > 0 {
		engCfg.ResolveTimeout = time.Duration(cfg.Engine.OutcomeWaitMS) * time.Millisecond
	}

	reconciler := engine.NewReconciler(engCfg, book.New(), pool, bootstrap.Client,
		bootstrap.Store, bootstrap.Metrics,
		feed.Ticks(), feed.Fatal(), balances.Updates())
	if bal, ok := balances.Last(); ok {
		reconciler.SeedBalance(bal)
	}

	slog.InfoContext(ctx, "✨ Quoter fully operational. Press Ctrl+C to exit.")

	runErr := reconciler.Run(ctx)

	// Teardown order matters: the reconciler has already swept its orders,
	// and the pool must outlive the sweep so those cancels complete.
	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	balances.Stop()
	feed.Disconnect()
	pool.Stop()

	snap := bootstrap.Metrics.Snapshot()
	slog.Info("Session summary",
		slog.Uint64("ticks", snap.TicksReceived),
		slog.Uint64("orders_placed", snap.OrdersPlaced),
		slog.Uint64("orders_cancelled", snap.OrdersCancelled),
		slog.Uint64("orders_filled", snap.OrdersFilled),
		slog.Uint64("rejections", snap.Rejections),
		slog.Uint64("unknown_outcomes", snap.UnknownOutcomes),
	)

	if runErr != nil {
		slog.Error("Quoter halted", slog.Any("error", runErr))
		os.Exit(1)
	}
}
