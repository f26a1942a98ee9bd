package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"risk_go/internal/api"
	"risk_go/internal/app"
	"risk_go/internal/engine"
	"risk_go/internal/infra/feed"
	"risk_go/internal/service"
)

func main() {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// State cache + refresher keep the three broker snapshots warm.
	cache := engine.NewTradingCache(cfg.CacheTTL())
	refresher := engine.NewRefresher(cache, bootstrap.Broker, cfg.RefreshInterval())
	go refresher.Run(ctx)
	slog.Info("✅ State cache refresher started")

	// Risk pipeline.
	stability := engine.NewStabilityTracker(cfg.StabilityDwell())
	stopLoss := engine.NewStopLoss(bootstrap.Broker, bootstrap.Journal, bootstrap.Window, engine.StopLossConfig{
		SLPercent:        cfg.Risk.SLPercent,
		FirstProfitStage: cfg.Risk.FirstProfitStage,
		LimitBufferPct:   cfg.Risk.LimitBufferPct,
		PlacementLockTTL: cfg.PlacementLockTTL(),
		ProductType:      cfg.Risk.ProductType,
		Retention:        cfg.Risk.Retention,
	})
	timeExit := engine.NewTimeExit(bootstrap.Broker, bootstrap.Journal, cfg.TimeExitWindow(),
		cfg.Risk.ProductType, cfg.Risk.Retention)
	target := engine.NewTarget(bootstrap.Broker, bootstrap.Journal, timeExit, engine.TargetConfig{
		TargetPercent: cfg.Risk.TargetPercent,
		ProductType:   cfg.Risk.ProductType,
		Retention:     cfg.Risk.Retention,
	})
	riskEngine := engine.New(cache, bootstrap.Catalog, bootstrap.Window, stability, stopLoss, target)

	// Tick feed drives the pipeline.
	feedWorker := feed.NewWorker(cfg.Feed.WSURL, cfg.Feed.Scrips, riskEngine)
	if err := feedWorker.Connect(ctx); err != nil {
		slog.Error("❌ Feed connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer feedWorker.Disconnect()
	slog.Info("✅ Tick feed started", slog.Int("scrips", len(cfg.Feed.Scrips)))

	// Services.
	execution := service.NewExecution(bootstrap.Broker, bootstrap.Storage, bootstrap.Catalog,
		bootstrap.Window, cfg.SweepInterval(), cfg.Execution.Enabled, cfg.Risk.Retention)
	defer execution.Close()
	go execution.Run(ctx)
	slog.Info("✅ Trade execution sweep started", slog.Bool("enabled", cfg.Execution.Enabled))

	market := service.NewMarket(bootstrap.Broker)
	defer market.Close()

	signals := service.NewSignals(bootstrap.Storage, bootstrap.Catalog)
	defer signals.Close()

	// Admin HTTP surface.
	server := api.NewServer(cfg.Server.Addr, signals, execution, market)
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("admin server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown failed", slog.Any("error", err))
	}
}
