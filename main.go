package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"scalp-core/internal/api"
	"scalp-core/internal/events"
	"scalp-core/internal/feed"
	"scalp-core/internal/monitor"
	"scalp-core/internal/risk"
	"scalp-core/internal/scanner"
	sigq "scalp-core/internal/signal"
	"scalp-core/internal/state"
	"scalp-core/internal/strategy"
	"scalp-core/pkg/bybit"
	"scalp-core/pkg/config"
	"scalp-core/pkg/db"
	"scalp-core/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logging.Setup(cfg.LogPath)
	log.Printf("scalp-core starting, port %s, testnet=%v", cfg.Port, cfg.BybitTestnet)

	universe, err := config.LoadUniverse(cfg.UniversePath)
	if err != nil {
		log.Fatalf("universe load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()

	client := bybit.NewClient(cfg.BybitAPIKey, cfg.BybitAPISecret, cfg.BybitTestnet)
	stream := bybit.NewStreamClient(cfg.BybitTestnet)

	store := state.NewStore(cfg.SellDustUSD)

	riskCfg := risk.Config{
		DayLossLimitUSD:    cfg.DayLossLimitUSD,
		DayProfitTargetPct: cfg.DayProfitTargetPct,
		RiskPerTrade:       cfg.RiskPerTrade,
		MaxActiveSymbols:   cfg.MaxActiveSymbols,
		MaxSlippageBps:     cfg.MaxSlippageBps,
		DefaultTPBps:       cfg.DefaultTPBps,
		DefaultSLBps:       cfg.DefaultSLBps,
		TrailingSLBps:      cfg.TrailingSLBps,
		MaxHoldingTime:     cfg.MaxHoldingTime,
	}
	engine, err := risk.NewEngine(store, client, riskCfg, universe.Symbols)
	if err != nil {
		log.Fatalf("risk engine init failed: %v", err)
	}

	// Trading without instrument metadata is unsafe; abort startup.
	if err := engine.LoadInstrumentInfo(ctx); err != nil {
		log.Fatalf("instrument info load failed: %v", err)
	}

	// Seed balances and the daily P&L baseline.
	initialBalance, err := client.GetWalletBalance(ctx)
	if err != nil {
		log.Fatalf("initial balance fetch failed: %v", err)
	}
	store.UpdateWalletBalance(initialBalance)
	store.SetInitialEquity(initialBalance.TotalEquity)
	log.Printf("initial equity %.2f, available %.2f", initialBalance.TotalEquity, initialBalance.AvailableBalance)

	queue := sigq.NewQueue()

	scan := scanner.New(client, store, engine, queue, universe.Scanner, cfg.ScannerInterval)
	mon := monitor.New(store, engine, queue, cfg.MonitorInterval)

	router := strategy.NewRouter(queue, store, engine, client, bus, strategy.Options{
		Cooldown:     cfg.TradeCooldown,
		LockGrace:    cfg.LockGrace,
		TopUpDustUSD: cfg.TopUpDustUSD,
		SellDustUSD:  cfg.SellDustUSD,
	}, scan.Start, mon.Start)

	recorder := feed.NewRecorder(bus, database)
	recorder.Start(ctx)

	feedSvc := feed.NewService(client, stream, store, engine, router, bus, feed.Options{
		BalanceInterval: cfg.BalanceInterval,
		HistoryInterval: cfg.HistoryInterval,
	})
	if err := feedSvc.Start(ctx); err != nil {
		log.Fatalf("feed start failed: %v", err)
	}

	router.Start()

	server := api.NewServer(bus, store, engine, router, cfg.JWTSecret, cfg.JWTExpiry, cfg.AdminUser, cfg.AdminPassHash)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Printf("shutting down")
	router.Stop()
	cancel()
}
