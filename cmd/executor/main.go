package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mft-core/internal/api"
	"mft-core/internal/broker"
	"mft-core/internal/events"
	"mft-core/internal/execution"
	"mft-core/internal/monitor"
	"mft-core/internal/profile"
	"mft-core/internal/signalqueue"
	"mft-core/internal/stats"
	"mft-core/pkg/config"
	"mft-core/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("🔄 executor starting on port %s (tag %s)", cfg.Port, cfg.OrderTag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	profiles, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("profile config failed: %v", err)
	}
	settings, err := execution.ResolveSettings(profiles.Execution, cfg.OrderTag)
	if err != nil {
		log.Fatalf("execution settings failed: %v", err)
	}

	// The simulated venue is the only gateway today; DRY_RUN=false still
	// runs against it, just without the dry-run banner in /api/status.
	sim := broker.NewSim(cfg.SimBalance)
	sim.FailureRate = cfg.SimFailureRate
	if !cfg.DryRun {
		log.Println("⚠️ live gateway not configured; using simulated venue")
	}
	gateway := broker.Throttle(sim, 10, 20)

	ledger, err := stats.New(ctx, database)
	if err != nil {
		log.Fatalf("daily stats failed: %v", err)
	}
	today := ledger.Today(ctx)
	log.Printf("✓ daily ledger loaded: %s trades=%d pnl=%.2f", today.Date, today.Trades, today.PnL)

	reader, err := signalqueue.NewReader(cfg.SignalDir)
	if err != nil {
		log.Fatalf("signal reader failed: %v", err)
	}
	if lag := reader.Lag(); lag > 0 {
		log.Printf("🔄 resuming signal log with %d bytes pending", lag)
	}

	worker := &execution.Worker{
		DB:      database,
		Gateway: gateway,
		Stats:   ledger,
		Bus:     bus,
		Cfg:     settings,
	}
	go worker.Run(ctx, reader, cfg.SignalPoll)
	go reconcileLoop(ctx, worker, cfg.ReconcileEvery)

	mon := &monitor.Monitor{
		Gateway:     gateway,
		Bus:         bus,
		Alerts:      monitor.LogSink{},
		Tag:         cfg.OrderTag,
		SessionEnd:  sessionEndMinute(cfg, profiles, settings),
		CloseBuffer: time.Duration(profiles.Execution.CloseBeforeEnd) * time.Minute,
	}
	go mon.Run(ctx, cfg.MonitorInterval)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	server := api.NewServer(bus, database, api.SystemMeta{
		Role:    "executor",
		DryRun:  cfg.DryRun,
		Symbols: cfg.Symbols,
		Version: buildVersion,
	})
	server.Gateway = gateway
	server.Tag = cfg.OrderTag
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down executor")
	cancel()
}

// reconcileLoop settles order rows whose broker position has closed.
func reconcileLoop(ctx context.Context, worker *execution.Worker, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			worker.ReconcileClosed(ctx)
		}
	}
}

// sessionEndMinute prefers the instrument's session end over the
// trading-window end, since positions must be flat before the session
// itself closes.
func sessionEndMinute(cfg *config.Config, profiles *profile.File, settings execution.Settings) int {
	for _, symbol := range cfg.Symbols {
		in, ok := profiles.FindInstrument(symbol)
		if !ok || in.SessionEnd == "" {
			continue
		}
		if minute, err := profile.ParseClock(in.SessionEnd); err == nil {
			return minute
		}
		log.Printf("⚠️ invalid session_end for %s: %q", symbol, in.SessionEnd)
	}
	return settings.WindowEnd
}
