package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"mft-core/internal/analysis"
	"mft-core/internal/api"
	"mft-core/internal/decision"
	"mft-core/internal/events"
	"mft-core/internal/market"
	"mft-core/internal/observation"
	"mft-core/internal/persistence"
	"mft-core/internal/profile"
	"mft-core/internal/signalqueue"
	"mft-core/pkg/config"
	"mft-core/pkg/db"
)

const defaultLookback = 120

type counters struct {
	ticks     atomic.Uint64
	decisions atomic.Uint64
	rejected  atomic.Uint64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("🔄 analyzer starting on port %s (symbols %v)", cfg.Port, cfg.Symbols)

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
	resolved, err := profiles.ResolveAll()
	if err != nil {
		log.Fatalf("profile resolution failed: %v", err)
	}
	names := make([]string, 0, len(resolved))
	for _, r := range resolved {
		names = append(names, r.Name)
	}
	log.Printf("✓ %d profiles resolved: %v", len(resolved), names)

	writer, err := signalqueue.NewWriter(cfg.SignalDir)
	if err != nil {
		log.Fatalf("signal log failed: %v", err)
	}
	defer writer.Close()

	// Ingestion
	if cfg.UseMockFeed {
		mock := &market.MockFeed{
			DB:      database,
			Bus:     bus,
			Symbols: cfg.Symbols,
		}
		mock.Start(ctx)
	} else if cfg.FeedURL != "" {
		batch := persistence.NewBatchWriter(database, 50, 500*time.Millisecond)
		defer batch.Close()
		feed := market.NewFeed(cfg.FeedURL, database, bus)
		feed.Batch = batch
		go feed.Start(ctx)
	} else {
		log.Println("⚠️ no feed configured; analyzer consumes stored observations only")
	}

	guard := observation.NewGuard(database)
	engine := decision.NewEngine(nil)
	var stat counters

	go summaryLoop(ctx, &stat)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	server := api.NewServer(bus, database, api.SystemMeta{
		Role:        "analyzer",
		DryRun:      cfg.DryRun,
		Symbols:     cfg.Symbols,
		Profiles:    names,
		UseMockFeed: cfg.UseMockFeed,
		Version:     buildVersion,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	go analysisLoop(ctx, cfg, profiles, resolved, database, guard, engine, writer, bus, &stat)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down analyzer")
	cancel()
}

// analysisLoop evaluates every (symbol, profile) pair on the configured
// cadence. One goroutine owns the decision engine, so its rate-limit
// ledger needs no locks.
func analysisLoop(ctx context.Context, cfg *config.Config, profiles *profile.File,
	resolved []profile.Resolved, database *db.Database, guard *observation.Guard,
	engine *decision.Engine, writer *signalqueue.Writer, bus *events.Bus, stat *counters) {

	t := time.NewTicker(cfg.AnalysisInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, symbol := range cfg.Symbols {
				evaluateSymbol(ctx, symbol, profiles, resolved, database, guard, engine, writer, bus, stat)
			}
		}
	}
}

func evaluateSymbol(ctx context.Context, symbol string, profiles *profile.File,
	resolved []profile.Resolved, database *db.Database, guard *observation.Guard,
	engine *decision.Engine, writer *signalqueue.Writer, bus *events.Bus, stat *counters) {

	lookback := defaultLookback
	if in, ok := profiles.FindInstrument(symbol); ok && in.Lookback > 0 {
		lookback = in.Lookback
	}

	rows, err := database.RecentObservations(ctx, symbol, lookback)
	if err != nil {
		log.Printf("⚠️ observations unavailable for %s: %v", symbol, err)
		return
	}

	wyckoffFrame, ok := guard.Prepare(ctx, symbol, "wyckoff", rows, observation.RequiredFields("wyckoff"))
	if !ok {
		return
	}
	flowFrame, _ := guard.Prepare(ctx, symbol, "order_flow", rows, observation.RequiredFields("order_flow"))
	momentumFrame, _ := guard.Prepare(ctx, symbol, "momentum", rows, observation.RequiredFields("momentum"))
	lastPrice := wyckoffFrame.LastPrice()

	for _, prof := range resolved {
		stat.ticks.Add(1)

		phase := analysis.AnalyzePhase(wyckoffFrame, prof.Analysis)
		flow := analysis.AnalyzeOrderFlow(flowFrame, prof.Analysis)
		momentum := analysis.AnalyzeMomentum(momentumFrame, prof.Analysis)

		d, rejection := engine.Evaluate(symbol, prof, phase, flow, momentum, lastPrice)
		if d == nil {
			stat.rejected.Add(1)
			if rejection != decision.RejectNoSignals && engine.ShouldEmitDiagnostic(symbol, prof) {
				decision.LogRejection(symbol, prof.Name, rejection)
				log.Printf("📊 %s/%s modules: phase=%v(%.2f) flow=%v(%.2f) momentum=%v(%.2f) relvol=%.2f",
					symbol, prof.Name,
					phase.Valid, phase.Confidence,
					flow.Valid, flow.Confidence,
					momentum.Valid, momentum.Confidence,
					phase.RelativeVolume)
			}
			continue
		}

		if err := writer.Append(*d); err != nil {
			// Not durable, so not emitted; the executor never sees it.
			log.Printf("❌ decision %s not persisted: %v", d.ID, err)
			continue
		}
		stat.decisions.Add(1)
		bus.Publish(events.EventDecision, *d)
		log.Printf("✓ decision %s: %s %s @ %.2f (stop %.2f target %.2f conf %.2f rr %.2f)",
			d.ID, d.Symbol, d.Direction, d.EntryPrice, d.StopPrice, d.TargetPrice,
			d.Confidence, d.RiskReward)
	}
}

// summaryLoop prints a periodic heartbeat so an idle analyzer is
// distinguishable from a stuck one.
func summaryLoop(ctx context.Context, stat *counters) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Printf("📊 analyzer: %d evaluations, %d decisions, %d rejections",
				stat.ticks.Load(), stat.decisions.Load(), stat.rejected.Load())
		}
	}
}
