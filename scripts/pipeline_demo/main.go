package main

import (
	"context"
	"log"
	"os"
	"time"

	"mft-core/internal/analysis"
	"mft-core/internal/broker"
	"mft-core/internal/decision"
	"mft-core/internal/execution"
	"mft-core/internal/observation"
	"mft-core/internal/profile"
	"mft-core/internal/signalqueue"
	"mft-core/internal/stats"
	"mft-core/pkg/db"
)

// pipeline_demo drives the whole path in one process: seeded
// observations, analysis, a decision through the durable queue, sized
// execution against the simulated venue, and reconciliation into the
// daily ledger. It touches no external services.
//
// Usage:
//
//	go run ./scripts/pipeline_demo
func main() {
	log.Println("=== pipeline demo starting ===")
	ctx := context.Background()

	database, err := db.New(":memory:")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Seed an accumulation shape: ascent on falling volume, a shelf,
	// then a decline to the bottom of the range on rising volume.
	seedObservations(ctx, database)

	prof := profile.Resolved{
		Name:                "aggressive",
		MinConfidence:       0.55,
		SignalInterval:      time.Minute,
		MinRiskReward:       1.0,
		RequireConfirmation: false,
		TieBreak:            "buy",
		Analysis: profile.Analysis{
			VolumeMAPeriod:      5,
			RangeWindow:         20,
			AggressionThreshold: 2.0,
			AbsorptionThreshold: 1.5,
			FastPeriod:          5,
			SlowPeriod:          20,
			ROCThreshold:        0.1,
		},
	}

	rows, err := database.RecentObservations(ctx, "WIN$N", 120)
	if err != nil {
		log.Fatalf("observations: %v", err)
	}
	guard := observation.NewGuard(database)
	frame, ok := guard.Prepare(ctx, "WIN$N", "wyckoff", rows, observation.RequiredFields("wyckoff"))
	if !ok {
		log.Fatal("no frame")
	}

	phase := analysis.AnalyzePhase(frame, prof.Analysis)
	flow := analysis.AnalyzeOrderFlow(frame, prof.Analysis)
	momentum := analysis.AnalyzeMomentum(frame, prof.Analysis)
	log.Printf("modules: phase=%s flow.valid=%v momentum.trend=%s",
		phase.Phase, flow.Valid, momentum.Trend)

	engine := decision.NewEngine(nil)
	d, rejection := engine.Evaluate("WIN$N", prof, phase, flow, momentum, frame.LastPrice())
	if d == nil {
		log.Fatalf("no decision: %s", rejection)
	}
	log.Printf("decision: %s %s @ %.2f stop %.2f target %.2f (conf %.2f rr %.2f)",
		d.Direction, d.Symbol, d.EntryPrice, d.StopPrice, d.TargetPrice, d.Confidence, d.RiskReward)

	// Through the durable queue, like the real processes.
	dir, err := os.MkdirTemp("", "pipeline-demo-signals")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	writer, err := signalqueue.NewWriter(dir)
	if err != nil {
		log.Fatalf("writer: %v", err)
	}
	if err := writer.Append(*d); err != nil {
		log.Fatalf("append: %v", err)
	}
	writer.Close()

	reader, err := signalqueue.NewReader(dir)
	if err != nil {
		log.Fatalf("reader: %v", err)
	}
	batch, err := reader.Poll()
	if err != nil {
		log.Fatalf("poll: %v", err)
	}
	log.Printf("queue delivered %d decision(s)", len(batch))

	sim := broker.NewSim(100000)
	sim.Step = 0
	sim.SetPrice("WIN$N", d.EntryPrice)

	ledger, err := stats.New(ctx, database)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	worker := &execution.Worker{
		DB:      database,
		Gateway: sim,
		Stats:   ledger,
		Cfg: execution.Settings{
			Tag:             "mft-core",
			MaxOpenTrades:   3,
			RiskPerTradePct: 1.0,
			MaxDailyLossPct: 3.0,
			WindowStart:     0,
			WindowEnd:       24 * 60,
		},
	}
	for _, dec := range batch {
		if err := worker.Handle(ctx, dec); err != nil {
			log.Fatalf("handle: %v", err)
		}
	}
	if err := reader.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	open, _ := database.OpenOrders(ctx)
	for _, o := range open {
		log.Printf("order open: %s x%.0f (ticket %s)", o.Symbol, o.Volume, o.BrokerTicket)
		// The venue closes it 100 points in our favor.
		exit := o.RequestedPrice + 100
		if o.Direction == string(analysis.Sell) {
			exit = o.RequestedPrice - 100
		}
		if err := sim.ClosePositionAt(o.BrokerTicket, exit); err != nil {
			log.Fatalf("close: %v", err)
		}
	}
	worker.ReconcileClosed(ctx)

	today := ledger.Today(ctx)
	log.Printf("daily ledger: trades=%d wins=%d losses=%d pnl=%.2f",
		today.Trades, today.Wins, today.Losses, today.PnL)
	balance, _ := sim.AccountBalance(ctx)
	log.Printf("venue balance: %.2f", balance)
	log.Println("=== pipeline demo complete ===")
}

func seedObservations(ctx context.Context, database *db.Database) {
	base := time.Now().UTC().Add(-30 * time.Minute)
	point := func(i int, price, volume float64) db.Observation {
		high := price + 1
		low := price - 1
		buy := volume / 2
		sell := volume / 2
		bal := 0.0
		return db.Observation{
			Symbol:            "WIN$N",
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
			Last:              price,
			High:              &high,
			Low:               &low,
			Volume:            &volume,
			BuyAggression:     &buy,
			SellAggression:    &sell,
			AggressionBalance: &bal,
		}
	}

	var rows []db.Observation
	for i := 0; i < 10; i++ {
		rows = append(rows, point(i, 100+2*float64(i), 100-float64(i)))
	}
	for i := 10; i < 15; i++ {
		rows = append(rows, point(i, 118, 91))
	}
	for i := 15; i < 25; i++ {
		rows = append(rows, point(i, 118-2*float64(i-14), 100+10*float64(i-14)))
	}
	if err := database.AppendObservations(ctx, rows); err != nil {
		log.Fatalf("seed: %v", err)
	}
}
