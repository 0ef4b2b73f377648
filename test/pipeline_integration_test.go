package main

import (
	"context"
	"testing"
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

func seedAccumulation(t *testing.T, ctx context.Context, database *db.Database) {
	t.Helper()
	base := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
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
		t.Fatalf("seed observations: %v", err)
	}
}

func testProfile() profile.Resolved {
	return profile.Resolved{
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
}

// TestPipelineEndToEnd walks the whole path: stored observations through
// analysis and aggregation, a decision over the durable queue, sized
// execution on the simulated venue, and settlement into the daily ledger.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedAccumulation(t, ctx, database)

	rows, err := database.RecentObservations(ctx, "WIN$N", 120)
	if err != nil {
		t.Fatalf("observations: %v", err)
	}
	guard := observation.NewGuard(database)
	frame, ok := guard.Prepare(ctx, "WIN$N", "wyckoff", rows, observation.RequiredFields("wyckoff"))
	if !ok {
		t.Fatal("no frame")
	}

	prof := testProfile()
	phase := analysis.AnalyzePhase(frame, prof.Analysis)
	flow := analysis.AnalyzeOrderFlow(frame, prof.Analysis)
	momentum := analysis.AnalyzeMomentum(frame, prof.Analysis)

	if phase.Phase != analysis.PhaseAccumulation {
		t.Fatalf("expected accumulation phase, got %s", phase.Phase)
	}

	engine := decision.NewEngine(nil)
	d, rejection := engine.Evaluate("WIN$N", prof, phase, flow, momentum, frame.LastPrice())
	if d == nil {
		t.Fatalf("no decision: %s", rejection)
	}
	if d.Direction != analysis.Buy {
		t.Fatalf("expected buy, got %s", d.Direction)
	}

	// Producer side of the durable queue.
	dir := t.TempDir()
	writer, err := signalqueue.NewWriter(dir)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := writer.Append(*d); err != nil {
		t.Fatalf("append: %v", err)
	}
	writer.Close()

	// Consumer side.
	reader, err := signalqueue.NewReader(dir)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	batch, err := reader.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected one delivered decision, got %d", len(batch))
	}

	sim := broker.NewSim(100000)
	sim.Step = 0
	sim.SetPrice("WIN$N", d.EntryPrice)

	ledger, err := stats.New(ctx, database)
	if err != nil {
		t.Fatalf("ledger: %v", err)
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
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
		},
	}

	if err := worker.Handle(ctx, batch[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}

	open, err := database.OpenOrders(ctx)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open order, got %d", len(open))
	}
	if open[0].DecisionID != d.ID {
		t.Fatalf("order not linked to decision: %s", open[0].DecisionID)
	}

	// A consumer that crashed before committing its cursor redelivers
	// the batch on restart; the dedup ledger must absorb it.
	reader2, err := signalqueue.NewReader(dir)
	if err != nil {
		t.Fatalf("reader2: %v", err)
	}
	replay, err := reader2.Poll()
	if err != nil {
		t.Fatalf("replay poll: %v", err)
	}
	if len(replay) != 1 {
		t.Fatalf("expected redelivery of one decision, got %d", len(replay))
	}
	for _, dec := range replay {
		if err := worker.Handle(ctx, dec); err != nil {
			t.Fatalf("replay handle: %v", err)
		}
	}
	n, err := database.CountOrdersForDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("replay produced %d orders for one decision", n)
	}
	if err := reader2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The venue closes the position 100 points in our favor; the
	// reconciler settles the row and the ledger.
	if err := sim.ClosePositionAt(open[0].BrokerTicket, open[0].RequestedPrice+100); err != nil {
		t.Fatalf("close: %v", err)
	}
	worker.ReconcileClosed(ctx)

	stillOpen, err := database.OpenOrders(ctx)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(stillOpen) != 0 {
		t.Fatalf("order not settled, %d still open", len(stillOpen))
	}

	today := ledger.Today(ctx)
	if today.Trades != 1 || today.Wins != 1 {
		t.Fatalf("ledger counters: %+v", today)
	}
	if today.PnL <= 0 {
		t.Fatalf("expected positive pnl, got %v", today.PnL)
	}
}
