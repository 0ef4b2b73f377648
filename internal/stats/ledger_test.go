package stats

import (
	"context"
	"testing"
	"time"

	"mft-core/pkg/db"
)

func newLedger(t *testing.T) (*Ledger, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	l, err := New(context.Background(), database)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return l, database
}

func TestRecordCloseUpdatesCounters(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.RecordClose(ctx, 120)
	l.RecordClose(ctx, -60)
	l.RecordClose(ctx, 0)

	s := l.Today(ctx)
	if s.Trades != 3 || s.Wins != 1 || s.Losses != 1 {
		t.Errorf("counters wrong: %+v", s)
	}
	if s.PnL != 60 {
		t.Errorf("expected pnl 60, got %v", s.PnL)
	}
}

func TestLedgerResumesFromStore(t *testing.T) {
	l, database := newLedger(t)
	ctx := context.Background()
	l.RecordClose(ctx, 250)

	// A restarted executor builds a fresh ledger over the same store.
	l2, err := New(ctx, database)
	if err != nil {
		t.Fatalf("second ledger: %v", err)
	}
	if got := l2.DailyPnL(ctx); got != 250 {
		t.Errorf("expected resumed pnl 250, got %v", got)
	}
}

func TestDayRolloverResetsTotals(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return day1 }
	l.RecordClose(ctx, 500)
	if l.DailyPnL(ctx) != 500 {
		t.Fatalf("day one pnl wrong: %v", l.DailyPnL(ctx))
	}

	l.Now = func() time.Time { return day1.Add(24 * time.Hour) }
	if got := l.DailyPnL(ctx); got != 0 {
		t.Errorf("new day must start at zero, got %v", got)
	}
	if l.Today(ctx).Date != "2025-03-11" {
		t.Errorf("rollover date wrong: %s", l.Today(ctx).Date)
	}
}

func TestDayStartBalanceApproximation(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.RecordClose(ctx, -400)
	// Balance already reflects the loss; start of day adds it back.
	if got := l.DayStartBalance(ctx, 99600); got != 100000 {
		t.Errorf("expected day-start 100000, got %v", got)
	}
}
