// Package stats keeps the day's trade counters. The ledger is owned by
// the execution worker; day rollover reloads from the audit store so a
// restarted executor resumes mid-day totals.
package stats

import (
	"context"
	"fmt"
	"log"
	"time"

	"mft-core/pkg/db"
)

// Ledger caches today's DailyStats row.
type Ledger struct {
	DB  *db.Database
	Now func() time.Time

	current db.DailyStats
}

// New builds a ledger and loads the current day's row.
func New(ctx context.Context, database *db.Database) (*Ledger, error) {
	l := &Ledger{DB: database, Now: time.Now}
	if err := l.reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) today() string {
	return l.Now().Format("2006-01-02")
}

func (l *Ledger) reload(ctx context.Context) error {
	s, err := l.DB.GetDailyStats(ctx, l.today())
	if err != nil {
		return fmt.Errorf("load daily stats: %w", err)
	}
	l.current = s
	return nil
}

// ensureDay rolls the cache to a fresh row when the calendar day changed.
func (l *Ledger) ensureDay(ctx context.Context) {
	if l.current.Date == l.today() {
		return
	}
	log.Printf("🔄 daily stats rollover: %s -> %s", l.current.Date, l.today())
	if err := l.reload(ctx); err != nil {
		// Stale totals are safer than none; keep going with the old row.
		log.Printf("⚠️ stats reload failed: %v", err)
		l.current = db.DailyStats{Date: l.today()}
	}
}

// RecordClose folds one closed trade into the day and persists it.
func (l *Ledger) RecordClose(ctx context.Context, profit float64) {
	l.ensureDay(ctx)

	l.current.Trades++
	l.current.PnL += profit
	if profit > 0 {
		l.current.Wins++
	} else if profit < 0 {
		l.current.Losses++
	}

	if err := l.DB.RecordTradeResult(ctx, l.current.Date, profit); err != nil {
		// In-memory totals still gate the circuit breaker.
		log.Printf("⚠️ daily stats not persisted: %v", err)
	}
}

// Today returns a copy of the current day's totals.
func (l *Ledger) Today(ctx context.Context) db.DailyStats {
	l.ensureDay(ctx)
	return l.current
}

// DailyPnL returns today's realized result.
func (l *Ledger) DailyPnL(ctx context.Context) float64 {
	l.ensureDay(ctx)
	return l.current.PnL
}

// DayStartBalance approximates the balance at session open: the current
// balance minus what today already realized.
func (l *Ledger) DayStartBalance(ctx context.Context, currentBalance float64) float64 {
	l.ensureDay(ctx)
	return currentBalance - l.current.PnL
}
