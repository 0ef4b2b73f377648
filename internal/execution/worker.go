package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mft-core/internal/broker"
	"mft-core/internal/decision"
	"mft-core/internal/events"
	"mft-core/internal/profile"
	"mft-core/internal/stats"
	"mft-core/pkg/db"
)

// Settings are the executor-side gates, resolved from the execution
// section of the profile file.
type Settings struct {
	Tag             string
	MaxOpenTrades   int
	RiskPerTradePct float64
	MaxDailyLossPct float64
	WindowStart     int // minutes past midnight
	WindowEnd       int
}

// ResolveSettings parses the trading window clocks.
func ResolveSettings(e profile.Execution, tag string) (Settings, error) {
	start, err := profile.ParseClock(e.TradingStart)
	if err != nil {
		return Settings{}, fmt.Errorf("trading_start: %w", err)
	}
	end, err := profile.ParseClock(e.TradingEnd)
	if err != nil {
		return Settings{}, fmt.Errorf("trading_end: %w", err)
	}
	return Settings{
		Tag:             tag,
		MaxOpenTrades:   e.MaxOpenTrades,
		RiskPerTradePct: e.RiskPerTradePct,
		MaxDailyLossPct: e.MaxDailyLossPct,
		WindowStart:     start,
		WindowEnd:       end,
	}, nil
}

// Decisions is the worker's intake; satisfied by signalqueue.Reader.
type Decisions interface {
	Poll() ([]decision.Decision, error)
	Commit() error
}

// Worker is the strict single consumer that turns accepted decisions
// into sized orders. All shared state it mutates (dedup ledger, daily
// stats) is owned here, so Handle needs no locking.
type Worker struct {
	DB      *db.Database
	Gateway broker.Gateway
	Stats   *stats.Ledger
	Bus     *events.Bus
	Cfg     Settings
	Now     func() time.Time
}

// Run drains the intake on its cadence until the context stops it. No
// failure terminates the loop; errors log and the next tick retries.
func (w *Worker) Run(ctx context.Context, intake Decisions, poll time.Duration) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			batch, err := intake.Poll()
			if err != nil {
				log.Printf("⚠️ signal poll failed: %v", err)
				continue
			}
			failed := false
			for _, d := range batch {
				if err := w.Handle(ctx, d); err != nil {
					failed = true
					log.Printf("⚠️ decision %s not handled: %v", d.ID, err)
				}
			}
			// Holding the cursor redelivers the batch next poll; decisions
			// that did reach a terminal outcome are absorbed by the dedup
			// ledger on replay.
			if len(batch) > 0 && !failed {
				if err := intake.Commit(); err != nil {
					log.Printf("⚠️ signal cursor not committed: %v", err)
				}
			}
		}
	}
}

// Handle processes one delivered decision. A nil return means the
// decision reached a terminal outcome (executed, rejected, or failed);
// only infrastructure errors worth a redelivery return non-nil.
func (w *Worker) Handle(ctx context.Context, d decision.Decision) error {
	fresh, err := w.DB.MarkDecisionProcessed(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("dedup ledger: %w", err)
	}
	if !fresh {
		// Redelivery through the signal channel; already attempted.
		return nil
	}

	if reason := w.tradingBlocked(ctx); reason != "" {
		w.reject(d, reason)
		return nil
	}

	open, err := w.Gateway.OpenPositions(ctx, w.Cfg.Tag)
	if err != nil {
		w.reject(d, fmt.Sprintf("open positions unavailable: %v", err))
		return nil
	}
	if w.Cfg.MaxOpenTrades > 0 && len(open) >= w.Cfg.MaxOpenTrades {
		w.reject(d, fmt.Sprintf("exposure limit: %d positions open", len(open)))
		return nil
	}

	info, err := w.Gateway.SymbolInfo(ctx, d.Symbol)
	if err != nil {
		w.reject(d, fmt.Sprintf("symbol info unavailable: %v", err))
		return nil
	}
	balance, err := w.Gateway.AccountBalance(ctx)
	if err != nil {
		w.reject(d, fmt.Sprintf("balance unavailable: %v", err))
		return nil
	}
	lot, err := LotSize(balance, w.Cfg.RiskPerTradePct, d.EntryPrice, d.StopPrice, info)
	if err != nil {
		w.reject(d, fmt.Sprintf("sizing: %v", err))
		return nil
	}

	quote, err := w.Gateway.Quote(ctx, d.Symbol)
	if err != nil {
		w.reject(d, fmt.Sprintf("quote unavailable: %v", err))
		return nil
	}

	order := db.Order{
		ID:             uuid.NewString(),
		Symbol:         d.Symbol,
		Direction:      string(d.Direction),
		Volume:         lot,
		RequestedPrice: quote.Last,
		StopPrice:      d.StopPrice,
		TargetPrice:    d.TargetPrice,
		Profile:        d.Profile,
		DecisionID:     d.ID,
	}

	res, submitErr := w.Gateway.SubmitMarketOrder(ctx, broker.OrderRequest{
		Symbol:    d.Symbol,
		Direction: d.Direction,
		Volume:    lot,
		Stop:      d.StopPrice,
		Target:    d.TargetPrice,
		Tag:       w.Cfg.Tag,
	})
	if submitErr != nil {
		// Terminal: a failed submission is never retried; a fresh
		// decision is required.
		order.Status = db.OrderFailed
		log.Printf("❌ order failed for %s: %v", d.ID, submitErr)
		w.publish(events.EventOrderFailed, order)
	} else {
		order.Status = db.OrderOpen
		order.BrokerTicket = res.Ticket
		order.OpenedAt = w.now()
		log.Printf("✓ order open: %s %s x%.0f @ %.2f (ticket %s)",
			d.Symbol, d.Direction, lot, res.Price, res.Ticket)
		w.publish(events.EventOrderSubmitted, order)
	}

	// Audit row regardless of outcome. A store failure is an accepted
	// loss, not a crash.
	if err := w.DB.CreateOrder(ctx, order); err != nil {
		log.Printf("⚠️ order row not persisted: %v", err)
	}
	return nil
}

// ReconcileClosed walks open order rows and settles the ones whose
// broker position has gone away, updating the daily ledger.
func (w *Worker) ReconcileClosed(ctx context.Context) {
	orders, err := w.DB.OpenOrders(ctx)
	if err != nil {
		log.Printf("⚠️ reconcile: open orders unavailable: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	positions, err := w.Gateway.OpenPositions(ctx, w.Cfg.Tag)
	if err != nil {
		log.Printf("⚠️ reconcile: positions unavailable: %v", err)
		return
	}
	stillOpen := make(map[string]bool, len(positions))
	for _, p := range positions {
		stillOpen[p.Ticket] = true
	}

	for _, o := range orders {
		if stillOpen[o.BrokerTicket] {
			continue
		}
		hist, err := w.Gateway.History(ctx, o.BrokerTicket)
		if err != nil {
			// Not in history yet; try again next pass.
			log.Printf("⚠️ reconcile: no history for ticket %s: %v", o.BrokerTicket, err)
			continue
		}
		if err := w.DB.CloseOrder(ctx, o.ID, w.now(), hist.Profit, "broker closed"); err != nil {
			log.Printf("⚠️ reconcile: close order %s: %v", o.ID, err)
			continue
		}
		w.Stats.RecordClose(ctx, hist.Profit)
		log.Printf("✓ position closed: %s profit %.2f", o.BrokerTicket, hist.Profit)
		w.publish(events.EventPositionClosed, o)
	}
}

// tradingBlocked applies the trading-window gate and the daily-loss
// circuit breaker. Empty string means trading is allowed.
func (w *Worker) tradingBlocked(ctx context.Context) string {
	minute := profile.MinuteOfDay(w.now())
	if minute < w.Cfg.WindowStart || minute >= w.Cfg.WindowEnd {
		return "outside trading window"
	}

	if w.Cfg.MaxDailyLossPct > 0 {
		balance, err := w.Gateway.AccountBalance(ctx)
		if err != nil {
			return fmt.Sprintf("balance unavailable: %v", err)
		}
		pnl := w.Stats.DailyPnL(ctx)
		dayStart := w.Stats.DayStartBalance(ctx, balance)
		limit := w.Cfg.MaxDailyLossPct / 100 * dayStart
		if pnl < -limit {
			return fmt.Sprintf("daily loss breaker: pnl %.2f below -%.2f", pnl, limit)
		}
	}
	return ""
}

func (w *Worker) reject(d decision.Decision, reason string) {
	log.Printf("🚫 decision %s rejected: %s", d.ID, reason)
	w.publish(events.EventOrderRejected, struct {
		Decision decision.Decision
		Reason   string
	}{d, reason})
}

func (w *Worker) publish(e events.Event, payload any) {
	if w.Bus != nil {
		w.Bus.Publish(e, payload)
	}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
