// Package monitor watches open exposure on its own cadence and flattens
// everything tagged by this system shortly before the session ends.
package monitor

import (
	"context"
	"log"
	"time"

	"mft-core/internal/broker"
	"mft-core/internal/events"
	"mft-core/internal/profile"
)

// Monitor reviews broker state independently of the execution worker.
type Monitor struct {
	Gateway     broker.Gateway
	Bus         *events.Bus
	Alerts      AlertSink
	Tag         string
	SessionEnd  int // minutes past midnight
	CloseBuffer time.Duration
	Now         func() time.Time

	forcedToday string // date the force-close already ran
}

// Run reviews positions on the given cadence until canceled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Review(ctx)
		}
	}
}

// Review logs aggregate exposure and force-closes near session end.
func (m *Monitor) Review(ctx context.Context) {
	positions, err := m.Gateway.OpenPositions(ctx, m.Tag)
	if err != nil {
		log.Printf("⚠️ monitor: positions unavailable: %v", err)
		return
	}

	if len(positions) > 0 {
		var total float64
		for _, p := range positions {
			total += p.Profit
		}
		log.Printf("📊 %d open positions, floating P&L %.2f", len(positions), total)
	}

	if !m.nearSessionEnd() {
		return
	}
	now := m.now()
	if m.forcedToday == now.Format("2006-01-02") {
		return
	}
	m.forcedToday = now.Format("2006-01-02")

	if len(positions) == 0 {
		return
	}
	log.Printf("⚠️ session ending, force-closing %d positions", len(positions))
	for _, p := range positions {
		if err := m.Gateway.ClosePosition(ctx, p.Ticket); err != nil {
			log.Printf("❌ force-close %s failed: %v", p.Ticket, err)
			continue
		}
		log.Printf("✓ force-closed %s (%s x%.0f)", p.Ticket, p.Symbol, p.Volume)
		m.alert("force-closed position " + p.Ticket + " before session end")
	}
}

func (m *Monitor) alert(message string) {
	if m.Bus != nil {
		m.Bus.Publish(events.EventRiskAlert, message)
	}
	if m.Alerts != nil {
		if err := m.Alerts.Send(message); err != nil {
			log.Printf("⚠️ alert not delivered: %v", err)
		}
	}
}

func (m *Monitor) nearSessionEnd() bool {
	if m.SessionEnd <= 0 {
		return false
	}
	buffer := int(m.CloseBuffer.Minutes())
	if buffer <= 0 {
		buffer = 2
	}
	minute := profile.MinuteOfDay(m.now())
	return minute >= m.SessionEnd-buffer && minute < m.SessionEnd+60
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
