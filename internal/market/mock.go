package market

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"mft-core/internal/events"
	"mft-core/pkg/db"
)

// MockFeed generates synthetic ticks for local development. Every tick
// is appended to the store like a real feed message would be, and a
// small fraction of ticks drop optional fields so the quality guard has
// something to report.
type MockFeed struct {
	DB         *db.Database
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
	DropRate   float64 // chance a tick omits volume/aggression fields

	prices map[string]float64
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.DB == nil {
		log.Println("mock feed: store not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"WIN$N"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 130000
	}
	if m.Step == 0 {
		m.Step = 25
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	if m.DropRate == 0 {
		m.DropRate = 0.05
	}
	m.prices = make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		m.prices[sym] = m.StartPrice
	}

	go func() {
		log.Printf("🔄 mock feed started for %d symbols", len(m.Symbols))
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				now := time.Now().UTC()
				for _, sym := range m.Symbols {
					m.emit(ctx, sym, now)
				}
			}
		}
	}()
}

// emit advances the random walk for one symbol and stores the tick.
func (m *MockFeed) emit(ctx context.Context, symbol string, now time.Time) {
	prev := m.prices[symbol]
	last := prev + (rand.Float64()*2-1)*m.Step
	m.prices[symbol] = last

	tick := Tick{
		Symbol:    symbol,
		Timestamp: now.UnixMilli(),
		Last:      last,
	}

	if rand.Float64() >= m.DropRate {
		high := math.Max(prev, last) + rand.Float64()*m.Step
		low := math.Min(prev, last) - rand.Float64()*m.Step
		volume := 50 + rand.Float64()*200
		buy := volume * (0.3 + rand.Float64()*0.4)
		sell := volume - buy
		balance := buy - sell

		tick.Open = ptr(prev)
		tick.High = ptr(high)
		tick.Low = ptr(low)
		tick.Volume = ptr(volume)
		tick.BuyAggression = ptr(buy)
		tick.SellAggression = ptr(sell)
		tick.AggressionBalance = ptr(balance)
	}

	if err := m.DB.AppendObservation(ctx, tick.Observation()); err != nil {
		log.Printf("⚠️ mock feed: observation not stored: %v", err)
		return
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventObservation, tick)
	}
}

func ptr(v float64) *float64 { return &v }
