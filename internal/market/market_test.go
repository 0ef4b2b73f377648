package market

import (
	"context"
	"testing"
	"time"

	"mft-core/internal/events"
	"mft-core/pkg/db"
)

func TestParseTickOptionalFields(t *testing.T) {
	full := []byte(`{"symbol":"WIN$N","ts":1741600000000,"last":130010,
		"open":130000,"high":130020,"low":129990,"volume":120,
		"buy_aggression":70,"sell_aggression":50,"aggression_balance":20}`)
	tick, err := ParseTick(full)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tick.Symbol != "WIN$N" || tick.Last != 130010 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if tick.Volume == nil || *tick.Volume != 120 {
		t.Fatalf("volume not decoded: %+v", tick.Volume)
	}

	sparse := []byte(`{"symbol":"WIN$N","ts":1741600001000,"last":130015}`)
	tick, err = ParseTick(sparse)
	if err != nil {
		t.Fatalf("parse sparse: %v", err)
	}
	if tick.Volume != nil || tick.AggressionBalance != nil {
		t.Fatal("absent fields must stay nil")
	}

	obs := tick.Observation()
	if obs.Last != 130015 || obs.Volume != nil {
		t.Fatalf("conversion lost the nil: %+v", obs)
	}
	if obs.Timestamp != time.UnixMilli(1741600001000).UTC() {
		t.Fatalf("timestamp: %v", obs.Timestamp)
	}
}

func TestMockFeedStoresAndPublishes(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventObservation, 16)
	defer unsub()

	m := &MockFeed{
		DB:       database,
		Bus:      bus,
		Symbols:  []string{"WIN$N"},
		DropRate: -1, // always emit full ticks
	}
	m.prices = map[string]float64{"WIN$N": 130000}
	m.emit(context.Background(), "WIN$N", time.Now().UTC())

	select {
	case payload := <-ch:
		tick, ok := payload.(Tick)
		if !ok {
			t.Fatalf("unexpected payload type %T", payload)
		}
		if tick.Volume == nil || tick.AggressionBalance == nil {
			t.Fatal("full tick expected")
		}
		if *tick.AggressionBalance != *tick.BuyAggression-*tick.SellAggression {
			t.Fatal("aggression balance must equal buy minus sell")
		}
	case <-time.After(time.Second):
		t.Fatal("no observation published")
	}

	rows, err := database.RecentObservations(context.Background(), "WIN$N", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("observation not stored")
	}
}
