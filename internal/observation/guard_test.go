package observation

import (
	"context"
	"testing"
	"time"

	"mft-core/pkg/db"
)

type fakeIssueStore struct {
	count   int
	symbol  string
	kind    string
	missing string
}

func (f *fakeIssueStore) UpsertQualityIssue(ctx context.Context, symbol, analysis, missingFields string, at time.Time) (int, error) {
	f.count++
	f.symbol = symbol
	f.kind = analysis
	f.missing = missingFields
	return f.count, nil
}

func rowsWithVolume(n int) []db.Observation {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	rows := make([]db.Observation, n)
	for i := range rows {
		vol := 100.0
		high := 101.0
		low := 99.0
		rows[i] = db.Observation{
			Symbol:    "WIN$N",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Last:      100,
			High:      &high,
			Low:       &low,
			Volume:    &vol,
		}
	}
	return rows
}

func TestPrepareEmptyFrame(t *testing.T) {
	store := &fakeIssueStore{}
	g := NewGuard(store)

	frame, ok := g.Prepare(context.Background(), "WIN$N", "momentum", nil, nil)
	if ok {
		t.Fatalf("empty frame should not be ok")
	}
	if frame != nil {
		t.Fatalf("expected nil frame")
	}
	if store.count != 1 || store.missing != "empty frame" {
		t.Errorf("empty frame issue not recorded: %+v", store)
	}
}

func TestPrepareSubstitutesMissingFields(t *testing.T) {
	store := &fakeIssueStore{}
	g := NewGuard(store)
	g.Fallbacks[FieldBuyAggression] = 0

	rows := rowsWithVolume(5) // no aggression columns
	frame, ok := g.Prepare(context.Background(), "WIN$N", "order_flow", rows, RequiredFields("order_flow"))
	if !ok {
		t.Fatalf("degraded frame must still be ok")
	}
	if frame.Len() != 5 {
		t.Fatalf("expected 5 points, got %d", frame.Len())
	}
	if frame.Has(FieldBuyAggression) {
		t.Errorf("buy_aggression should be flagged incomplete")
	}
	for _, v := range frame.BuyAggression {
		if v != 0 {
			t.Errorf("expected fallback 0, got %v", v)
		}
	}
	if store.count != 1 {
		t.Errorf("expected one recorded issue, got %d", store.count)
	}
	if store.missing != "buy_aggression,sell_aggression,aggression_balance" {
		t.Errorf("unexpected missing list: %q", store.missing)
	}
}

func TestPrepareCompleteFrameRecordsNothing(t *testing.T) {
	store := &fakeIssueStore{}
	g := NewGuard(store)

	frame, ok := g.Prepare(context.Background(), "WIN$N", "wyckoff", rowsWithVolume(10), RequiredFields("wyckoff"))
	if !ok || frame == nil {
		t.Fatalf("complete frame should be ok")
	}
	if !frame.Has(FieldVolume) {
		t.Errorf("volume should be complete")
	}
	if store.count != 0 {
		t.Errorf("no issue expected, got %d", store.count)
	}
}

func TestBuildOrdersAndFills(t *testing.T) {
	rows := rowsWithVolume(3)
	rows[1].Volume = nil // one hole in the column

	frame, missing := Build("WIN$N", rows, map[Field]float64{FieldVolume: 42})
	if frame.Volume[1] != 42 {
		t.Errorf("hole should take fallback, got %v", frame.Volume[1])
	}
	if frame.Volume[0] != 100 {
		t.Errorf("provided values must be kept, got %v", frame.Volume[0])
	}
	found := false
	for _, m := range missing {
		if m == FieldVolume {
			found = true
		}
	}
	if !found {
		t.Errorf("volume should be reported substituted: %v", missing)
	}
}
