package monitor

import (
	"context"
	"testing"
	"time"

	"mft-core/internal/analysis"
	"mft-core/internal/broker"
)

func openPosition(t *testing.T, sim *broker.Sim) string {
	t.Helper()
	res, err := sim.SubmitMarketOrder(context.Background(), broker.OrderRequest{
		Symbol:    "WIN$N",
		Direction: analysis.Buy,
		Volume:    2,
		Tag:       "mft-core",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res.Ticket
}

func TestReviewLeavesPositionsMidSession(t *testing.T) {
	sim := broker.NewSim(100000)
	openPosition(t, sim)

	m := &Monitor{
		Gateway:     sim,
		Tag:         "mft-core",
		SessionEnd:  1050, // 17:30
		CloseBuffer: 2 * time.Minute,
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
		},
	}
	m.Review(context.Background())

	open, _ := sim.OpenPositions(context.Background(), "mft-core")
	if len(open) != 1 {
		t.Fatalf("mid-session review must not close positions, got %d open", len(open))
	}
}

func TestReviewForceClosesNearSessionEnd(t *testing.T) {
	sim := broker.NewSim(100000)
	openPosition(t, sim)
	openPosition(t, sim)

	m := &Monitor{
		Gateway:     sim,
		Tag:         "mft-core",
		SessionEnd:  1050,
		CloseBuffer: 2 * time.Minute,
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 17, 29, 0, 0, time.UTC) // inside the buffer
		},
	}
	m.Review(context.Background())

	open, _ := sim.OpenPositions(context.Background(), "mft-core")
	if len(open) != 0 {
		t.Fatalf("expected all positions force-closed, got %d open", len(open))
	}
}

func TestReviewForceClosesOnlyOwnTag(t *testing.T) {
	sim := broker.NewSim(100000)
	openPosition(t, sim)
	if _, err := sim.SubmitMarketOrder(context.Background(), broker.OrderRequest{
		Symbol: "WIN$N", Direction: analysis.Sell, Volume: 1, Tag: "manual",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	m := &Monitor{
		Gateway:     sim,
		Tag:         "mft-core",
		SessionEnd:  1050,
		CloseBuffer: 2 * time.Minute,
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 17, 29, 0, 0, time.UTC)
		},
	}
	m.Review(context.Background())

	foreign, _ := sim.OpenPositions(context.Background(), "manual")
	if len(foreign) != 1 {
		t.Fatalf("foreign positions must be untouched, got %d", len(foreign))
	}
	mine, _ := sim.OpenPositions(context.Background(), "mft-core")
	if len(mine) != 0 {
		t.Fatalf("own positions must be closed, got %d", len(mine))
	}
}

type captureSink struct {
	messages []string
}

func (c *captureSink) Send(message string) error {
	c.messages = append(c.messages, message)
	return nil
}

func TestForceCloseNotifiesSink(t *testing.T) {
	sim := broker.NewSim(100000)
	openPosition(t, sim)

	sink := &captureSink{}
	m := &Monitor{
		Gateway:     sim,
		Alerts:      sink,
		Tag:         "mft-core",
		SessionEnd:  1050,
		CloseBuffer: 2 * time.Minute,
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 17, 29, 0, 0, time.UTC)
		},
	}
	m.Review(context.Background())

	if len(sink.messages) != 1 {
		t.Fatalf("expected one alert, got %d", len(sink.messages))
	}
}

func TestForceCloseRunsOncePerDay(t *testing.T) {
	sim := broker.NewSim(100000)
	openPosition(t, sim)

	m := &Monitor{
		Gateway:     sim,
		Tag:         "mft-core",
		SessionEnd:  1050,
		CloseBuffer: 2 * time.Minute,
		Now: func() time.Time {
			return time.Date(2025, 3, 10, 17, 29, 0, 0, time.UTC)
		},
	}
	m.Review(context.Background())

	// A position opened after the sweep (e.g. manual restart) is not
	// hammered again the same day.
	openPosition(t, sim)
	m.Review(context.Background())

	open, _ := sim.OpenPositions(context.Background(), "mft-core")
	if len(open) != 1 {
		t.Fatalf("second sweep should not run the same day, got %d open", len(open))
	}
}
