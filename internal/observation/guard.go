package observation

import (
	"context"
	"log"
	"strings"
	"time"

	"mft-core/pkg/db"
)

// IssueStore persists occurrence-counted quality issues.
type IssueStore interface {
	UpsertQualityIssue(ctx context.Context, symbol, analysis, missingFields string, at time.Time) (int, error)
}

// Guard validates that a frame carries the columns an analysis kind
// needs. Missing columns never abort the evaluation: the frame is built
// with fallback values and the issue is counted, logged on the first
// occurrence and every 10th after that to bound log volume.
type Guard struct {
	Store     IssueStore
	Fallbacks map[Field]float64
	Now       func() time.Time
}

// NewGuard builds a guard with zero-value fallbacks.
func NewGuard(store IssueStore) *Guard {
	return &Guard{Store: store, Fallbacks: map[Field]float64{}, Now: time.Now}
}

// Prepare turns store rows into an analysis-ready frame. ok is false only
// for an empty frame; degraded frames still return ok=true so analysis
// proceeds with reduced confidence rather than halting the tick.
func (g *Guard) Prepare(ctx context.Context, symbol, kind string, rows []db.Observation, required []Field) (*Frame, bool) {
	if len(rows) == 0 {
		g.record(ctx, symbol, kind, "empty frame")
		return nil, false
	}

	frame, substituted := Build(symbol, rows, g.Fallbacks)

	var missing []string
	for _, req := range required {
		for _, sub := range substituted {
			if req == sub {
				missing = append(missing, string(req))
			}
		}
	}
	if len(missing) > 0 {
		g.record(ctx, symbol, kind, strings.Join(missing, ","))
	}
	return frame, true
}

func (g *Guard) record(ctx context.Context, symbol, kind, missing string) {
	if g.Store == nil {
		return
	}
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	count, err := g.Store.UpsertQualityIssue(ctx, symbol, kind, missing, now)
	if err != nil {
		log.Printf("⚠️ quality issue not persisted for %s/%s: %v", symbol, kind, err)
		return
	}
	if count == 1 || count%10 == 0 {
		log.Printf("⚠️ data quality: %s/%s missing [%s] (occurrence %d)", symbol, kind, missing, count)
	}
}

// RequiredFields returns the columns each analysis kind depends on
// beyond the always-present basics (timestamp, last, high, low).
func RequiredFields(kind string) []Field {
	switch kind {
	case "wyckoff":
		return []Field{FieldVolume}
	case "order_flow":
		return []Field{FieldBuyAggression, FieldSellAggression, FieldAggressionBalance}
	case "momentum":
		return nil
	default:
		return nil
	}
}
