package decision

import (
	"fmt"
	"log"
	"time"

	"mft-core/internal/analysis"
	"mft-core/internal/profile"
)

// Rejection explains why a tick produced no decision. Most ticks end in
// one of these; they are diagnostics, not errors.
type Rejection string

const (
	RejectNoSignals      Rejection = "no microsignals"
	RejectLowConfidence  Rejection = "confidence below profile minimum"
	RejectNoConfirmation Rejection = "fewer than two modules agree"
	RejectRateLimited    Rejection = "inside signal interval"
	RejectRiskReward     Rejection = "risk/reward below profile minimum"
	RejectNoPrice        Rejection = "no reference price"
)

type pairKey struct {
	symbol  string
	profile string
}

// Engine aggregates module results into trading decisions. It is owned
// by the single analysis tick loop; the rate-limit ledger is therefore
// plain maps without locking.
type Engine struct {
	lastDecision   map[pairKey]time.Time
	lastDiagnostic map[pairKey]time.Time
	seq            uint64
	now            func() time.Time
}

// NewEngine builds an engine. now is injectable for tests; nil means
// wall clock.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		lastDecision:   make(map[pairKey]time.Time),
		lastDiagnostic: make(map[pairKey]time.Time),
		now:            now,
	}
}

// Evaluate runs the aggregation rules for one (symbol, profile) tick.
// A nil decision with a rejection reason is the common case.
func (e *Engine) Evaluate(symbol string, prof profile.Resolved,
	phase analysis.PhaseResult, flow analysis.OrderFlowResult, momentum analysis.MomentumResult,
	lastPrice float64) (*Decision, Rejection) {

	signals := make([]analysis.Microsignal, 0,
		len(phase.Microsignals)+len(flow.Microsignals)+len(momentum.Microsignals))
	signals = append(signals, phase.Microsignals...)
	signals = append(signals, flow.Microsignals...)
	signals = append(signals, momentum.Microsignals...)
	if len(signals) == 0 {
		return nil, RejectNoSignals
	}
	if lastPrice <= 0 {
		return nil, RejectNoPrice
	}

	direction := e.majority(signals, prof.TieBreak)

	confidence := e.confidence(signals, direction, phase, flow, momentum)
	if confidence < prof.MinConfidence {
		return nil, RejectLowConfidence
	}

	if prof.RequireConfirmation {
		agreeing := 0
		for _, ms := range [][]analysis.Microsignal{phase.Microsignals, flow.Microsignals, momentum.Microsignals} {
			for _, s := range ms {
				if s.Direction == direction {
					agreeing++
					break
				}
			}
		}
		if agreeing < 2 {
			return nil, RejectNoConfirmation
		}
	}

	key := pairKey{symbol, prof.Name}
	now := e.now()
	if last, ok := e.lastDecision[key]; ok && now.Sub(last) < prof.SignalInterval {
		return nil, RejectRateLimited
	}

	stop, target := levels(direction, lastPrice, phase)
	risk := abs(lastPrice - stop)
	if risk <= 0 {
		return nil, RejectRiskReward
	}
	rr := abs(target-lastPrice) / risk
	if rr < prof.MinRiskReward {
		return nil, RejectRiskReward
	}

	e.lastDecision[key] = now
	e.seq++

	reasons := make([]string, 0, len(signals))
	for _, s := range signals {
		if s.Direction == direction {
			reasons = append(reasons, s.Reason)
		}
	}

	return &Decision{
		ID:          fmt.Sprintf("%s-%d", now.UTC().Format("20060102T150405.000"), e.seq),
		Symbol:      symbol,
		Profile:     prof.Name,
		Direction:   direction,
		EntryPrice:  lastPrice,
		StopPrice:   stop,
		TargetPrice: target,
		Confidence:  confidence,
		RiskReward:  rr,
		GeneratedAt: now,
		Reasons:     reasons,
		Validity: ModuleValidity{
			Phase:     phase.Valid,
			OrderFlow: flow.Valid,
			Momentum:  momentum.Valid,
		},
	}, ""
}

// ShouldEmitDiagnostic rate-limits diagnostic snapshots per pair on the
// profile's diagnostic interval.
func (e *Engine) ShouldEmitDiagnostic(symbol string, prof profile.Resolved) bool {
	if prof.DiagnosticInterval <= 0 {
		return false
	}
	key := pairKey{symbol, prof.Name}
	now := e.now()
	if last, ok := e.lastDiagnostic[key]; ok && now.Sub(last) < prof.DiagnosticInterval {
		return false
	}
	e.lastDiagnostic[key] = now
	return true
}

func (e *Engine) majority(signals []analysis.Microsignal, tieBreak string) analysis.Direction {
	buys, sells := 0, 0
	for _, s := range signals {
		if s.Direction == analysis.Buy {
			buys++
		} else {
			sells++
		}
	}
	switch {
	case buys > sells:
		return analysis.Buy
	case sells > buys:
		return analysis.Sell
	case tieBreak == "buy":
		return analysis.Buy
	default:
		return analysis.Sell
	}
}

// confidence takes the stronger of: mean confidence of the agreeing
// microsignals, and the best module-level confidence.
func (e *Engine) confidence(signals []analysis.Microsignal, dir analysis.Direction,
	phase analysis.PhaseResult, flow analysis.OrderFlowResult, momentum analysis.MomentumResult) float64 {

	sum, n := 0.0, 0
	for _, s := range signals {
		if s.Direction == dir {
			sum += s.Confidence
			n++
		}
	}
	conf := 0.0
	if n > 0 {
		conf = sum / float64(n)
	}
	for _, c := range []float64{phase.Confidence, flow.Confidence, momentum.Confidence} {
		if c > conf {
			conf = c
		}
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// levels picks stop and target: phase support/resistance when the range
// is usable, otherwise a fallback band around entry.
func levels(dir analysis.Direction, entry float64, phase analysis.PhaseResult) (stop, target float64) {
	useRange := phase.Valid && phase.RangeValid &&
		phase.Support > 0 && phase.Resistance > phase.Support

	if dir == analysis.Buy {
		if useRange && phase.Support < entry {
			stop = phase.Support
		} else {
			stop = entry * 0.99
		}
		if useRange && phase.Resistance > entry {
			target = phase.Resistance
		} else {
			target = entry * 1.02
		}
		return stop, target
	}

	if useRange && phase.Resistance > entry {
		stop = phase.Resistance
	} else {
		stop = entry * 1.01
	}
	if useRange && phase.Support < entry {
		target = phase.Support
	} else {
		target = entry * 0.98
	}
	return stop, target
}

// LogRejection prints rejection diagnostics at a low duty cycle; callers
// decide when a reason is worth surfacing.
func LogRejection(symbol, prof string, r Rejection) {
	if r == RejectNoSignals {
		return
	}
	log.Printf("decision skipped %s/%s: %s", symbol, prof, r)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
