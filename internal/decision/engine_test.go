package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mft-core/internal/analysis"
	"mft-core/internal/profile"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
}

func testProfile() profile.Resolved {
	return profile.Resolved{
		Name:                "moderate",
		MinConfidence:       0.65,
		SignalInterval:      3 * time.Minute,
		MinRiskReward:       1.5,
		RequireConfirmation: true,
		TieBreak:            "sell",
	}
}

func buyResults() (analysis.PhaseResult, analysis.OrderFlowResult, analysis.MomentumResult) {
	phase := analysis.PhaseResult{
		Result: analysis.Result{
			Valid:      true,
			Confidence: 0.7,
			Microsignals: []analysis.Microsignal{
				{Direction: analysis.Buy, Reason: "accumulation near support", Confidence: 0.7},
			},
		},
		Phase:      analysis.PhaseAccumulation,
		Support:    99000,
		Resistance: 101000,
		RangeValid: true,
	}
	flow := analysis.OrderFlowResult{
		Result: analysis.Result{
			Valid:      true,
			Confidence: 0.75,
			Microsignals: []analysis.Microsignal{
				{Direction: analysis.Buy, Reason: "selling exhaustion", Confidence: 0.75},
			},
		},
	}
	momentum := analysis.MomentumResult{Result: analysis.Result{Valid: true}}
	return phase, flow, momentum
}

func TestEvaluateEmitsValidatedDecision(t *testing.T) {
	c := newClock()
	e := NewEngine(c.now)
	phase, flow, momentum := buyResults()

	d, rej := e.Evaluate("WIN$N", testProfile(), phase, flow, momentum, 99400)
	require.Empty(t, rej)
	require.NotNil(t, d)
	require.Equal(t, analysis.Buy, d.Direction)
	require.Equal(t, 99000.0, d.StopPrice, "stop should come from phase support")
	require.Equal(t, 101000.0, d.TargetPrice, "target should come from phase resistance")
	require.InDelta(t, 4.0, d.RiskReward, 1e-9)
	require.GreaterOrEqual(t, d.RiskReward, testProfile().MinRiskReward)
	require.GreaterOrEqual(t, d.Confidence, 0.65)
	require.LessOrEqual(t, d.Confidence, 1.0)
	require.True(t, d.Validity.Phase)
	require.NotEmpty(t, d.ID)
}

func TestEvaluateRateLimitsRepeats(t *testing.T) {
	c := newClock()
	e := NewEngine(c.now)
	prof := testProfile()
	phase, flow, momentum := buyResults()

	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.NotNil(t, d, "first decision should pass (rejection: %s)", rej)

	// Every tick inside the interval is rejected.
	for i := 0; i < 5; i++ {
		c.advance(30 * time.Second)
		d, rej = e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
		require.Nil(t, d)
		require.Equal(t, RejectRateLimited, rej)
	}

	// A different pair is unaffected.
	other := prof
	other.Name = "aggressive"
	d, _ = e.Evaluate("WIN$N", other, phase, flow, momentum, 99400)
	require.NotNil(t, d, "rate limit must be per (symbol, profile)")

	// Past the interval the original pair may emit again, with a new identity.
	c.advance(prof.SignalInterval)
	d2, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.NotNil(t, d2, "rejection: %s", rej)
}

func TestEvaluateUniqueIdentities(t *testing.T) {
	c := newClock()
	e := NewEngine(c.now)
	prof := testProfile()
	prof.SignalInterval = 0
	phase, flow, momentum := buyResults()

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
		require.NotNil(t, d, "rejection: %s", rej)
		require.False(t, seen[d.ID], "identity %s repeated", d.ID)
		seen[d.ID] = true
	}
}

func TestEvaluateRejectsLowConfidence(t *testing.T) {
	e := NewEngine(newClock().now)
	prof := testProfile()
	prof.MinConfidence = 0.9

	phase, flow, momentum := buyResults()
	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.Nil(t, d)
	require.Equal(t, RejectLowConfidence, rej)
}

func TestEvaluateRequiresConfirmation(t *testing.T) {
	e := NewEngine(newClock().now)
	prof := testProfile()

	phase, flow, momentum := buyResults()
	flow.Microsignals = nil // only one module still agrees

	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.Nil(t, d)
	require.Equal(t, RejectNoConfirmation, rej)

	prof.RequireConfirmation = false
	d, rej = e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.NotNil(t, d, "rejection: %s", rej)
}

func TestEvaluateRejectsPoorRiskReward(t *testing.T) {
	e := NewEngine(newClock().now)
	prof := testProfile()
	prof.MinRiskReward = 10

	phase, flow, momentum := buyResults()
	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 99400)
	require.Nil(t, d)
	require.Equal(t, RejectRiskReward, rej)
}

func TestEvaluateFallbackBand(t *testing.T) {
	e := NewEngine(newClock().now)
	prof := testProfile()
	prof.MinRiskReward = 1.0

	phase, flow, momentum := buyResults()
	phase.RangeValid = false // no usable support/resistance

	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 100000)
	require.NotNil(t, d, "rejection: %s", rej)
	require.InDelta(t, 99000, d.StopPrice, 1e-6)
	require.InDelta(t, 102000, d.TargetPrice, 1e-6)
}

func TestEvaluateTieBreakConfigurable(t *testing.T) {
	tie := []analysis.Microsignal{
		{Direction: analysis.Buy, Reason: "golden cross", Confidence: 0.8},
	}
	phase := analysis.PhaseResult{Result: analysis.Result{
		Valid:      true,
		Confidence: 0.8,
		Microsignals: []analysis.Microsignal{
			{Direction: analysis.Sell, Reason: "distribution near resistance", Confidence: 0.8},
		},
	}}
	momentum := analysis.MomentumResult{Result: analysis.Result{Valid: true, Confidence: 0.8, Microsignals: tie}}
	flow := analysis.OrderFlowResult{Result: analysis.Result{Valid: true}}

	prof := testProfile()
	prof.RequireConfirmation = false
	prof.MinRiskReward = 1.0

	e := NewEngine(newClock().now)
	d, rej := e.Evaluate("WIN$N", prof, phase, flow, momentum, 100000)
	require.NotNil(t, d, "rejection: %s", rej)
	require.Equal(t, analysis.Sell, d.Direction, "default tie-break favors sell")

	prof.TieBreak = "buy"
	prof.Name = "moderate-buy"
	d, rej = e.Evaluate("WIN$N", prof, phase, flow, momentum, 100000)
	require.NotNil(t, d, "rejection: %s", rej)
	require.Equal(t, analysis.Buy, d.Direction)
}

func TestEvaluateNoSignals(t *testing.T) {
	e := NewEngine(newClock().now)
	d, rej := e.Evaluate("WIN$N", testProfile(),
		analysis.PhaseResult{}, analysis.OrderFlowResult{}, analysis.MomentumResult{}, 100000)
	require.Nil(t, d)
	require.Equal(t, RejectNoSignals, rej)
}

func TestDiagnosticRateLimit(t *testing.T) {
	c := newClock()
	e := NewEngine(c.now)
	prof := testProfile()
	prof.DiagnosticInterval = 5 * time.Minute

	require.True(t, e.ShouldEmitDiagnostic("WIN$N", prof))
	require.False(t, e.ShouldEmitDiagnostic("WIN$N", prof))
	c.advance(5 * time.Minute)
	require.True(t, e.ShouldEmitDiagnostic("WIN$N", prof))
}
