package analysis

import (
	"mft-core/internal/observation"
	"mft-core/internal/profile"
)

// OrderFlowResult is the aggression-flow module output.
type OrderFlowResult struct {
	Result
	Strength   float64
	Absorption bool
	Exhaustion bool
}

// AnalyzeOrderFlow reads buy/sell aggression for strength, absorption
// and exhaustion tells. Each sub-analysis gates on its own window length
// so a short frame degrades gracefully. A frame whose aggression columns
// were substituted by the quality guard is reported invalid: zeros carry
// no flow information.
func AnalyzeOrderFlow(f *observation.Frame, cfg profile.Analysis) OrderFlowResult {
	var res OrderFlowResult
	if f.Len() == 0 || !f.Has(observation.FieldAggressionBalance) {
		return res
	}
	res.Valid = true

	res.aggressionStrength(f, cfg)
	res.absorption(f, cfg)
	res.exhaustion(f)
	return res
}

// aggressionStrength compares the latest balance against its 20-period
// moving average.
func (res *OrderFlowResult) aggressionStrength(f *observation.Frame, cfg profile.Analysis) {
	const maPeriod = 20
	n := f.Len()
	if n < maPeriod {
		return
	}
	last := f.AggressionBalance[n-1]
	ma := movingAverage(f.AggressionBalance, n-1, maPeriod)
	denom := abs(ma)
	if denom < 1 {
		denom = 1
	}
	res.Strength = last / denom

	if abs(res.Strength) <= cfg.AggressionThreshold {
		return
	}
	dir := Buy
	if last < 0 {
		dir = Sell
	}
	conf := min(0.9, 0.5+abs(res.Strength)/10)
	res.emit(dir, "aggression above average", abs(res.Strength), conf)
}

// absorption flags heavy aggression that failed to move price; the
// opposite side is taking everything, so the signal points against the
// aggressors.
func (res *OrderFlowResult) absorption(f *observation.Frame, cfg profile.Analysis) {
	const window = 5
	n := f.Len()
	if n < window {
		return
	}
	var volume, balance float64
	for i := n - window; i < n; i++ {
		volume += f.BuyAggression[i] + f.SellAggression[i]
		balance += f.AggressionBalance[i]
	}
	first := f.Last[n-window]
	if first == 0 {
		return
	}
	changePct := (f.LastPrice() - first) / first * 100

	denom := abs(changePct)
	if denom < 0.001 {
		denom = 0.001
	}
	ratio := volume / denom
	if cfg.AbsorptionThreshold <= 0 || ratio <= cfg.AbsorptionThreshold {
		return
	}

	// Price must have failed to follow the aggression for it to count.
	aggressorDir := Buy
	if balance < 0 {
		aggressorDir = Sell
	}
	followed := (aggressorDir == Buy && changePct > 0.05) || (aggressorDir == Sell && changePct < -0.05)
	if followed {
		return
	}

	res.Absorption = true
	conf := min(0.8, 0.4+ratio/20)
	res.emit(aggressorDir.Opposite(), "aggression absorbed", ratio/cfg.AbsorptionThreshold, conf)
}

// exhaustion compares the two most recent 5-point windows; a sign flip
// in mean aggression or mean price change marks the move running out of
// participants.
func (res *OrderFlowResult) exhaustion(f *observation.Frame) {
	n := f.Len()
	if n < 10 {
		return
	}
	prevBal := mean(f.AggressionBalance[n-10 : n-5])
	recentBal := mean(f.AggressionBalance[n-5:])

	prevPrice := priceChanges(f.Last[n-10 : n-5])
	recentPrice := priceChanges(f.Last[n-5:])

	balFlip := prevBal*recentBal < 0
	priceFlip := prevPrice*recentPrice < 0
	if !balFlip && !priceFlip {
		return
	}
	res.Exhaustion = true

	// Only an aggression flip is directional; a price-only flip sets the
	// flag without a signal.
	if !balFlip {
		return
	}
	strength := 1.0
	if abs(prevBal) > 0 {
		strength = abs(recentBal / prevBal)
	}
	if prevBal > 0 {
		res.emit(Sell, "buying exhaustion", strength, 0.75)
	} else {
		res.emit(Buy, "selling exhaustion", strength, 0.75)
	}
}

// priceChanges returns the mean bar-to-bar change inside a window.
func priceChanges(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(prices); i++ {
		sum += prices[i] - prices[i-1]
	}
	return sum / float64(len(prices)-1)
}
