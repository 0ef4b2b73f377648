package analysis

import (
	"mft-core/internal/observation"
	"mft-core/internal/profile"
)

// Cross labels for the momentum module.
const (
	CrossGolden = "golden"
	CrossDeath  = "death"
)

// MomentumResult is the MA-cross / rate-of-change module output.
type MomentumResult struct {
	Result
	Trend   string // "up" or "down"
	FastMA  float64
	SlowMA  float64
	Diff    float64
	DiffPct float64
	Cross   string
	ROC5    float64
	ROC10   float64
}

// AnalyzeMomentum computes fast/slow MAs, detects crosses against the
// previous tick, and confirms trends through rate of change. Needs at
// least slow_period points, otherwise invalid.
func AnalyzeMomentum(f *observation.Frame, cfg profile.Analysis) MomentumResult {
	var res MomentumResult
	fast, slow := cfg.FastPeriod, cfg.SlowPeriod
	if fast <= 0 {
		fast = 5
	}
	if slow <= 0 {
		slow = 20
	}

	n := f.Len()
	if n < slow {
		return res
	}
	res.Valid = true

	res.FastMA = movingAverage(f.Last, n-1, fast)
	res.SlowMA = movingAverage(f.Last, n-1, slow)
	res.Diff = res.FastMA - res.SlowMA
	if res.SlowMA != 0 {
		res.DiffPct = res.Diff / res.SlowMA * 100
	}
	if res.Diff > 0 {
		res.Trend = "up"
	} else {
		res.Trend = "down"
	}

	// Cross detection compares against the MAs one tick earlier.
	if n > slow {
		prevDiff := movingAverage(f.Last, n-2, fast) - movingAverage(f.Last, n-2, slow)
		conf := min(0.85, 0.6+abs(res.DiffPct)*5)
		if prevDiff <= 0 && res.Diff > 0 {
			res.Cross = CrossGolden
			res.emit(Buy, "golden cross", abs(res.DiffPct), conf)
		} else if prevDiff > 0 && res.Diff <= 0 {
			res.Cross = CrossDeath
			res.emit(Sell, "death cross", abs(res.DiffPct), conf)
		}
	}

	res.rateOfChange(f, cfg)
	return res
}

// rateOfChange confirms the prevailing trend when the 5-period ROC is
// strong and agrees with it.
func (res *MomentumResult) rateOfChange(f *observation.Frame, cfg profile.Analysis) {
	n := f.Len()
	if n > 5 && f.Last[n-6] != 0 {
		res.ROC5 = (f.Last[n-1]/f.Last[n-6] - 1) * 100
	}
	if n > 10 && f.Last[n-11] != 0 {
		res.ROC10 = (f.Last[n-1]/f.Last[n-11] - 1) * 100
	}

	if cfg.ROCThreshold <= 0 || abs(res.ROC5) <= cfg.ROCThreshold {
		return
	}
	agrees := (res.ROC5 > 0 && res.Trend == "up") || (res.ROC5 < 0 && res.Trend == "down")
	if !agrees {
		return
	}
	dir := Buy
	if res.ROC5 < 0 {
		dir = Sell
	}
	conf := min(0.8, 0.5+abs(res.ROC5)/10)
	res.emit(dir, "trend confirmed by momentum", abs(res.ROC5), conf)
}
