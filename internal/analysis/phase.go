package analysis

import (
	"sort"

	"mft-core/internal/observation"
	"mft-core/internal/profile"
)

// Phase labels for the structure analysis.
const (
	PhaseAccumulation = "accumulation"
	PhaseDistribution = "distribution"
	PhaseNeutral      = "neutral"
)

// PhaseResult is the structure/Wyckoff module output.
type PhaseResult struct {
	Result
	Phase            string
	Support          float64
	Resistance       float64
	PositionInRange  float64
	RangeValid       bool
	EffortResult     float64
	PriceMA          float64
	VolumeMA         float64
	RelativeVolume   float64
	AccumulationBars int
	DistributionBars int
	ProjectedTarget  float64
	RiskReward       float64
}

// AnalyzePhase detects accumulation/distribution from price/volume
// divergence and locates the current price inside the recent range.
// Fewer than 5 points invalidates the module; 5..9 points skip only the
// range sub-analysis.
func AnalyzePhase(f *observation.Frame, cfg profile.Analysis) PhaseResult {
	res := PhaseResult{Phase: PhaseNeutral}
	if f.Len() < 5 {
		return res
	}
	res.Valid = true

	// Short moving averages of price and volume; relative volume above 1
	// means the latest bar runs hot against its average.
	period := cfg.VolumeMAPeriod
	if period <= 0 {
		period = 5
	}
	n := f.Len()
	res.PriceMA = movingAverage(f.Last, n-1, period)
	res.VolumeMA = movingAverage(f.Volume, n-1, period)
	if res.VolumeMA > 0 {
		res.RelativeVolume = f.Volume[n-1] / res.VolumeMA
	}

	// Effort vs result: price moving against volume tells who is loading.
	for i := 1; i < f.Len(); i++ {
		priceUp := f.Last[i] > f.Last[i-1]
		priceDown := f.Last[i] < f.Last[i-1]
		volUp := f.Volume[i] > f.Volume[i-1]
		volDown := f.Volume[i] < f.Volume[i-1]
		if priceUp && volDown {
			res.DistributionBars++
		}
		if priceDown && volUp {
			res.AccumulationBars++
		}
	}
	res.EffortResult = float64(res.DistributionBars) / float64(res.AccumulationBars+1)

	if f.Len() >= 10 {
		res.analyzeRange(f, cfg)
	}
	return res
}

func (res *PhaseResult) analyzeRange(f *observation.Frame, cfg profile.Analysis) {
	window := cfg.RangeWindow
	if window <= 0 {
		window = 20
	}
	start := f.Len() - window
	if start < 0 {
		start = 0
	}
	lows := append([]float64(nil), f.Low[start:]...)
	highs := append([]float64(nil), f.High[start:]...)
	sort.Float64s(lows)
	sort.Float64s(highs)

	res.Support = mean(lows[:3])
	res.Resistance = mean(highs[len(highs)-3:])
	width := res.Resistance - res.Support
	if width <= 0 {
		return
	}
	res.RangeValid = true

	last := f.LastPrice()
	res.PositionInRange = (last - res.Support) / width

	switch {
	case res.PositionInRange < 0.3 && res.AccumulationBars > 5:
		res.Phase = PhaseAccumulation
		res.ProjectedTarget = res.Resistance + width
		if risk := last - res.Support; risk > 0 {
			res.RiskReward = (res.ProjectedTarget - last) / risk
		}
		res.emit(Buy, "accumulation near support", 1-res.PositionInRange, 0.7)
	case res.PositionInRange > 0.7 && res.DistributionBars > 5:
		res.Phase = PhaseDistribution
		res.ProjectedTarget = res.Support - width
		if risk := res.Resistance - last; risk > 0 {
			res.RiskReward = (last - res.ProjectedTarget) / risk
		}
		res.emit(Sell, "distribution near resistance", res.PositionInRange, 0.7)
	}
}
