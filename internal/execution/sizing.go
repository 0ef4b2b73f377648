package execution

import (
	"errors"
	"fmt"
	"math"

	"mft-core/internal/broker"
)

var errBadMetadata = errors.New("instrument metadata unavailable")

// LotSize converts the decision's risk into contracts: the monetary risk
// budget divided by the per-contract risk of the entry-stop distance,
// clamped to the instrument's volume band and rounded down to its step.
func LotSize(balance, riskPct, entry, stop float64, info broker.SymbolInfo) (float64, error) {
	if info.TickSize <= 0 || info.TickValue <= 0 || info.VolumeStep <= 0 {
		return 0, fmt.Errorf("%w: tick_size=%v tick_value=%v volume_step=%v",
			errBadMetadata, info.TickSize, info.TickValue, info.VolumeStep)
	}

	riskPoints := math.Abs(entry - stop)
	if riskPoints <= 0 {
		return 0, fmt.Errorf("entry and stop coincide at %v", entry)
	}
	perContract := riskPoints / info.TickSize * info.TickValue
	if perContract <= 0 {
		return 0, fmt.Errorf("non-positive risk per contract for %s", info.Symbol)
	}

	riskAmount := balance * riskPct / 100
	lot := riskAmount / perContract

	if lot < info.VolumeMin {
		lot = info.VolumeMin
	}
	if info.VolumeMax > 0 && lot > info.VolumeMax {
		lot = info.VolumeMax
	}
	lot = math.Floor(lot/info.VolumeStep) * info.VolumeStep

	if lot <= 0 {
		return 0, fmt.Errorf("computed lot %v is not tradable", lot)
	}
	return lot, nil
}
