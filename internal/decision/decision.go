package decision

import (
	"fmt"
	"time"

	"mft-core/internal/analysis"
)

// ModuleValidity records which analysis modules produced a usable result
// for the tick that generated a decision.
type ModuleValidity struct {
	Phase     bool `json:"phase"`
	OrderFlow bool `json:"order_flow"`
	Momentum  bool `json:"momentum"`
}

// Decision is the aggregated, rate-limited, risk/reward-validated output
// of the engine. Immutable once emitted; ID is its unique identity across
// the process boundary.
type Decision struct {
	ID          string             `json:"id"`
	Symbol      string             `json:"symbol"`
	Profile     string             `json:"profile"`
	Direction   analysis.Direction `json:"direction"`
	EntryPrice  float64            `json:"entry_price"`
	StopPrice   float64            `json:"stop_price"`
	TargetPrice float64            `json:"target_price"`
	Confidence  float64            `json:"confidence"`
	RiskReward  float64            `json:"risk_reward"`
	GeneratedAt time.Time          `json:"generated_at"`
	Reasons     []string           `json:"reasons"`
	Validity    ModuleValidity     `json:"module_validity"`
}

func (d Decision) String() string {
	return fmt.Sprintf("%s %s %s entry=%.2f stop=%.2f target=%.2f conf=%.2f rr=%.2f",
		d.ID, d.Symbol, d.Direction, d.EntryPrice, d.StopPrice, d.TargetPrice, d.Confidence, d.RiskReward)
}
