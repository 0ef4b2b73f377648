// Package market ingests observations into the store, either from a
// live websocket feed or from the built-in mock generator.
package market

import (
	"encoding/json"
	"time"

	"mft-core/pkg/db"
)

// Tick is the wire shape of one feed message. Optional fields stay nil
// when the source does not publish them; the quality guard downstream
// decides how to handle the gaps.
type Tick struct {
	Symbol            string   `json:"symbol"`
	Timestamp         int64    `json:"ts"` // unix milliseconds
	Last              float64  `json:"last"`
	Open              *float64 `json:"open,omitempty"`
	High              *float64 `json:"high,omitempty"`
	Low               *float64 `json:"low,omitempty"`
	Volume            *float64 `json:"volume,omitempty"`
	BuyAggression     *float64 `json:"buy_aggression,omitempty"`
	SellAggression    *float64 `json:"sell_aggression,omitempty"`
	AggressionBalance *float64 `json:"aggression_balance,omitempty"`
}

// ParseTick decodes one feed message.
func ParseTick(msg []byte) (Tick, error) {
	var t Tick
	if err := json.Unmarshal(msg, &t); err != nil {
		return Tick{}, err
	}
	return t, nil
}

// Observation converts the tick into a store row.
func (t Tick) Observation() db.Observation {
	return db.Observation{
		Symbol:            t.Symbol,
		Timestamp:         time.UnixMilli(t.Timestamp).UTC(),
		Last:              t.Last,
		Open:              t.Open,
		High:              t.High,
		Low:               t.Low,
		Volume:            t.Volume,
		BuyAggression:     t.BuyAggression,
		SellAggression:    t.SellAggression,
		AggressionBalance: t.AggressionBalance,
	}
}
