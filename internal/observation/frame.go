package observation

import (
	"sort"
	"time"

	"mft-core/pkg/db"
)

// Field names a column of the observation frame.
type Field string

const (
	FieldLast              Field = "last"
	FieldOpen              Field = "open"
	FieldHigh              Field = "high"
	FieldLow               Field = "low"
	FieldVolume            Field = "volume"
	FieldBuyAggression     Field = "buy_aggression"
	FieldSellAggression    Field = "sell_aggression"
	FieldAggressionBalance Field = "aggression_balance"
)

// Frame is the analysis window: column slices ordered by ascending
// timestamp, newest point last. Columns the source did not fully provide
// are filled from fallbacks and flagged incomplete.
type Frame struct {
	Symbol            string
	Timestamps        []time.Time
	Last              []float64
	Open              []float64
	High              []float64
	Low               []float64
	Volume            []float64
	BuyAggression     []float64
	SellAggression    []float64
	AggressionBalance []float64

	incomplete map[Field]bool
}

// Len returns the number of points in the frame.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Timestamps)
}

// Has reports whether every point carried the field natively.
func (f *Frame) Has(field Field) bool {
	if f == nil {
		return false
	}
	return !f.incomplete[field]
}

// LastPrice returns the newest price in the frame.
func (f *Frame) LastPrice() float64 {
	if f.Len() == 0 {
		return 0
	}
	return f.Last[f.Len()-1]
}

// Build assembles a frame from store rows, substituting the fallback
// value wherever a row is missing an optional column. The second return
// lists fields that needed substitution, sorted for stable reporting.
func Build(symbol string, rows []db.Observation, fallbacks map[Field]float64) (*Frame, []Field) {
	n := len(rows)
	f := &Frame{
		Symbol:            symbol,
		Timestamps:        make([]time.Time, n),
		Last:              make([]float64, n),
		Open:              make([]float64, n),
		High:              make([]float64, n),
		Low:               make([]float64, n),
		Volume:            make([]float64, n),
		BuyAggression:     make([]float64, n),
		SellAggression:    make([]float64, n),
		AggressionBalance: make([]float64, n),
		incomplete:        make(map[Field]bool),
	}

	fill := func(field Field, dst []float64, i int, src *float64) {
		if src != nil {
			dst[i] = *src
			return
		}
		dst[i] = fallbacks[field]
		f.incomplete[field] = true
	}

	for i, r := range rows {
		f.Timestamps[i] = r.Timestamp
		f.Last[i] = r.Last
		fill(FieldOpen, f.Open, i, r.Open)
		fill(FieldHigh, f.High, i, r.High)
		fill(FieldLow, f.Low, i, r.Low)
		fill(FieldVolume, f.Volume, i, r.Volume)
		fill(FieldBuyAggression, f.BuyAggression, i, r.BuyAggression)
		fill(FieldSellAggression, f.SellAggression, i, r.SellAggression)
		fill(FieldAggressionBalance, f.AggressionBalance, i, r.AggressionBalance)
	}

	missing := make([]Field, 0, len(f.incomplete))
	for field := range f.incomplete {
		missing = append(missing, field)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return f, missing
}
