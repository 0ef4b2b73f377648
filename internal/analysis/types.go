package analysis

// Direction of a microsignal or decision.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Opposite flips a direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Microsignal is a single module's directional suggestion, prior to
// aggregation.
type Microsignal struct {
	Direction  Direction
	Reason     string
	Strength   float64
	Confidence float64
}

// Result is the part every analysis module produces. Confidence is the
// max across the module's sub-analyses that fired.
type Result struct {
	Valid        bool
	Confidence   float64
	Microsignals []Microsignal
}

func (r *Result) emit(dir Direction, reason string, strength, confidence float64) {
	r.Microsignals = append(r.Microsignals, Microsignal{
		Direction:  dir,
		Reason:     reason,
		Strength:   strength,
		Confidence: confidence,
	})
	if confidence > r.Confidence {
		r.Confidence = confidence
	}
}

// movingAverage computes the simple MA of the last period values ending
// at index end (inclusive).
func movingAverage(values []float64, end, period int) float64 {
	if period <= 0 || end+1 < period {
		return 0
	}
	sum := 0.0
	for i := end + 1 - period; i <= end; i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
