package db

import "time"

// Observation is one appended market data row for a symbol. Optional
// columns may be NULL when the ingestion source does not provide them;
// those are nil pointers here and the quality guard decides what to do.
type Observation struct {
	Symbol            string
	Timestamp         time.Time
	Last              float64
	Open              *float64
	High              *float64
	Low               *float64
	Volume            *float64
	BuyAggression     *float64
	SellAggression    *float64
	AggressionBalance *float64
}

// Order lifecycle statuses. FAILED is terminal, never retried.
const (
	OrderPending = "PENDING"
	OrderOpen    = "OPEN"
	OrderClosed  = "CLOSED"
	OrderFailed  = "FAILED"
)

// Order is a persisted order attempt, written for audit whether or not
// the broker accepted it.
type Order struct {
	ID             string
	BrokerTicket   string
	Symbol         string
	Direction      string
	Volume         float64
	RequestedPrice float64
	StopPrice      float64
	TargetPrice    float64
	Status         string
	Profile        string
	DecisionID     string
	OpenedAt       time.Time
	ClosedAt       time.Time
	CloseReason    string
	RealizedProfit float64
	CreatedAt      time.Time
}

// DailyStats aggregates the day's closed trades, keyed by date (YYYY-MM-DD).
type DailyStats struct {
	Date   string
	Trades int
	PnL    float64
	Wins   int
	Losses int
}

// QualityIssue counts occurrences of missing analysis inputs per
// (symbol, analysis kind). Diagnostic only, never blocks processing.
type QualityIssue struct {
	Symbol        string
	Analysis      string
	MissingFields string
	FirstDetected time.Time
	Occurrences   int
}
