package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"mft-core/internal/analysis"
)

// ErrPositionNotFound is returned by History for unknown tickets.
var ErrPositionNotFound = fmt.Errorf("position not found")

// Sim is an in-process venue for development and tests: random-walk
// quotes, deterministic tickets, optional failure injection. Safe for
// concurrent use by the execution worker and the position monitor.
type Sim struct {
	mu          sync.Mutex
	balance     float64
	prices      map[string]float64
	open        map[string]Position
	closed      map[string]Position
	nextTicket  int
	FailureRate float64 // probability a submit is rejected
	failNext    bool
	Step        float64
	rng         *rand.Rand
	now         func() time.Time
}

// NewSim builds a simulated gateway with a starting balance.
func NewSim(balance float64) *Sim {
	return &Sim{
		balance:    balance,
		prices:     make(map[string]float64),
		open:       make(map[string]Position),
		closed:     make(map[string]Position),
		nextTicket: 80000,
		Step:       5,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// SetPrice pins the reference price for a symbol; tests use this instead
// of the random walk.
func (s *Sim) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// FailNextSubmit forces the next submission to be rejected.
func (s *Sim) FailNextSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// SetClock injects a deterministic clock for tests.
func (s *Sim) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Sim) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	return SymbolInfo{
		Symbol:     symbol,
		TickSize:   5,
		TickValue:  1,
		VolumeMin:  1,
		VolumeMax:  100,
		VolumeStep: 1,
	}, nil
}

func (s *Sim) Quote(ctx context.Context, symbol string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		price = 130000
	}
	// Drift the walk on every read so idle symbols still move.
	price += (s.rng.Float64()*2 - 1) * s.Step
	s.prices[symbol] = price

	half := s.Step / 2
	return Quote{Symbol: symbol, Bid: price - half, Ask: price + half, Last: price, At: s.now()}, nil
}

func (s *Sim) AccountBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *Sim) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext || (s.FailureRate > 0 && s.rng.Float64() < s.FailureRate) {
		s.failNext = false
		return OrderResult{}, fmt.Errorf("%w: simulated venue failure", ErrRejected)
	}
	if req.Volume <= 0 {
		return OrderResult{}, fmt.Errorf("%w: volume %v", ErrRejected, req.Volume)
	}

	price, ok := s.prices[req.Symbol]
	if !ok {
		price = 130000
		s.prices[req.Symbol] = price
	}

	s.nextTicket++
	ticket := fmt.Sprintf("%d", s.nextTicket)
	s.open[ticket] = Position{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Volume:    req.Volume,
		OpenPrice: price,
		Tag:       req.Tag,
		OpenedAt:  s.now(),
	}
	return OrderResult{Ticket: ticket, Price: price}, nil
}

func (s *Sim) OpenPositions(ctx context.Context, tag string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Position
	for _, p := range s.open {
		if tag != "" && p.Tag != tag {
			continue
		}
		p.Profit = s.markToMarket(p)
		out = append(out, p)
	}
	return out, nil
}

func (s *Sim) ClosePosition(ctx context.Context, ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[ticket]
	if !ok {
		return fmt.Errorf("position %s not open", ticket)
	}
	p.Profit = s.markToMarket(p)
	delete(s.open, ticket)
	s.closed[ticket] = p
	s.balance += p.Profit
	return nil
}

func (s *Sim) History(ctx context.Context, ticket string) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.closed[ticket]; ok {
		return p, nil
	}
	return Position{}, ErrPositionNotFound
}

// ClosePositionAt closes with an explicit exit price; tests use it to
// produce a known profit.
func (s *Sim) ClosePositionAt(ticket string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[ticket]
	if !ok {
		return fmt.Errorf("position %s not open", ticket)
	}
	s.prices[p.Symbol] = price
	p.Profit = s.markToMarket(p)
	delete(s.open, ticket)
	s.closed[ticket] = p
	s.balance += p.Profit
	return nil
}

// markToMarket values a position at the current walk price. Callers hold
// the lock.
func (s *Sim) markToMarket(p Position) float64 {
	price, ok := s.prices[p.Symbol]
	if !ok {
		price = p.OpenPrice
	}
	diff := price - p.OpenPrice
	if p.Direction == analysis.Sell {
		diff = -diff
	}
	// TickValue 1 per TickSize 5 points.
	return diff / 5 * 1 * p.Volume
}
