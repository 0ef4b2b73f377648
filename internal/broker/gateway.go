// Package broker abstracts the execution venue: symbol metadata, quotes,
// market orders with attached stop/target, and tag-filtered positions.
package broker

import (
	"context"
	"errors"
	"time"

	"mft-core/internal/analysis"
)

// ErrRejected is wrapped by gateways when the venue refused an order.
var ErrRejected = errors.New("order rejected by broker")

// SymbolInfo is the instrument metadata sizing depends on.
type SymbolInfo struct {
	Symbol     string
	TickSize   float64
	TickValue  float64
	VolumeMin  float64
	VolumeMax  float64
	VolumeStep float64
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
	At     time.Time
}

// OrderRequest is a market order with protective levels and a tag that
// identifies this system's positions at the venue.
type OrderRequest struct {
	Symbol    string
	Direction analysis.Direction
	Volume    float64
	Stop      float64
	Target    float64
	Tag       string
}

// OrderResult is the venue's acceptance of an order.
type OrderResult struct {
	Ticket string
	Price  float64
}

// Position is an open (or, from History, closed) position at the venue.
type Position struct {
	Ticket    string
	Symbol    string
	Direction analysis.Direction
	Volume    float64
	OpenPrice float64
	Profit    float64
	Tag       string
	OpenedAt  time.Time
}

// Gateway abstracts the execution venue.
type Gateway interface {
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	AccountBalance(ctx context.Context) (float64, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	OpenPositions(ctx context.Context, tag string) ([]Position, error)
	ClosePosition(ctx context.Context, ticket string) error
	// History returns the final state of a position no longer open;
	// Profit carries the realized result.
	History(ctx context.Context, ticket string) (Position, error)
}
