package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Gateway with a call-rate budget so a tight
// reconcile/monitor loop cannot hammer the venue API.
type Throttled struct {
	Gateway
	limiter *rate.Limiter
}

// Throttle applies a requests-per-second budget with the given burst.
func Throttle(g Gateway, rps float64, burst int) *Throttled {
	return &Throttled{Gateway: g, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return SymbolInfo{}, err
	}
	return t.Gateway.SymbolInfo(ctx, symbol)
}

func (t *Throttled) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}
	return t.Gateway.Quote(ctx, symbol)
}

func (t *Throttled) AccountBalance(ctx context.Context) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return t.Gateway.AccountBalance(ctx)
}

func (t *Throttled) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return OrderResult{}, err
	}
	return t.Gateway.SubmitMarketOrder(ctx, req)
}

func (t *Throttled) OpenPositions(ctx context.Context, tag string) ([]Position, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Gateway.OpenPositions(ctx, tag)
}

func (t *Throttled) ClosePosition(ctx context.Context, ticket string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Gateway.ClosePosition(ctx, ticket)
}

func (t *Throttled) History(ctx context.Context, ticket string) (Position, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Position{}, err
	}
	return t.Gateway.History(ctx, ticket)
}
