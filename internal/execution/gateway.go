// Package execution places orders for strategy signals.
//
// The Gateway interface is the boundary to an order venue. PaperGateway is
// the only implementation: it fills every valid order immediately against a
// reference price and books the result in a portfolio.Book.
package execution

import (
	"context"
	"errors"

	"pullback-engine/internal/model"
)

// ErrInvalidOrder is returned for an order request that cannot be placed.
var ErrInvalidOrder = errors.New("execution: invalid order")

// OrderRequest is what the trading loop asks a gateway to execute.
type OrderRequest struct {
	Symbol   string
	Kind     model.OrderKind
	Qty      int64
	Side     model.Side
	RefPrice float64 // reference price for market fills (latest close)
	Signal   model.Signal
}

// Gateway accepts orders and reports the resulting positions.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (model.Order, error)
	Positions() []model.Position
}

// RequestFor builds a market order for sig. BUY_CALL buys, BUY_PUT sells.
// ok is false when sig is not actionable.
func RequestFor(sig model.Signal, symbol string, qty int64, refPrice float64) (OrderRequest, bool) {
	side, ok := sig.Side()
	if !ok {
		return OrderRequest{}, false
	}
	return OrderRequest{
		Symbol:   symbol,
		Kind:     model.OrderMarket,
		Qty:      qty,
		Side:     side,
		RefPrice: refPrice,
		Signal:   sig,
	}, true
}
