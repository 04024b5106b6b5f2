package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pullback-engine/internal/model"
	"pullback-engine/internal/portfolio"
)

// PaperGateway simulates order execution without a real venue.
// Useful for paper trading and backtesting.
type PaperGateway struct {
	mu       sync.RWMutex
	orders   []model.Order
	orderSeq int64
	book     *portfolio.Book
	now      func() time.Time

	// Simulation parameters
	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
}

// NewPaperGateway creates a paper gateway booking fills into book.
// slippageBps controls simulated slippage in basis points.
func NewPaperGateway(book *portfolio.Book, slippageBps int64) *PaperGateway {
	return &PaperGateway{
		orders:      make([]model.Order, 0, 256),
		book:        book,
		now:         time.Now,
		slippageBps: slippageBps,
	}
}

// PlaceOrder fills req at its reference price adjusted for slippage.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req OrderRequest) (model.Order, error) {
	if err := ctx.Err(); err != nil {
		return model.Order{}, err
	}
	if req.Symbol == "" {
		return model.Order{}, fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if req.Qty <= 0 {
		return model.Order{}, fmt.Errorf("%w: qty %d", ErrInvalidOrder, req.Qty)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return model.Order{}, fmt.Errorf("%w: side %q", ErrInvalidOrder, req.Side)
	}
	kind := req.Kind
	if kind == "" {
		kind = model.OrderMarket
	}

	fillPrice, slippage := p.fillPrice(req.RefPrice, req.Side)

	p.mu.Lock()
	p.orderSeq++
	order := model.Order{
		ID:        fmt.Sprintf("PAPER-%d", p.orderSeq),
		Symbol:    req.Symbol,
		Kind:      kind,
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     fillPrice,
		Slippage:  slippage,
		Status:    model.StatusFilled,
		Signal:    req.Signal,
		CreatedAt: p.now(),
	}
	fill := p.book.Apply(portfolio.Trade{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Qty:       order.Qty,
		Price:     order.Price,
		Timestamp: order.CreatedAt,
	})
	order.Realized = fill.Realized.InexactFloat64()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	if fill.Closed() {
		log.Printf("[paper] %s %s qty=%d price=%.2f (slip=%.2f) order=%s signal=%s realized=%s",
			order.Side, order.Symbol, order.Qty, order.Price, order.Slippage, order.ID, order.Signal, fill.Realized.StringFixed(2))
	} else {
		log.Printf("[paper] %s %s qty=%d price=%.2f (slip=%.2f) order=%s signal=%s",
			order.Side, order.Symbol, order.Qty, order.Price, order.Slippage, order.ID, order.Signal)
	}
	return order, nil
}

// fillPrice applies slippage: buys fill higher, sells lower.
func (p *PaperGateway) fillPrice(ref float64, side model.Side) (price, slippage float64) {
	if ref <= 0 || p.slippageBps <= 0 {
		return ref, 0
	}
	r := decimal.NewFromFloat(ref)
	slip := r.Mul(decimal.NewFromInt(p.slippageBps)).Div(decimal.NewFromInt(10000))
	if side == model.SideBuy {
		r = r.Add(slip)
	} else {
		r = r.Sub(slip)
	}
	return r.InexactFloat64(), slip.InexactFloat64()
}

// Positions returns the open positions from the book.
func (p *PaperGateway) Positions() []model.Position {
	return p.book.Positions()
}

// Orders returns a snapshot of all placed orders.
func (p *PaperGateway) Orders() []model.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Order, len(p.orders))
	copy(cp, p.orders)
	return cp
}

// Book returns the underlying position book.
func (p *PaperGateway) Book() *portfolio.Book { return p.book }
