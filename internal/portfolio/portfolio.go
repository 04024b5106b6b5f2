// Package portfolio tracks net positions, cash and realized P&L for the
// paper gateway.
//
// Money is kept in shopspring/decimal so the cash ledger does not drift
// across thousands of fills; prices enter and leave as float64.
package portfolio

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"pullback-engine/internal/model"
)

// lot is the open quantity and cost basis for one symbol.
type lot struct {
	qty      int64
	avgPrice decimal.Decimal
	last     decimal.Decimal
}

// Book tracks all open positions and the cash balance. Safe for concurrent use.
type Book struct {
	mu        sync.RWMutex
	capital   decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*lot
	trades    []Trade
	stats     tradeStats
}

// New creates an empty Book funded with capital.
func New(capital float64) *Book {
	c := decimal.NewFromFloat(capital)
	return &Book{
		capital:   c,
		cash:      c,
		positions: make(map[string]*lot),
		trades:    make([]Trade, 0, 256),
	}
}

// Apply books a fill and returns its effect.
//
// BUY adds to the symbol's net position at a weighted average price. SELL
// reduces it, realizing P&L against the average price, and removes the
// position at zero. Quantity sold beyond the open position is ignored, so a
// SELL never opens a short. Cash moves by the notional of the matched
// quantity.
func (b *Book) Apply(t Trade) Fill {
	b.mu.Lock()
	defer b.mu.Unlock()

	price := decimal.NewFromFloat(t.Price)
	pos := b.positions[t.Symbol]
	f := Fill{Trade: t, Realized: decimal.Zero}

	switch t.Side {
	case model.SideBuy:
		qty := decimal.NewFromInt(t.Qty)
		if pos == nil {
			pos = &lot{avgPrice: price}
			b.positions[t.Symbol] = pos
		} else {
			cost := pos.avgPrice.Mul(decimal.NewFromInt(pos.qty)).Add(price.Mul(qty))
			pos.avgPrice = cost.Div(decimal.NewFromInt(pos.qty + t.Qty))
		}
		pos.qty += t.Qty
		pos.last = price
		b.cash = b.cash.Sub(price.Mul(qty))
		f.MatchedQty = t.Qty

	case model.SideSell:
		if pos == nil {
			break
		}
		matched := t.Qty
		if matched > pos.qty {
			matched = pos.qty
		}
		qty := decimal.NewFromInt(matched)
		f.Realized = price.Sub(pos.avgPrice).Mul(qty)
		f.MatchedQty = matched
		b.realized = b.realized.Add(f.Realized)
		b.cash = b.cash.Add(price.Mul(qty))
		pos.qty -= matched
		pos.last = price
		b.stats.record(f.Realized)
		if pos.qty <= 0 {
			delete(b.positions, t.Symbol)
		}
	}

	b.trades = append(b.trades, t)
	return f
}

// UpdatePrice marks an open position to price.
func (b *Book) UpdatePrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[symbol]; ok {
		pos.last = decimal.NewFromFloat(price)
	}
}

// Positions returns a snapshot of all open positions ordered by symbol.
func (b *Book) Positions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Position, 0, len(b.positions))
	for sym, pos := range b.positions {
		out = append(out, model.Position{
			Symbol:    sym,
			Qty:       pos.qty,
			AvgPrice:  pos.avgPrice.InexactFloat64(),
			LastPrice: pos.last.InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Cash returns the current cash balance.
func (b *Book) Cash() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash
}
