package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"pullback-engine/internal/model"
)

// Trade is one executed order as seen by the book.
type Trade struct {
	OrderID   string     `json:"order_id"`
	Symbol    string     `json:"symbol"`
	Side      model.Side `json:"side"`
	Qty       int64      `json:"qty"`
	Price     float64    `json:"price"`
	Timestamp time.Time  `json:"timestamp"`
}

// Fill is the bookkeeping result of applying a Trade.
type Fill struct {
	Trade      Trade
	MatchedQty int64           // quantity that changed the position
	Realized   decimal.Decimal // P&L realized by this trade
}

// Closed reports whether the fill reduced an open position.
func (f Fill) Closed() bool {
	return f.Trade.Side == model.SideSell && f.MatchedQty > 0
}

// tradeStats counts closing fills by outcome. A fill realizing exactly zero
// is neither a win nor a loss but still counts toward the total.
type tradeStats struct {
	closed    int
	wins      int
	losses    int
	grossWin  decimal.Decimal
	grossLoss decimal.Decimal
}

func (s *tradeStats) record(realized decimal.Decimal) {
	s.closed++
	switch realized.Sign() {
	case 1:
		s.wins++
		s.grossWin = s.grossWin.Add(realized)
	case -1:
		s.losses++
		s.grossLoss = s.grossLoss.Add(realized)
	}
}

func (s tradeStats) winRate() float64 {
	if s.closed == 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(s.wins)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(s.closed)))
	return rate.Round(2).InexactFloat64()
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// PnLSummary is a point-in-time view of the book.
type PnLSummary struct {
	Capital       decimal.Decimal `json:"capital"`
	Cash          decimal.Decimal `json:"cash"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	TotalTrades   int             `json:"total_trades"`
	OpenPositions int             `json:"open_positions"`

	// Closing fills only: SELLs that reduced a position.
	ClosedTrades  int             `json:"closed_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       float64         `json:"win_rate"` // percent of closed trades
	AvgWin        decimal.Decimal `json:"avg_win"`
	AvgLoss       decimal.Decimal `json:"avg_loss"` // negative or zero
}

// Summary returns the current P&L summary using each position's last mark.
func (b *Book) Summary() PnLSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	unrealized := decimal.Zero
	for _, pos := range b.positions {
		unrealized = unrealized.Add(pos.last.Sub(pos.avgPrice).Mul(decimal.NewFromInt(pos.qty)))
	}

	return PnLSummary{
		Capital:       b.capital,
		Cash:          b.cash,
		RealizedPnL:   b.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      b.realized.Add(unrealized),
		TotalTrades:   len(b.trades),
		OpenPositions: len(b.positions),
		ClosedTrades:  b.stats.closed,
		WinningTrades: b.stats.wins,
		LosingTrades:  b.stats.losses,
		WinRate:       b.stats.winRate(),
		AvgWin:        average(b.stats.grossWin, b.stats.wins),
		AvgLoss:       average(b.stats.grossLoss, b.stats.losses),
	}
}

// Trades returns a snapshot of all booked trades.
func (b *Book) Trades() []Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make([]Trade, len(b.trades))
	copy(cp, b.trades)
	return cp
}
