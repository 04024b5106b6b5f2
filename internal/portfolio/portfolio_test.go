package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pullback-engine/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBook_BuyThenSell(t *testing.T) {
	b := New(80000)

	b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideBuy, Qty: 1, Price: 45000})
	b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideBuy, Qty: 1, Price: 45100})

	pos := b.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, int64(2), pos[0].Qty)
	assert.Equal(t, 45050.0, pos[0].AvgPrice)
	assert.True(t, b.Cash().Equal(dec("-10100")), "cash=%s", b.Cash())

	f := b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideSell, Qty: 1, Price: 45150})
	assert.True(t, f.Realized.Equal(dec("100")), "realized=%s", f.Realized)
	assert.Equal(t, int64(1), f.MatchedQty)

	f = b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideSell, Qty: 1, Price: 45000})
	assert.True(t, f.Realized.Equal(dec("-50")))
	assert.Empty(t, b.Positions(), "position removed at zero")

	s := b.Summary()
	assert.True(t, s.RealizedPnL.Equal(dec("50")))
	assert.True(t, s.Cash.Equal(dec("80050")), "cash=%s", s.Cash)
	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 0, s.OpenPositions)
}

func TestBook_SellWithoutPositionOpensNoShort(t *testing.T) {
	b := New(80000)
	f := b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideSell, Qty: 1, Price: 45000})

	assert.Equal(t, int64(0), f.MatchedQty)
	assert.True(t, f.Realized.IsZero())
	assert.Empty(t, b.Positions())
	assert.True(t, b.Cash().Equal(dec("80000")))
	assert.Len(t, b.Trades(), 1)
}

func TestBook_OversizedSellClampsToPosition(t *testing.T) {
	b := New(1000)
	b.Apply(Trade{Symbol: "X", Side: model.SideBuy, Qty: 2, Price: 10})
	f := b.Apply(Trade{Symbol: "X", Side: model.SideSell, Qty: 5, Price: 12})

	assert.Equal(t, int64(2), f.MatchedQty)
	assert.True(t, f.Realized.Equal(dec("4")))
	assert.Empty(t, b.Positions())
	assert.True(t, b.Cash().Equal(dec("1004")))
}

func TestBook_UnrealizedFromMark(t *testing.T) {
	b := New(100000)
	b.Apply(Trade{Symbol: "X", Side: model.SideBuy, Qty: 3, Price: 100})
	b.UpdatePrice("X", 104.5)
	b.UpdatePrice("UNKNOWN", 1)

	s := b.Summary()
	assert.True(t, s.UnrealizedPnL.Equal(dec("13.5")), "unrealized=%s", s.UnrealizedPnL)
	assert.True(t, s.TotalPnL.Equal(dec("13.5")))
	assert.Equal(t, 104.5, b.Positions()[0].LastPrice)
}

func TestBook_TradeStatistics(t *testing.T) {
	b := New(100000)
	buy := func(p float64) { b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideBuy, Qty: 1, Price: p}) }
	sell := func(p float64) Fill {
		return b.Apply(Trade{Symbol: "BANKNIFTY", Side: model.SideSell, Qty: 1, Price: p})
	}

	buy(45000)
	assert.True(t, sell(45100).Closed())
	buy(45000)
	sell(45300)
	buy(45000)
	sell(44950)
	buy(45000)
	sell(45000)
	assert.False(t, sell(45500).Closed(), "sell without a position closes nothing")

	s := b.Summary()
	assert.Equal(t, 4, s.ClosedTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 50.0, s.WinRate)
	assert.True(t, s.AvgWin.Equal(dec("200")), "avg win=%s", s.AvgWin)
	assert.True(t, s.AvgLoss.Equal(dec("-50")), "avg loss=%s", s.AvgLoss)
	assert.True(t, s.RealizedPnL.Equal(dec("350")))
}

func TestBook_TradeStatisticsEmpty(t *testing.T) {
	s := New(1000).Summary()
	assert.Zero(t, s.ClosedTrades)
	assert.Zero(t, s.WinRate)
	assert.True(t, s.AvgWin.IsZero())
	assert.True(t, s.AvgLoss.IsZero())
}
