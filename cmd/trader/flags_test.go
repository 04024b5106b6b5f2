package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pullback-engine/internal/portfolio"
	"pullback-engine/internal/trader"
)

func TestParseFrom(t *testing.T) {
	got, err := parseFrom("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseFrom("1767225600")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))

	got, err = parseFrom("2026-01-01T05:30:00+05:30")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))

	_, err = parseFrom("yesterday")
	assert.Error(t, err)
}

func TestBacktestMock(t *testing.T) {
	err := app.Run([]string{"trader", "backtest", "--source", "mock", "--bars", "300", "--seed", "7"})
	assert.NoError(t, err)
}

func TestPrintSummary_TradeStatistics(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, trader.Status{
		Strategy: "EMA20_VWAP_Pullback",
		Symbol:   "BANKNIFTY",
		PnL: &portfolio.PnLSummary{
			ClosedTrades: 4, WinningTrades: 3, LosingTrades: 1, WinRate: 75,
			AvgWin: decimal.NewFromInt(120), AvgLoss: decimal.NewFromInt(-40),
		},
	})
	out := buf.String()
	assert.Contains(t, out, "4 (3W / 1L)")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "120.00")
	assert.Contains(t, out, "-40.00")
}
