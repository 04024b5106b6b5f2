package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pullback-engine/internal/model"
)

var t0 = time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)

func makeBar(i int, close, volume float64) model.Bar {
	return model.Bar{
		Symbol: "TEST",
		TS:     t0.Add(time.Duration(i) * 5 * time.Minute),
		Open:   close - 1,
		High:   close + 5,
		Low:    close - 5,
		Close:  close,
		Volume: volume,
	}
}

// series returns n bars with a wavy close and varying volume.
func series(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 45000 + 150*math.Sin(float64(i)/4) + float64(i)*3
		bars[i] = makeBar(i, c, 1000+float64(i%7)*37)
	}
	return bars
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func TestNewEngine_InvalidPeriod(t *testing.T) {
	for _, p := range []int{0, -3} {
		_, err := NewEngine(p)
		require.ErrorIs(t, err, ErrInvalidPeriod)
	}
	e, err := NewEngine(20)
	require.NoError(t, err)
	assert.Equal(t, 20, e.Period())
}

func TestEMA_WarmupBoundary_Period20(t *testing.T) {
	bars, _ := Recompute(20, series(25))

	for i := 0; i < 19; i++ {
		assert.Falsef(t, bars[i].EMA.Ready, "bar %d: ema should be unset", i)
		assert.Falsef(t, bars[i].Slope.Ready, "bar %d: slope should be unset", i)
	}

	var sum float64
	for i := 0; i < 20; i++ {
		sum += bars[i].Close
	}
	require.True(t, bars[19].EMA.Ready)
	assert.Equal(t, sum/20, bars[19].EMA.Value)
	assert.False(t, bars[19].Slope.Ready, "slope needs a previous ema")

	require.True(t, bars[20].EMA.Ready)
	require.True(t, bars[20].Slope.Ready)
	mult := 2.0 / 21.0
	want := (bars[20].Close-bars[19].EMA.Value)*mult + bars[19].EMA.Value
	assertClose(t, "ema[20]", bars[20].EMA.Value, want, 1e-12)
	assert.Equal(t, bars[20].EMA.Value-bars[19].EMA.Value, bars[20].Slope.Value)
}

func TestEMA_HandCalculated_Period3(t *testing.T) {
	// closes 10, 11, 12, 13 -> seed (10+11+12)/3 = 11
	// ema[3] = (13-11)*0.5 + 11 = 12, slope = 1
	var bars []model.Bar
	for i, c := range []float64{10, 11, 12, 13} {
		bars = append(bars, makeBar(i, c, 100))
	}
	out, acc := Recompute(3, bars)

	assert.False(t, out[1].EMA.Ready)
	assertClose(t, "seed", out[2].EMA.Value, 11, 1e-12)
	assertClose(t, "ema[3]", out[3].EMA.Value, 12, 1e-12)
	assertClose(t, "slope[3]", out[3].Slope.Value, 1, 1e-12)
	assert.Equal(t, 4, acc.Count)
}

func TestEMA_PeriodOne(t *testing.T) {
	bars := []model.Bar{makeBar(0, 10, 1), makeBar(1, 14, 1)}
	out, _ := Recompute(1, bars)

	assertClose(t, "ema[0]", out[0].EMA.Value, 10, 0)
	assertClose(t, "ema[1]", out[1].EMA.Value, 14, 0)
	assertClose(t, "slope[1]", out[1].Slope.Value, 4, 0)
}

func TestEMA_MatchesTALib(t *testing.T) {
	bars, _ := Recompute(20, series(200))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ref := talib.Ema(closes, 20)

	for i := 19; i < len(bars); i++ {
		assertClose(t, "ema vs talib", bars[i].EMA.Value, ref[i], 1e-9)
	}
}

func TestVWAP_Cumulative(t *testing.T) {
	bars := []model.Bar{
		{High: 12, Low: 6, Close: 9, Volume: 100},  // tp 9
		{High: 15, Low: 9, Close: 12, Volume: 300}, // tp 12
	}
	out, acc := Recompute(20, bars)

	assertClose(t, "vwap[0]", out[0].VWAP.Value, 9, 1e-12)
	assertClose(t, "vwap[1]", out[1].VWAP.Value, (9*100+12*300)/400.0, 1e-12)
	assert.Equal(t, 400.0, acc.CumVol)
}

func TestVWAP_ZeroVolumeUnset(t *testing.T) {
	bars := []model.Bar{makeBar(0, 100, 0), makeBar(1, 101, 0), makeBar(2, 102, 50)}
	out, _ := Recompute(2, bars)

	assert.False(t, out[0].VWAP.Ready)
	assert.False(t, out[1].VWAP.Ready)
	require.True(t, out[2].VWAP.Ready)
	assertClose(t, "vwap[2]", out[2].VWAP.Value, 102, 1e-12)
}

func TestVWAP_PrefixEquality(t *testing.T) {
	all := series(60)
	full, _ := Recompute(20, all)

	for k := 1; k <= len(all); k++ {
		prefix, _ := Recompute(20, all[:k])
		if prefix[k-1].VWAP != full[k-1].VWAP {
			t.Fatalf("bar %d: prefix vwap %v != full vwap %v", k-1, prefix[k-1].VWAP, full[k-1].VWAP)
		}
	}
}

func TestSlope_Sign(t *testing.T) {
	var up, down []model.Bar
	for i := 0; i < 30; i++ {
		up = append(up, makeBar(i, 100+float64(i), 10))
		down = append(down, makeBar(i, 100-float64(i), 10))
	}
	upOut, _ := Recompute(5, up)
	downOut, _ := Recompute(5, down)

	for i := 5; i < 30; i++ {
		assert.Greaterf(t, upOut[i].Slope.Value, 0.0, "rising bar %d", i)
		assert.Lessf(t, downOut[i].Slope.Value, 0.0, "falling bar %d", i)
	}
}

func TestFold_DoesNotMutateInput(t *testing.T) {
	in := series(25)
	orig := make([]model.Bar, len(in))
	copy(orig, in)

	Recompute(20, in)
	assert.Equal(t, orig, in)
}

func TestFold_SplitEqualsWhole(t *testing.T) {
	all := series(80)
	whole, wholeAcc := Recompute(20, all)

	head, acc := Fold(Accumulator{}, 20, all[:33])
	tail, acc := Fold(acc, 20, all[33:])

	assert.Equal(t, wholeAcc, acc)
	assert.Equal(t, whole, append(head, tail...))
}

func TestEngine_UpdateIdempotent(t *testing.T) {
	e, err := NewEngine(20)
	require.NoError(t, err)

	h := model.NewHistory(0)
	for _, b := range series(50) {
		h.Append(b)
	}

	n, err := e.Update(h)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	first := h.Bars()
	accFirst := e.State()

	n, err = e.Update(h)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, first, h.Bars())
	assert.Equal(t, accFirst, e.State())
}

func TestEngine_IncrementalMatchesRecompute(t *testing.T) {
	e, _ := NewEngine(20)
	h := model.NewHistory(0)
	all := series(120)

	for _, b := range all {
		h.Append(b)
		_, err := e.Update(h)
		require.NoError(t, err)
	}

	want, wantAcc := Recompute(20, all)
	assert.Equal(t, want, h.Bars())
	assert.Equal(t, wantAcc, e.State())
}

func TestEngine_BoundedHistoryStaysExact(t *testing.T) {
	e, _ := NewEngine(20)
	h := model.NewHistory(25)
	all := series(300)

	for _, b := range all {
		h.Append(b)
		_, err := e.Update(h)
		require.NoError(t, err)
	}

	want, _ := Recompute(20, all)
	got := h.Bars()
	require.Len(t, got, 25)
	assert.Equal(t, want[len(want)-25:], got)
	assert.Equal(t, 300, e.State().Count)
}

func TestEngine_HistoryGap(t *testing.T) {
	e, _ := NewEngine(3)
	h := model.NewHistory(5)
	for _, b := range series(10) {
		h.Append(b)
	}

	_, err := e.Update(h)
	require.ErrorIs(t, err, ErrHistoryGap)
	assert.Equal(t, 0, e.State().Count)
}

func TestEngine_Reset(t *testing.T) {
	e, _ := NewEngine(20)
	h := model.NewHistory(0)
	for _, b := range series(30) {
		h.Append(b)
	}
	_, err := e.Update(h)
	require.NoError(t, err)

	e.Reset()
	assert.Equal(t, Accumulator{}, e.State())

	n, err := e.Update(h)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}
