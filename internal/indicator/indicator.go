// Package indicator computes EMA, cumulative VWAP and EMA slope over a bar
// history.
//
// All state lives in an explicit Accumulator. Folding bars into it is a pure
// step, so incremental updates and a full recomputation produce bit-identical
// values.
package indicator

import "pullback-engine/internal/model"

// Accumulator is the running state of the fold.
type Accumulator struct {
	// Count is the number of bars already folded in.
	Count int `json:"count"`

	// SeedSum accumulates closes until the EMA seed is taken.
	SeedSum float64 `json:"seed_sum"`

	// LastEMA is the EMA of the most recently folded bar.
	LastEMA model.Reading `json:"last_ema"`

	CumTPV float64 `json:"cum_tpv"`
	CumVol float64 `json:"cum_vol"`
}

// VWAP returns the cumulative volume-weighted average price, unset while no
// volume has been seen.
func (a Accumulator) VWAP() model.Reading {
	if a.CumVol <= 0 {
		return model.Reading{}
	}
	return model.ReadingOf(a.CumTPV / a.CumVol)
}

// Fold folds bars into acc and returns copies of the bars with EMA, VWAP
// and Slope set, plus the advanced accumulator. bars must be the next
// len(bars) bars after acc.Count. OHLCV fields are never modified.
func Fold(acc Accumulator, period int, bars []model.Bar) ([]model.Bar, Accumulator) {
	out := make([]model.Bar, len(bars))
	for i := range bars {
		out[i] = bars[i]
		acc = step(acc, period, &out[i])
	}
	return out, acc
}

// step folds a single bar in place.
func step(acc Accumulator, period int, b *model.Bar) Accumulator {
	b.ClearDerived()

	acc.CumTPV += b.TypicalPrice() * b.Volume
	acc.CumVol += b.Volume
	b.VWAP = acc.VWAP()

	idx := acc.Count
	switch {
	case idx < period-1:
		acc.SeedSum += b.Close
	case idx == period-1:
		acc.SeedSum += b.Close
		acc.LastEMA = model.ReadingOf(acc.SeedSum / float64(period))
		b.EMA = acc.LastEMA
	default:
		prev := acc.LastEMA.Value
		cur := nextEMA(prev, b.Close, multiplier(period))
		acc.LastEMA = model.ReadingOf(cur)
		b.EMA = acc.LastEMA
		b.Slope = model.ReadingOf(cur - prev)
	}

	acc.Count++
	return acc
}
