package strategy

import (
	"fmt"

	"pullback-engine/internal/model"
)

// Evaluate applies the EMA pullback rule to the latest bar.
//
// The bar "touches" the EMA when low <= ema <= high. A touch above VWAP with
// a rising EMA is BUY_CALL; a touch below VWAP with a falling EMA is BUY_PUT.
// Anything else, including insufficient history or any unset indicator, is
// NONE. Comparisons against VWAP and zero slope are strict.
func Evaluate(period, historyLen int, latest model.Bar) model.Signal {
	if historyLen < period {
		return model.SignalNone
	}
	if !latest.EMA.Ready || !latest.VWAP.Ready || !latest.Slope.Ready {
		return model.SignalNone
	}

	ema := latest.EMA.Value
	if latest.Low > ema || ema > latest.High {
		return model.SignalNone
	}

	vwap := latest.VWAP.Value
	slope := latest.Slope.Value
	switch {
	case latest.Close > vwap && slope > 0:
		return model.SignalBuyCall
	case latest.Close < vwap && slope < 0:
		return model.SignalBuyPut
	default:
		return model.SignalNone
	}
}

// Pullback trades EMA touches in the direction of the EMA slope, filtered by
// price position relative to VWAP.
type Pullback struct {
	name   string
	period int
}

// NewPullback creates a pullback strategy for the given EMA period.
func NewPullback(period int) *Pullback {
	return &Pullback{
		name:   fmt.Sprintf("EMA%d_VWAP_Pullback", period),
		period: period,
	}
}

func (p *Pullback) Name() string { return p.name }

// Period returns the EMA period the strategy expects.
func (p *Pullback) Period() int { return p.period }

// OnHistory evaluates the newest bar of h. An empty history yields NONE.
func (p *Pullback) OnHistory(h *model.History) Decision {
	d := Decision{StrategyName: p.name, Signal: model.SignalNone}
	last := h.Last()
	if last == nil {
		d.Reason = "no bars"
		return d
	}

	d.Bar = *last
	d.Symbol = last.Symbol
	d.Price = last.Close
	d.Signal = Evaluate(p.period, h.Total(), *last)
	d.Reason = Reason(d.Signal, *last)
	return d
}

// Reason describes why the bar produced sig.
func Reason(sig model.Signal, b model.Bar) string {
	switch sig {
	case model.SignalBuyCall:
		return fmt.Sprintf("EMA %.2f touched inside [%.2f, %.2f], close %.2f > VWAP %.2f, slope %+.4f",
			b.EMA.Value, b.Low, b.High, b.Close, b.VWAP.Value, b.Slope.Value)
	case model.SignalBuyPut:
		return fmt.Sprintf("EMA %.2f touched inside [%.2f, %.2f], close %.2f < VWAP %.2f, slope %+.4f",
			b.EMA.Value, b.Low, b.High, b.Close, b.VWAP.Value, b.Slope.Value)
	}

	switch {
	case !b.EMA.Ready || !b.VWAP.Ready || !b.Slope.Ready:
		return "warming up"
	case b.Low > b.EMA.Value || b.EMA.Value > b.High:
		return "no EMA touch"
	default:
		return "touch without direction confirmation"
	}
}
