package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reading is a derived indicator value that may not be computable yet.
// Ready is false until enough history has been folded in.
type Reading struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// ReadingOf returns a ready Reading holding v.
func ReadingOf(v float64) Reading {
	return Reading{Value: v, Ready: true}
}

func (r Reading) String() string {
	if !r.Ready {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", r.Value)
}

// Bar is one OHLCV observation plus the indicator fields derived from it.
// The indicator engine writes only EMA, VWAP and Slope; OHLCV is fixed at
// creation.
type Bar struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	EMA   Reading `json:"ema"`
	VWAP  Reading `json:"vwap"`
	Slope Reading `json:"slope"`
}

// TypicalPrice returns (high + low + close) / 3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// ClearDerived unsets the indicator fields.
func (b *Bar) ClearDerived() {
	b.EMA = Reading{}
	b.VWAP = Reading{}
	b.Slope = Reading{}
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

func (b Bar) String() string {
	return fmt.Sprintf("Time: %s | Close: %.2f | EMA: %s | VWAP: %s | Slope: %s",
		b.TS.Format(time.DateTime), b.Close, b.EMA, b.VWAP, b.Slope)
}
