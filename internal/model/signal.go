package model

// Signal is the trade decision derived from the latest bar.
type Signal string

const (
	SignalNone    Signal = "NONE"
	SignalBuyCall Signal = "BUY_CALL"
	SignalBuyPut  Signal = "BUY_PUT"
)

// Side is an order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Side maps a signal to the order side used to act on it.
// ok is false for SignalNone.
func (s Signal) Side() (side Side, ok bool) {
	switch s {
	case SignalBuyCall:
		return SideBuy, true
	case SignalBuyPut:
		return SideSell, true
	default:
		return "", false
	}
}

// Actionable reports whether the signal should produce an order.
func (s Signal) Actionable() bool {
	_, ok := s.Side()
	return ok
}
