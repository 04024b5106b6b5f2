package model

import "pullback-engine/internal/ringbuf"

// History is the append-only, chronologically ordered bar sequence.
//
// With retain == 0 every bar is kept. With retain > 0 only the newest
// retain bars are kept; absolute indices (0 = first bar ever appended) stay
// valid for the retained window. Ordering is trusted, not validated.
type History struct {
	bars []Bar
	ring *ringbuf.Ring[Bar]
}

// NewHistory creates an empty History. retain <= 0 means unbounded.
func NewHistory(retain int) *History {
	if retain > 0 {
		return &History{ring: ringbuf.New[Bar](retain)}
	}
	return &History{bars: make([]Bar, 0, 256)}
}

// Append adds a bar at the end of the history.
func (h *History) Append(b Bar) {
	if h.ring != nil {
		h.ring.Push(b)
		return
	}
	h.bars = append(h.bars, b)
}

// Len returns the number of retained bars.
func (h *History) Len() int {
	if h.ring != nil {
		return h.ring.Len()
	}
	return len(h.bars)
}

// Total returns the number of bars ever appended.
func (h *History) Total() int {
	if h.ring != nil {
		return h.ring.Total()
	}
	return len(h.bars)
}

// Base returns the absolute index of the oldest retained bar.
func (h *History) Base() int {
	if h.ring != nil {
		return h.ring.Base()
	}
	return 0
}

// Retain returns the retention limit, 0 when unbounded.
func (h *History) Retain() int {
	if h.ring != nil {
		return h.ring.Cap()
	}
	return 0
}

// Evicted returns how many bars have been dropped from the window.
func (h *History) Evicted() int {
	if h.ring != nil {
		return h.ring.Evicted()
	}
	return 0
}

// At returns the bar at absolute index i, or nil when it is not retained.
func (h *History) At(i int) *Bar {
	if h.ring != nil {
		return h.ring.At(i)
	}
	if i < 0 || i >= len(h.bars) {
		return nil
	}
	return &h.bars[i]
}

// Last returns the newest bar, or nil when empty.
func (h *History) Last() *Bar {
	return h.At(h.Total() - 1)
}

// Bars returns a copy of the retained bars, oldest first.
func (h *History) Bars() []Bar {
	if h.ring != nil {
		return h.ring.Slice()
	}
	out := make([]Bar, len(h.bars))
	copy(out, h.bars)
	return out
}
