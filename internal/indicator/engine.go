package indicator

import (
	"errors"
	"fmt"

	"pullback-engine/internal/model"
)

var (
	// ErrInvalidPeriod is returned for an EMA period below 1.
	ErrInvalidPeriod = errors.New("indicator: period must be >= 1")

	// ErrHistoryGap is returned when bars that were never folded have
	// already been evicted from a bounded history.
	ErrHistoryGap = errors.New("indicator: unfolded bars evicted from history")
)

// Engine keeps the accumulator for one history and folds new bars into it.
// Designed for single-goroutine usage, no locks needed.
type Engine struct {
	period int
	acc    Accumulator
}

// NewEngine creates an engine for the given EMA period.
func NewEngine(period int) (*Engine, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPeriod, period)
	}
	return &Engine{period: period}, nil
}

// Period returns the EMA period.
func (e *Engine) Period() int { return e.period }

// State returns a copy of the accumulator.
func (e *Engine) State() Accumulator { return e.acc }

// Reset clears the accumulator. The next Update folds from the first bar.
func (e *Engine) Reset() { e.acc = Accumulator{} }

// Update folds every bar of h not yet folded and writes the derived fields
// back into h. Returns the number of bars folded; a second call with no new
// bars folds nothing.
func (e *Engine) Update(h *model.History) (int, error) {
	total := h.Total()
	if e.acc.Count >= total {
		return 0, nil
	}
	if e.acc.Count < h.Base() {
		return 0, fmt.Errorf("%w: folded=%d oldest retained=%d", ErrHistoryGap, e.acc.Count, h.Base())
	}

	n := 0
	for i := e.acc.Count; i < total; i++ {
		e.acc = step(e.acc, e.period, h.At(i))
		n++
	}
	return n, nil
}

// Recompute folds bars from an empty accumulator.
func Recompute(period int, bars []model.Bar) ([]model.Bar, Accumulator) {
	return Fold(Accumulator{}, period, bars)
}
