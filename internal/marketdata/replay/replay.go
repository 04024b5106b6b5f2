// Package replay provides a market data source that plays archived bars
// back from SQLite for backtesting.
package replay

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"pullback-engine/internal/marketdata"
	"pullback-engine/internal/model"
	sqlitestore "pullback-engine/internal/store/sqlite"
)

// Source replays a fixed slice of bars, optionally pacing them by their
// original time gaps.
type Source struct {
	bars  []model.Bar
	pos   int
	speed float64
	prev  time.Time
}

// New creates a Source over bars. They are sorted by timestamp.
// speed controls playback: 0 = as fast as possible, 1.0 = real time,
// 10.0 = 10x.
func New(bars []model.Bar, speed float64) *Source {
	sorted := make([]model.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })
	return &Source{bars: sorted, speed: speed}
}

// FromArchive loads every archived bar for symbol after from.
func FromArchive(reader *sqlitestore.Reader, symbol string, from time.Time, speed float64) (*Source, error) {
	bars, err := reader.ReadBars(symbol, from)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	log.Printf("[replay] loaded %d bars for %s, speed=%.1fx", len(bars), symbol, speed)
	return New(bars, speed), nil
}

// Len returns the number of bars in the replay.
func (s *Source) Len() int { return len(s.bars) }

// Remaining returns how many bars have not been delivered yet.
func (s *Source) Remaining() int { return len(s.bars) - s.pos }

// Next returns the next archived bar, or marketdata.ErrExhausted at the end.
func (s *Source) Next(ctx context.Context) (model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return model.Bar{}, err
	}
	if s.pos >= len(s.bars) {
		return model.Bar{}, marketdata.ErrExhausted
	}
	b := s.bars[s.pos]

	// Simulate time gaps between bars
	if s.speed > 0 && !s.prev.IsZero() {
		if gap := b.TS.Sub(s.prev); gap > 0 {
			scaled := time.Duration(float64(gap) / s.speed)
			// Cap max sleep to avoid very long waits
			if scaled > 5*time.Second {
				scaled = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return model.Bar{}, ctx.Err()
			case <-time.After(scaled):
			}
		}
	}

	s.prev = b.TS
	s.pos++
	b.ClearDerived()
	return b, nil
}
