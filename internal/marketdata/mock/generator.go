// Package mock generates synthetic OHLCV bars with a gaussian random walk.
//
// Each bar opens at the previous close and closes N(0, volatility) away. The
// high and low extend past the body by |N(0, wick)| and volume is
// base + |N(0, volumeStd)|. Bars are spaced a fixed interval apart.
package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"pullback-engine/internal/model"
)

// Config controls the random walk. Zero fields take the defaults below.
type Config struct {
	Symbol     string
	StartPrice float64       // default 45000
	Volatility float64       // close-to-open stddev, default 20
	Wick       float64       // wick stddev, default 5
	BaseVolume float64       // default 1000
	VolumeStd  float64       // default 200
	Spacing    time.Duration // default 5m
	Seed       int64         // 0 = time-based
}

func (c *Config) defaults() {
	if c.StartPrice == 0 {
		c.StartPrice = 45000
	}
	if c.Volatility == 0 {
		c.Volatility = 20
	}
	if c.Wick == 0 {
		c.Wick = 5
	}
	if c.BaseVolume == 0 {
		c.BaseVolume = 1000
	}
	if c.VolumeStd == 0 {
		c.VolumeStd = 200
	}
	if c.Spacing == 0 {
		c.Spacing = 5 * time.Minute
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Generator is a market data source producing an endless random walk.
type Generator struct {
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	price  float64
	nextTS time.Time
}

// New creates a generator whose first bar is stamped start.
func New(cfg Config, start time.Time) *Generator {
	cfg.defaults()
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		price:  cfg.StartPrice,
		nextTS: start,
	}
}

// NewBackfilled creates a generator positioned so that n seed bars end one
// spacing before now, matching a history prefilled up to the present.
func NewBackfilled(cfg Config, n int, now time.Time) *Generator {
	cfg.defaults()
	return New(cfg, now.Add(-time.Duration(n)*cfg.Spacing))
}

// Resume creates a generator that continues the walk after last: it opens at
// last.Close and its first bar is stamped at the later of now and one
// spacing after last.TS, so bars never overwrite earlier ones.
func Resume(cfg Config, last model.Bar, now time.Time) *Generator {
	cfg.defaults()
	cfg.StartPrice = last.Close
	start := last.TS.Add(cfg.Spacing)
	if now.After(start) {
		start = now
	}
	return New(cfg, start)
}

// Next returns the next bar of the walk.
func (g *Generator) Next(ctx context.Context) (model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return model.Bar{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked(), nil
}

// Seed returns the next n bars, used to prefill history before the loop
// starts.
func (g *Generator) Seed(n int) []model.Bar {
	g.mu.Lock()
	defer g.mu.Unlock()
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = g.nextLocked()
	}
	return bars
}

func (g *Generator) nextLocked() model.Bar {
	open := g.price
	closePrice := open + g.rng.NormFloat64()*g.cfg.Volatility
	high := math.Max(open, closePrice) + math.Abs(g.rng.NormFloat64()*g.cfg.Wick)
	low := math.Min(open, closePrice) - math.Abs(g.rng.NormFloat64()*g.cfg.Wick)
	volume := g.cfg.BaseVolume + math.Abs(g.rng.NormFloat64()*g.cfg.VolumeStd)

	b := model.Bar{
		Symbol: g.cfg.Symbol,
		TS:     g.nextTS,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}
	g.price = closePrice
	g.nextTS = g.nextTS.Add(g.cfg.Spacing)
	return b
}
