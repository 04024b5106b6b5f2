package trader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pullback-engine/internal/execution"
	"pullback-engine/internal/indicator"
	"pullback-engine/internal/logger"
	"pullback-engine/internal/marketdata/mock"
	"pullback-engine/internal/marketdata/replay"
	"pullback-engine/internal/markethours"
	"pullback-engine/internal/metrics"
	"pullback-engine/internal/model"
	"pullback-engine/internal/notification"
	"pullback-engine/internal/portfolio"
	redisstore "pullback-engine/internal/store/redis"
	"pullback-engine/internal/strategy"
)

var t0 = time.Date(2026, time.January, 27, 9, 15, 0, 0, markethours.IST)

func mockBars(n int) []model.Bar {
	return mock.New(mock.Config{Symbol: "BANKNIFTY", Seed: 42}, t0).Seed(n)
}

// fixedStrategy emits the same signal for every bar.
type fixedStrategy struct{ sig model.Signal }

func (f fixedStrategy) Name() string { return "fixed" }

func (f fixedStrategy) OnHistory(h *model.History) strategy.Decision {
	last := h.Last()
	return strategy.Decision{StrategyName: "fixed", Signal: f.sig, Symbol: last.Symbol, Price: last.Close, Reason: "test", Bar: *last}
}

type failingGateway struct{ calls atomic.Int64 }

func (g *failingGateway) PlaceOrder(context.Context, execution.OrderRequest) (model.Order, error) {
	g.calls.Add(1)
	return model.Order{}, errors.New("venue down")
}

func (g *failingGateway) Positions() []model.Position { return nil }

type fillLog struct {
	mu    sync.Mutex
	fills []model.Order
}

func (f *fillLog) RecordFill(o model.Order, _, _ string) error {
	f.mu.Lock()
	f.fills = append(f.fills, o)
	f.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
	cycles []string // cycle ID seen on the send context
}

func (n *recordingNotifier) Send(ctx context.Context, a notification.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.cycles = append(n.cycles, logger.CycleID(ctx))
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newEngine(t *testing.T, period int) *indicator.Engine {
	t.Helper()
	eng, err := indicator.NewEngine(period)
	require.NoError(t, err)
	return eng
}

func TestNew_Validation(t *testing.T) {
	eng := newEngine(t, 20)
	deps := Deps{
		Source:   replay.New(nil, 0),
		Engine:   eng,
		Strategy: strategy.NewPullback(20),
		Gateway:  execution.NewPaperGateway(portfolio.New(80000), 0),
	}

	_, err := New(Config{Symbol: "X", Quantity: 0}, deps)
	assert.Error(t, err)

	_, err = New(Config{Symbol: "X", Quantity: 1, Retain: 10}, deps)
	assert.Error(t, err)

	deps.Gateway = nil
	_, err = New(Config{Symbol: "X", Quantity: 1}, deps)
	assert.Error(t, err)
}

func TestRunner_FailingGatewayContinues(t *testing.T) {
	gw := &failingGateway{}
	m := metrics.NewMetrics()
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1}, Deps{
		Source:   replay.New(mockBars(5), 0),
		Engine:   newEngine(t, 3),
		Strategy: fixedStrategy{model.SignalBuyCall},
		Gateway:  gw,
		Metrics:  m,
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))

	st := r.Status()
	assert.Equal(t, int64(5), gw.calls.Load(), "every cycle reaches the gateway")
	assert.Equal(t, int64(5), st.Cycles)
	assert.Equal(t, int64(5), st.Errors)
	assert.Contains(t, st.LastError, "venue down")
	assert.Equal(t, int64(0), st.OrderCount)
	assert.Equal(t, 5, st.HistoryTotal)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CycleErrors.WithLabelValues("gateway")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CyclesTotal))
}

func TestRunner_SideEffects(t *testing.T) {
	book := portfolio.New(80000)
	fills := &fillLog{}
	bars := make(chan model.Bar, 16)
	events := make(chan redisstore.Event, 64)

	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 2}, Deps{
		Source:   replay.New(mockBars(4), 0),
		Engine:   newEngine(t, 3),
		Strategy: fixedStrategy{model.SignalBuyCall},
		Gateway:  execution.NewPaperGateway(book, 0),
		Book:     book,
		Bars:     bars,
		Fills:    fills,
		Events:   events,
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Len(t, bars, 4)
	assert.Len(t, events, 12, "bar, signal and order event per cycle")
	assert.Len(t, fills.fills, 4)

	last := <-bars
	for len(bars) > 0 {
		last = <-bars
	}
	assert.True(t, last.EMA.Ready, "archived bars carry indicator values")

	st := r.Status()
	require.Len(t, st.Positions, 1)
	assert.Equal(t, int64(8), st.Positions[0].Qty)
	assert.Equal(t, int64(4), st.OrderCount)
	require.NotNil(t, st.PnL)
	assert.Equal(t, 4, st.PnL.TotalTrades)
	assert.Equal(t, int64(4), st.Signals[model.SignalBuyCall])
}

func TestRunner_FullChannelsDoNotBlock(t *testing.T) {
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1}, Deps{
		Source:   replay.New(mockBars(10), 0),
		Engine:   newEngine(t, 3),
		Strategy: fixedStrategy{model.SignalBuyPut},
		Gateway:  execution.NewPaperGateway(portfolio.New(80000), 0),
		Bars:     make(chan model.Bar),
		Events:   make(chan redisstore.Event),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop blocked on side-effect channels")
	}
	assert.Equal(t, int64(10), r.Status().Cycles)
}

// The live loop must produce exactly the orders an offline pass over the
// same bars would signal.
func TestRunner_PullbackMatchesOfflineEvaluation(t *testing.T) {
	const period = 20
	bars := mockBars(600)

	enriched, _ := indicator.Recompute(period, bars)
	var want int64
	for i, b := range enriched {
		if strategy.Evaluate(period, i+1, b).Actionable() {
			want++
		}
	}

	book := portfolio.New(80000)
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1, Retain: 50}, Deps{
		Source:   replay.New(bars, 0),
		Engine:   newEngine(t, period),
		Strategy: strategy.NewPullback(period),
		Gateway:  execution.NewPaperGateway(book, 0),
		Book:     book,
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	st := r.Status()
	assert.Equal(t, want, st.OrderCount)
	assert.Equal(t, 600, st.HistoryTotal)
	assert.Equal(t, 50, st.HistoryLen)
	assert.Equal(t, 50, st.HistoryRetain)
	assert.Equal(t, 550, st.HistoryEvicted)
	require.NotNil(t, st.LastBar)
	assert.Equal(t, enriched[599].VWAP, st.LastBar.VWAP)
	assert.Equal(t, enriched[599].EMA, st.LastBar.EMA)
}

func TestRunner_SeedFoldsWithoutSignals(t *testing.T) {
	gw := &failingGateway{}
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1}, Deps{
		Source:   replay.New(nil, 0),
		Engine:   newEngine(t, 20),
		Strategy: fixedStrategy{model.SignalBuyCall},
		Gateway:  gw,
	})
	require.NoError(t, err)

	require.NoError(t, r.Seed(mockBars(50)))
	assert.Equal(t, 50, r.History().Total())
	assert.True(t, r.History().Last().EMA.Ready)
	assert.Equal(t, int64(0), gw.calls.Load())
	assert.Equal(t, int64(0), r.Status().Cycles)
}

func TestRunner_CancelStopsLoop(t *testing.T) {
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1, PollInterval: 5 * time.Millisecond}, Deps{
		Source:   mock.New(mock.Config{Symbol: "BANKNIFTY", Seed: 7}, t0),
		Engine:   newEngine(t, 20),
		Strategy: strategy.NewPullback(20),
		Gateway:  execution.NewPaperGateway(portfolio.New(80000), 0),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Status().Cycles >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, r.Status().Errors)
}

func TestRunner_MarketClosedSkipsFetch(t *testing.T) {
	src := &countingSource{}
	session := markethours.NSE()
	m := metrics.NewMetrics()
	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1, PollInterval: 2 * time.Millisecond}, Deps{
		Source:   src,
		Engine:   newEngine(t, 20),
		Strategy: strategy.NewPullback(20),
		Gateway:  execution.NewPaperGateway(portfolio.New(80000), 0),
		Metrics:  m,
		Session:  &session,
	})
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, time.January, 24, 11, 0, 0, 0, markethours.IST) } // Saturday

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Zero(t, src.calls.Load())
	assert.False(t, r.Status().MarketOpen)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MarketState))
}

func TestRunner_Alerts(t *testing.T) {
	n := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(Config{Symbol: "BANKNIFTY", Quantity: 1}, Deps{
		Source:   replay.New(mockBars(3), 0),
		Engine:   newEngine(t, 3),
		Strategy: fixedStrategy{model.SignalBuyCall},
		Gateway:  execution.NewPaperGateway(portfolio.New(80000), 0),
		Notifier: n,
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))

	// signal + order alert per cycle, delivered by the notifier goroutine
	assert.Eventually(t, func() bool { return n.count() == 6 }, 2*time.Second, 5*time.Millisecond)

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, a := range n.alerts {
		assert.NotEmptyf(t, a.CycleID, "alert %d carries its cycle", i)
		assert.Equalf(t, a.CycleID, n.cycles[i], "alert %d sent under its cycle", i)
	}
	assert.Equal(t, n.alerts[0].CycleID, n.alerts[1].CycleID, "signal and order share a cycle")
	assert.NotEqual(t, n.alerts[1].CycleID, n.alerts[2].CycleID)
}

type countingSource struct{ calls atomic.Int64 }

func (c *countingSource) Next(ctx context.Context) (model.Bar, error) {
	c.calls.Add(1)
	return model.Bar{}, ctx.Err()
}
