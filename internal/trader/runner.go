// Package trader drives the trading loop: fetch a bar, fold indicators,
// evaluate the strategy and place an order for actionable signals.
//
// The core cycle runs on one goroutine and owns the History and the
// indicator engine. Archive, publish, alert and metrics side effects hang
// off the cycle through non-blocking channels and never change core state.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"pullback-engine/internal/execution"
	"pullback-engine/internal/indicator"
	"pullback-engine/internal/logger"
	"pullback-engine/internal/marketdata"
	"pullback-engine/internal/markethours"
	"pullback-engine/internal/metrics"
	"pullback-engine/internal/model"
	"pullback-engine/internal/notification"
	"pullback-engine/internal/portfolio"
	redisstore "pullback-engine/internal/store/redis"
	"pullback-engine/internal/strategy"
)

const (
	alertBuffer   = 64
	notifyTimeout = 10 * time.Second
	recentOrders  = 100
)

// Config is the static loop configuration.
type Config struct {
	Symbol       string
	Quantity     int64
	PollInterval time.Duration // <= 0 runs cycles back to back (backtests)
	Retain       int           // history retention, 0 = unbounded
}

// FillRecorder archives filled orders.
type FillRecorder interface {
	RecordFill(o model.Order, strategy, reason string) error
}

// Deps are the collaborators of a Runner. Source, Engine, Strategy and
// Gateway are required; the rest are optional and skipped when nil.
type Deps struct {
	Source   marketdata.Source
	Engine   *indicator.Engine
	Strategy strategy.Strategy
	Gateway  execution.Gateway

	Book     *portfolio.Book  // for P&L in the status snapshot
	Bars     chan<- model.Bar // archive of enriched bars
	Fills    FillRecorder     // archive of fills
	Events   chan<- redisstore.Event
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Session  *markethours.Session // trade only while the session is open
}

// Runner executes the trading loop.
type Runner struct {
	cfg     Config
	deps    Deps
	history *model.History
	log     *slog.Logger
	alerts  chan notification.Alert
	now     func() time.Time

	seq           int64 // cycles started, loop goroutine only
	sessionLogged bool

	mu     sync.RWMutex
	status Status
}

// New creates a Runner with an empty history.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.Source == nil || deps.Engine == nil || deps.Strategy == nil || deps.Gateway == nil {
		return nil, errors.New("trader: source, engine, strategy and gateway are required")
	}
	if cfg.Quantity < 1 {
		return nil, fmt.Errorf("trader: quantity must be >= 1, got %d", cfg.Quantity)
	}
	if cfg.Retain > 0 && cfg.Retain < deps.Engine.Period() {
		return nil, fmt.Errorf("trader: retain %d below period %d", cfg.Retain, deps.Engine.Period())
	}
	r := &Runner{
		cfg:     cfg,
		deps:    deps,
		history: model.NewHistory(cfg.Retain),
		log:     logger.Component("trader"),
		alerts:  make(chan notification.Alert, alertBuffer),
		now:     time.Now,
	}
	r.status = Status{
		Symbol:    cfg.Symbol,
		Strategy:  deps.Strategy.Name(),
		Period:    deps.Engine.Period(),
		Signals:   map[model.Signal]int64{},
		StartedAt: r.now(),
	}
	return r, nil
}

// History returns the loop's history. Only safe to read while Run is not
// executing.
func (r *Runner) History() *model.History { return r.history }

// Seed appends prefill bars and folds indicators over them. No signals are
// evaluated for seeded bars.
func (r *Runner) Seed(bars []model.Bar) error {
	for _, b := range bars {
		b.ClearDerived()
		r.history.Append(b)
	}
	if _, err := r.deps.Engine.Update(r.history); err != nil {
		return fmt.Errorf("trader: seed: %w", err)
	}
	r.mu.Lock()
	r.refreshHistoryLocked()
	r.mu.Unlock()
	log.Printf("[trader] seeded %d bars (total=%d)", len(bars), r.history.Total())
	return nil
}

// Run executes cycles until ctx is cancelled or the source is exhausted.
// A cycle that already started completes before Run returns. Cycle errors
// are logged and counted; the next cycle proceeds.
func (r *Runner) Run(ctx context.Context) error {
	if r.deps.Notifier != nil {
		go r.runNotifier(ctx)
	}

	log.Printf("[trader] started symbol=%s strategy=%s poll=%s", r.cfg.Symbol, r.deps.Strategy.Name(), r.cfg.PollInterval)
	for {
		if r.deps.Session != nil && !r.marketOpen() {
			if !r.wait(ctx) {
				return nil
			}
			continue
		}

		_, err := r.Cycle(ctx)
		switch {
		case errors.Is(err, marketdata.ErrExhausted):
			log.Printf("[trader] source exhausted after %d cycles", r.seq)
			return nil
		case ctx.Err() != nil:
			log.Printf("[trader] stopped: %v", ctx.Err())
			return nil
		case err != nil:
			r.log.Warn("cycle failed", "error", err, "cycle", r.seq)
		}

		if !r.wait(ctx) {
			log.Printf("[trader] stopped: %v", ctx.Err())
			return nil
		}
	}
}

// wait sleeps for the poll interval. It returns false when ctx ends first.
func (r *Runner) wait(ctx context.Context) bool {
	if r.cfg.PollInterval <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) marketOpen() bool {
	now := r.now()
	open := r.deps.Session.IsOpen(now)
	if m := r.deps.Metrics; m != nil {
		if open {
			m.MarketState.Set(1)
		} else {
			m.MarketState.Set(0)
		}
	}
	r.mu.Lock()
	changed := r.status.MarketOpen != open
	r.status.MarketOpen = open
	r.mu.Unlock()
	if changed || !r.sessionLogged {
		r.sessionLogged = true
		log.Printf("[trader] %s", r.deps.Session.StatusString(now))
	}
	return open
}

// Cycle runs one fetch, update, evaluate and order step.
func (r *Runner) Cycle(ctx context.Context) (strategy.Decision, error) {
	start := time.Now()
	r.seq++

	d, stage, err := r.cycle(ctx)
	if errors.Is(err, marketdata.ErrExhausted) {
		return d, err
	}

	failed := err != nil && ctx.Err() == nil
	if m := r.deps.Metrics; m != nil {
		m.CyclesTotal.Inc()
		m.CycleDur.Observe(time.Since(start).Seconds())
		if failed {
			m.CycleErrors.WithLabelValues(stage).Inc()
		}
	}
	if h := r.deps.Health; h != nil {
		h.RecordCycle(d.Bar.TS, failed)
	}

	r.mu.Lock()
	r.status.Cycles++
	if failed {
		r.status.Errors++
		r.status.LastError = err.Error()
	}
	r.status.UpdatedAt = r.now()
	r.mu.Unlock()

	return d, err
}

func (r *Runner) cycle(ctx context.Context) (strategy.Decision, string, error) {
	bar, err := r.deps.Source.Next(ctx)
	if err != nil {
		return strategy.Decision{}, "fetch", fmt.Errorf("fetch bar: %w", err)
	}
	if bar.Symbol == "" {
		bar.Symbol = r.cfg.Symbol
	}
	bar.ClearDerived()
	r.history.Append(bar)

	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(r.cfg.Symbol, r.seq, bar.TS))

	t0 := time.Now()
	if _, err := r.deps.Engine.Update(r.history); err != nil {
		return strategy.Decision{Bar: bar}, "indicator", fmt.Errorf("update indicators: %w", err)
	}
	if m := r.deps.Metrics; m != nil {
		m.IndicatorComputeDur.Observe(time.Since(t0).Seconds())
	}

	d := r.deps.Strategy.OnHistory(r.history)
	enriched := d.Bar

	r.log.Info("bar", append(logger.LogWithCycle(ctx),
		"ts", enriched.TS, "close", enriched.Close,
		"ema", enriched.EMA.String(), "vwap", enriched.VWAP.String(), "slope", enriched.Slope.String(),
		"signal", d.Signal, "reason", d.Reason)...)

	r.observe(enriched, d)
	r.archiveBar(enriched)
	r.publish(redisstore.Event{Kind: redisstore.EventBar, Bar: enriched})

	if !d.Signal.Actionable() {
		return d, "", nil
	}

	r.publish(redisstore.Event{Kind: redisstore.EventSignal, Bar: enriched, Signal: d.Signal, Reason: d.Reason})
	r.alert(ctx, notification.SignalAlert(d.Signal, enriched, d.Reason))

	req, _ := execution.RequestFor(d.Signal, r.cfg.Symbol, r.cfg.Quantity, enriched.Close)
	order, err := r.deps.Gateway.PlaceOrder(ctx, req)
	if err != nil {
		r.alert(ctx, notification.GatewayFailureAlert(d.Signal, r.cfg.Symbol, err))
		return d, "gateway", fmt.Errorf("place order: %w", err)
	}

	r.log.Info("order filled", append(logger.LogWithCycle(ctx),
		"order_id", order.ID, "side", order.Side, "qty", order.Qty, "price", order.Price)...)

	r.recordOrder(order)
	if m := r.deps.Metrics; m != nil {
		m.OrdersTotal.WithLabelValues(string(order.Side)).Inc()
	}
	if f := r.deps.Fills; f != nil {
		if err := f.RecordFill(order, d.StrategyName, d.Reason); err != nil {
			log.Printf("[trader] archive fill %s: %v", order.ID, err)
		}
	}
	r.publish(redisstore.Event{Kind: redisstore.EventOrder, Order: order})
	r.alert(ctx, notification.OrderAlert(order))
	return d, "", nil
}

// observe updates metrics and the status snapshot for a processed bar.
func (r *Runner) observe(b model.Bar, d strategy.Decision) {
	if book := r.deps.Book; book != nil {
		book.UpdatePrice(r.cfg.Symbol, b.Close)
	}
	if m := r.deps.Metrics; m != nil {
		m.BarsTotal.Inc()
		m.SignalsTotal.WithLabelValues(string(d.Signal)).Inc()
		m.IndicatorValue.WithLabelValues("close").Set(b.Close)
		for name, v := range map[string]model.Reading{"ema": b.EMA, "vwap": b.VWAP, "slope": b.Slope} {
			if v.Ready {
				m.IndicatorValue.WithLabelValues(name).Set(v.Value)
			}
		}
		m.HistoryLen.Set(float64(r.history.Len()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	bar := b
	r.status.LastBar = &bar
	r.status.LastSignal = d.Signal
	r.status.LastReason = d.Reason
	r.status.Signals[d.Signal]++
	r.refreshHistoryLocked()
}

func (r *Runner) refreshHistoryLocked() {
	r.status.HistoryTotal = r.history.Total()
	r.status.HistoryLen = r.history.Len()
	r.status.HistoryRetain = r.history.Retain()
	r.status.HistoryEvicted = r.history.Evicted()
}

func (r *Runner) recordOrder(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Orders = append(r.status.Orders, o)
	if len(r.status.Orders) > recentOrders {
		r.status.Orders = r.status.Orders[len(r.status.Orders)-recentOrders:]
	}
	r.status.OrderCount++
}

func (r *Runner) archiveBar(b model.Bar) {
	if r.deps.Bars == nil {
		return
	}
	select {
	case r.deps.Bars <- b:
	default:
		log.Printf("[trader] archive channel full, dropping bar %s", b.TS.Format(time.RFC3339))
	}
}

func (r *Runner) publish(ev redisstore.Event) {
	if r.deps.Events == nil {
		return
	}
	select {
	case r.deps.Events <- ev:
	default:
		log.Printf("[trader] publish channel full, dropping event kind=%d", ev.Kind)
	}
}

func (r *Runner) alert(ctx context.Context, a notification.Alert) {
	if r.deps.Notifier == nil {
		return
	}
	a.CycleID = logger.CycleID(ctx)
	select {
	case r.alerts <- a:
	default:
		log.Printf("[trader] alert queue full, dropping %q", a.Title)
	}
}

func (r *Runner) runNotifier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-r.alerts:
			sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
			if a.CycleID != "" {
				sendCtx = logger.WithCycleID(sendCtx, a.CycleID)
			}
			err := r.deps.Notifier.Send(sendCtx, a)
			cancel()
			if err != nil {
				log.Printf("[trader] alert %q failed: %v", a.Title, err)
				if m := r.deps.Metrics; m != nil {
					m.NotifyErrors.Inc()
				}
			}
		}
	}
}
