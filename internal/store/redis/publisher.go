// Package redis publishes indicator bars, signals and orders to Redis so
// dashboards and other consumers can follow the engine without touching it.
//
// Every write goes through a CircuitBreaker. Publishing is best effort: a
// failed or rejected write is logged and dropped, it never reaches the
// trading loop.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"pullback-engine/internal/model"
)

const (
	barStreamMaxLen  = 5000
	defaultLatestTTL = 30 * time.Minute
	writeTimeout     = 2 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// EventKind tells the publisher which payload an Event carries.
type EventKind int

const (
	EventBar EventKind = iota
	EventSignal
	EventOrder
)

// Event is one item handed from the trading loop to the publisher.
type Event struct {
	Kind   EventKind
	Bar    model.Bar
	Signal model.Signal
	Reason string
	Order  model.Order
}

// signalPayload is the JSON published for a non-NONE signal.
type signalPayload struct {
	Symbol string       `json:"symbol"`
	Signal model.Signal `json:"signal"`
	Reason string       `json:"reason"`
	Close  float64      `json:"close"`
	TS     time.Time    `json:"ts"`
}

// Publisher writes engine output to Redis streams, keys and channels.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker

	// OnError is called for every failed or rejected write (for metrics).
	OnError func(err error)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the circuit breaker guarding writes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, NewCircuitBreaker(5, 10*time.Second)), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker) *Publisher {
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return &Publisher{client: client, cb: cb}
}

// Run publishes events until ctx is cancelled or events is closed.
func (p *Publisher) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var err error
			switch ev.Kind {
			case EventBar:
				err = p.PublishBar(ctx, ev.Bar)
			case EventSignal:
				err = p.PublishSignal(ctx, ev.Bar, ev.Signal, ev.Reason)
			case EventOrder:
				err = p.PublishOrder(ctx, ev.Order)
			}
			if err != nil {
				log.Printf("[redis] publish error: %v", err)
			}
		}
	}
}

// PublishBar appends the bar to its stream, stores it as the latest bar and
// announces it on the bar channel, in one pipeline.
func (p *Publisher) PublishBar(ctx context.Context, b model.Bar) error {
	data := string(b.JSON())
	return p.exec(ctx, func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: BarStreamKey(b.Symbol),
			MaxLen: barStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, LatestBarKey(b.Symbol), data, defaultLatestTTL)
		pipe.Publish(ctx, BarChannel(b.Symbol), data)
	})
}

// PublishSignal announces an actionable signal. NONE is not published.
func (p *Publisher) PublishSignal(ctx context.Context, b model.Bar, sig model.Signal, reason string) error {
	if !sig.Actionable() {
		return nil
	}
	payload, err := json.Marshal(signalPayload{
		Symbol: b.Symbol, Signal: sig, Reason: reason, Close: b.Close, TS: b.TS,
	})
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	return p.exec(ctx, func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.Publish(ctx, SignalChannel(b.Symbol), string(payload))
	})
}

// PublishOrder stores the order as the latest order and announces it.
func (p *Publisher) PublishOrder(ctx context.Context, o model.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	data := string(payload)
	return p.exec(ctx, func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.Set(ctx, LatestOrderKey(o.Symbol), data, defaultLatestTTL)
		pipe.Publish(ctx, OrderChannel(o.Symbol), data)
	})
}

func (p *Publisher) exec(ctx context.Context, fill func(context.Context, goredis.Pipeliner)) error {
	err := p.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		pipe := p.client.Pipeline()
		fill(ctx, pipe)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && p.OnError != nil {
		p.OnError(err)
	}
	return err
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func BarStreamKey(symbol string) string   { return "bars:" + symbol }
func LatestBarKey(symbol string) string   { return "bar:latest:" + symbol }
func LatestOrderKey(symbol string) string { return "order:latest:" + symbol }
func BarChannel(symbol string) string     { return "pub:bar:" + symbol }
func SignalChannel(symbol string) string  { return "pub:signal:" + symbol }
func OrderChannel(symbol string) string   { return "pub:order:" + symbol }
