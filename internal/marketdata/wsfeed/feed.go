// Package wsfeed is a market data source reading bars from a websocket bar
// server such as cmd/barserver.
//
// The expected JSON message on the wire is a model.Bar:
//
//	{"symbol":"BANKNIFTY","ts":"...","open":45000,"high":45012.5,"low":44991,"close":45004,"volume":1180}
//
// Indicator fields on incoming bars are ignored; the engine recomputes them.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"pullback-engine/internal/model"
)

// ErrFeedClosed is returned by Next once Start has returned.
var ErrFeedClosed = errors.New("wsfeed: feed closed")

// Config holds configuration for the websocket feed.
type Config struct {
	// URL of the bar websocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// Symbol filters incoming bars. Empty accepts every symbol.
	Symbol string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// Buffer is the number of bars held between the reader and Next.
	// Defaults to 64.
	Buffer int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
}

// Feed connects to a bar server and hands bars to Next in arrival order.
type Feed struct {
	cfg  Config
	bars chan model.Bar
	done chan struct{}

	// Optional hooks, called on every successful dial and before every
	// reconnection attempt.
	OnConnect   func()
	OnReconnect func()
}

// New creates a new Feed. Returns an error if the URL is unparseable.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("wsfeed: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsfeed: unsupported scheme %q", u.Scheme)
	}
	return &Feed{
		cfg:  cfg,
		bars: make(chan model.Bar, cfg.Buffer),
		done: make(chan struct{}),
	}, nil
}

// Next blocks until a bar arrives, ctx is done or the feed stops.
func (f *Feed) Next(ctx context.Context) (model.Bar, error) {
	select {
	case <-ctx.Done():
		return model.Bar{}, ctx.Err()
	case b := <-f.bars:
		return b, nil
	case <-f.done:
		// drain what was read before the feed stopped
		select {
		case b := <-f.bars:
			return b, nil
		default:
			return model.Bar{}, ErrFeedClosed
		}
	}
}

// Start connects and streams bars until ctx is cancelled, reconnecting with
// exponential backoff on disconnect. Must be called once.
func (f *Feed) Start(ctx context.Context) error {
	defer close(f.done)
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", f.cfg.URL)
	if f.OnConnect != nil {
		f.OnConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b, ok := f.decode(raw)
		if !ok {
			continue
		}

		select {
		case f.bars <- b:
		default:
			log.Printf("[wsfeed] buffer full, dropping bar %s", b.TS.Format(time.RFC3339))
		}
	}
}

func (f *Feed) decode(raw []byte) (model.Bar, bool) {
	var b model.Bar
	if err := json.Unmarshal(raw, &b); err != nil {
		log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
		return b, false
	}
	if b.TS.IsZero() {
		log.Printf("[wsfeed] skipping bar without timestamp")
		return b, false
	}
	if f.cfg.Symbol != "" && b.Symbol != f.cfg.Symbol {
		return b, false
	}
	b.ClearDerived()
	return b, true
}
