// cmd/barserver is a demo websocket server broadcasting simulated bars.
// It feeds `trader run` with FEED=ws without a real market data vendor.
//
// Bar JSON shape is model.Bar with indicator fields unset:
//
//	{"symbol":"BANKNIFTY","ts":"...","open":45000,"high":45012.4,"low":44991.2,"close":45005.1,"volume":1130.5, ...}
//
// Config (env vars):
//
//	BAR_SERVER_ADDR  listen address (default ":8765")
//	BAR_SYMBOLS      comma-separated symbols (default "BANKNIFTY")
//	BAR_INTERVAL     wall-clock time between bars (default "2s")
//	BAR_SPACING      bar timestamp spacing (default "5m")
//	BAR_SEED         random seed, 0 = time-based (default 0)
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pullback-engine/internal/marketdata/mock"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[barserver] starting demo bar server...")

	addr := envOrDefault("BAR_SERVER_ADDR", ":8765")
	symbols := parseSymbols(envOrDefault("BAR_SYMBOLS", "BANKNIFTY"))
	interval := envDurationOrDefault("BAR_INTERVAL", 2*time.Second)
	spacing := envDurationOrDefault("BAR_SPACING", 5*time.Minute)
	seed := envInt64OrDefault("BAR_SEED", 0)

	if len(symbols) == 0 {
		log.Fatalf("[barserver] no symbols configured via BAR_SYMBOLS")
	}
	log.Printf("[barserver] symbols=%v interval=%s spacing=%s", symbols, interval, spacing)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := newHub()
	gens := make([]*mock.Generator, len(symbols))
	for i, s := range symbols {
		cfg := mock.Config{Symbol: s, Spacing: spacing}
		if seed != 0 {
			cfg.Seed = seed + int64(i)
		}
		gens[i] = mock.New(cfg, time.Now().UTC().Truncate(spacing))
	}
	go runGenerator(ctx, h, gens, interval)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","service":"barserver","clients":%d}`+"\n", h.count())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[barserver] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[barserver] server error: %v", err)
	}
	log.Println("[barserver] stopped")
}

// runGenerator emits one bar per symbol every interval until ctx ends.
func runGenerator(ctx context.Context, h *hub, gens []*mock.Generator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, g := range gens {
			b, err := g.Next(ctx)
			if err != nil {
				return
			}
			h.broadcast(b.JSON())
		}
	}
}

func parseSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("[barserver] invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("[barserver] invalid %s=%q, using %s", key, v, def)
	}
	return def
}
