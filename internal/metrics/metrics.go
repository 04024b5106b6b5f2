// Package metrics exposes Prometheus metrics and a /healthz endpoint for the
// trading loop.
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. Each instance owns
// its registry so several can coexist in one process (tests, backtests).
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal  prometheus.Counter
	CycleErrors  *prometheus.CounterVec // labels: stage=fetch|indicator|gateway
	CycleDur     prometheus.Histogram
	BarsTotal    prometheus.Counter
	SignalsTotal *prometheus.CounterVec // labels: signal
	OrdersTotal  *prometheus.CounterVec // labels: side

	// Indicator engine
	IndicatorComputeDur prometheus.Histogram
	IndicatorValue      *prometheus.GaugeVec // labels: name=close|ema|vwap|slope
	HistoryLen          prometheus.Gauge

	// Side effects
	FeedReconnects           prometheus.Counter
	RedisPublishErrors       prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	NotifyErrors             prometheus.Counter

	// Market session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,

		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pullback_cycles_total",
			Help: "Trading loop cycles completed",
		}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pullback_cycle_errors_total",
			Help: "Cycles that ended in an error, by stage",
		}, []string{"stage"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pullback_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle",
			Buckets: prometheus.DefBuckets,
		}),
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pullback_bars_total",
			Help: "Bars appended to history",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pullback_signals_total",
			Help: "Signals evaluated, by signal",
		}, []string{"signal"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pullback_orders_total",
			Help: "Orders filled by the gateway, by side",
		}, []string{"side"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pullback_indicator_compute_duration_seconds",
			Help:    "Indicator fold latency per cycle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		IndicatorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pullback_indicator_value",
			Help: "Latest close and indicator values",
		}, []string{"name"}),
		HistoryLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pullback_history_bars",
			Help: "Bars currently retained in history",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pullback_feed_reconnects_total",
			Help: "Websocket feed reconnection attempts",
		}),
		RedisPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pullback_redis_publish_errors_total",
			Help: "Redis publishes that failed or were rejected by the circuit breaker",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pullback_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pullback_notify_errors_total",
			Help: "Alert deliveries that failed",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pullback_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDur,
		m.BarsTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.IndicatorComputeDur,
		m.IndicatorValue,
		m.HistoryLen,
		m.FeedReconnects,
		m.RedisPublishErrors,
		m.RedisCircuitBreakerState,
		m.NotifyErrors,
		m.MarketState,
	)

	return m
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
