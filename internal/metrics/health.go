package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected bool
	LastBarTime   time.Time
	LastCycleAt   time.Time
	CycleErrors   int64

	// Optional dependencies are only judged when configured.
	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	// StaleAfter marks the loop degraded when no cycle completed for this
	// long. Zero disables the check.
	StaleAfter time.Duration

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		StaleAfter:    staleAfter,
		FeedConnected: true,
		now:           time.Now,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

// RecordCycle notes a completed cycle and the newest bar time.
func (h *HealthStatus) RecordCycle(barTime time.Time, failed bool) {
	h.mu.Lock()
	h.LastCycleAt = h.now()
	if !barTime.IsZero() {
		h.LastBarTime = barTime
	}
	if failed {
		h.CycleErrors++
	}
	h.mu.Unlock()
}

// EnableRedis marks Redis as a dependency to be probed.
func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a dependency to be probed.
func (h *HealthStatus) EnableSQLite() {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	FeedConnected   bool    `json:"feed_connected"`
	LastBarTime     string  `json:"last_bar_time"`
	LastCycleAge    string  `json:"last_cycle_age"`
	CycleErrors     int64   `json:"cycle_errors"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Report computes the current health report.
func (h *HealthStatus) Report() HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	status := "healthy"
	if !h.FeedConnected ||
		(h.RedisEnabled && !h.RedisConnected) ||
		(h.SQLiteEnabled && !h.SQLiteOK) {
		status = "degraded"
	}
	if h.StaleAfter > 0 && !h.LastCycleAt.IsZero() && now.Sub(h.LastCycleAt) > h.StaleAfter {
		status = "unhealthy"
	}

	r := HealthReport{
		Status:        status,
		Uptime:        now.Sub(h.StartedAt).Round(time.Second).String(),
		FeedConnected: h.FeedConnected,
		CycleErrors:   h.CycleErrors,
		LastCheckAt:   h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastBarTime.IsZero() {
		r.LastBarTime = h.LastBarTime.Format(time.RFC3339)
	}
	if !h.LastCycleAt.IsZero() {
		r.LastCycleAge = now.Sub(h.LastCycleAt).Round(time.Millisecond).String()
	}
	if h.RedisEnabled {
		v := h.RedisConnected
		r.RedisConnected = &v
		r.RedisLatencyMs = h.RedisLatencyMs
	}
	if h.SQLiteEnabled {
		v := h.SQLiteOK
		r.SQLiteOK = &v
		r.SQLiteLatencyMs = h.SQLiteLatencyMs
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
